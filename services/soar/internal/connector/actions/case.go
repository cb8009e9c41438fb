package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/connector"
)

// CaseConnector opens and links cases in the control plane's own case
// repository, for playbook actions that want a case without an external
// case-management system.
type CaseConnector struct {
	*connector.BaseConnector
	cases repository.CaseRepository
}

// NewCaseConnectorFactory returns a connector factory closed over a case
// repository, since repository.CaseRepository has no connection details
// that belong in a ConnectorConfig.
func NewCaseConnectorFactory(cases repository.CaseRepository) connector.ConnectorFactory {
	return func(config *connector.ConnectorConfig) (connector.ActionConnector, error) {
		base := connector.NewBaseConnector(config)
		c := &CaseConnector{BaseConnector: base, cases: cases}
		c.registerActions()
		return c, nil
	}
}

func (c *CaseConnector) registerActions() {
	c.RegisterAction(connector.ActionDefinition{
		Name:        "create_case",
		DisplayName: "Create Case",
		Description: "Open a case in the control plane and link the triggering alert",
		Category:    "case_management",
		RiskLevel:   "low",
		Parameters: []connector.ParameterDef{
			{Name: "tenant_id", DisplayName: "Tenant ID", Type: "string", Required: true},
			{Name: "title", DisplayName: "Title", Type: "string", Required: true},
			{Name: "summary", DisplayName: "Summary", Type: "string", Required: false},
			{Name: "severity", DisplayName: "Severity", Type: "string", Required: false},
			{Name: "alert_id", DisplayName: "Alert ID", Type: "string", Required: true},
		},
		Returns: []connector.ParameterDef{
			{Name: "case_id", Type: "string"},
		},
	}, c.createCase)
}

func (c *CaseConnector) createCase(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	tenantID, _ := params["tenant_id"].(string)
	alertID, _ := params["alert_id"].(string)
	if tenantID == "" || alertID == "" {
		return nil, fmt.Errorf("tenant_id and alert_id are required")
	}

	cs := &repository.Case{
		TenantEntity: repository.TenantEntity{
			BaseEntity: repository.BaseEntity{ID: uuid.NewString()},
			TenantID:   tenantID,
		},
		CaseNumber: "CASE-" + time.Now().UTC().Format("20060102150405"),
		Title:      fmt.Sprintf("%v", params["title"]),
		Summary:    fmt.Sprintf("%v", params["summary"]),
		CaseType:   "alert",
		Severity:   fmt.Sprintf("%v", params["severity"]),
		Status:     "open",
		DetectedAt: time.Now().UTC(),
	}

	if err := c.cases.Create(ctx, cs); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	if err := c.cases.LinkAlert(ctx, tenantID, cs.ID, alertID); err != nil {
		return nil, fmt.Errorf("link alert %s to case %s: %w", alertID, cs.ID, err)
	}

	return map[string]interface{}{"case_id": cs.ID, "case_number": cs.CaseNumber}, nil
}

// Actions returns the list of action names.
func (c *CaseConnector) Actions() []string { return []string{"create_case"} }

// Health reports healthy as long as the case repository was wired; there is
// no remote endpoint to probe.
func (c *CaseConnector) Health(ctx context.Context) (*connector.HealthStatus, error) {
	return &connector.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
}
