// Package wiring assembles the connector registry from the concrete
// action connectors, keeping the connector and actions packages free of
// a dependency cycle between them.
package wiring

import (
	"fmt"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/connector"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/connector/actions"
)

// BuildConfig carries the per-driver endpoint/credential settings the
// playbook runner's six action types (spec §4.8) need to build their
// connectors. Fields left blank fall back to each connector's own
// zero-value behavior (e.g. Notify degrades to unhealthy, not a crash).
type BuildConfig struct {
	TheHiveURL    string
	TheHiveAPIKey string
	CortexURL     string
	CortexAPIKey  string
	AnsibleURL    string
	AnsibleToken  string
	WebhookURL    string
	NotifyURL     string
	Timeout       time.Duration
}

// BuildRegistry wires the six playbook action drivers (spec §4.8) into a
// Registry, one instance each named after its action type, so that
// executor.DriverRegistry.GetConnector(actionType) resolves directly
// against the type string from a playbook action without a lookup table.
func BuildRegistry(cfg BuildConfig, cases repository.CaseRepository) (*connector.Registry, error) {
	r := connector.NewRegistry()

	r.RegisterFactory("thehive", actions.NewTheHiveConnector)
	r.RegisterFactory("cortex", actions.NewCortexConnector)
	r.RegisterFactory("ansible", actions.NewAnsibleConnector)
	r.RegisterFactory("webhook", actions.NewWebhookConnector)
	r.RegisterFactory("notify", actions.NewNotifyConnector)
	r.RegisterFactory("case", actions.NewCaseConnectorFactory(cases))

	configs := []*connector.ConnectorConfig{
		{Name: "thehive", Type: "thehive", Endpoint: cfg.TheHiveURL, Timeout: cfg.Timeout, Credentials: connector.CredentialConfig{APIKey: cfg.TheHiveAPIKey}, Enabled: true},
		{Name: "cortex", Type: "cortex", Endpoint: cfg.CortexURL, Timeout: cfg.Timeout, Credentials: connector.CredentialConfig{APIKey: cfg.CortexAPIKey}, Enabled: true},
		{Name: "ansible", Type: "ansible", Endpoint: cfg.AnsibleURL, Timeout: cfg.Timeout, Credentials: connector.CredentialConfig{APIKey: cfg.AnsibleToken}, Enabled: true},
		{Name: "webhook", Type: "webhook", Endpoint: cfg.WebhookURL, Timeout: cfg.Timeout, Enabled: true},
		{Name: "notify", Type: "notify", Endpoint: cfg.NotifyURL, Timeout: cfg.Timeout, Enabled: true},
		{Name: "case", Type: "case", Timeout: cfg.Timeout, Enabled: true},
	}
	for _, c := range configs {
		if _, err := r.Create(c); err != nil {
			return nil, fmt.Errorf("create %s connector: %w", c.Name, err)
		}
	}

	return r, nil
}
