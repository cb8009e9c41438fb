// Package actions provides driver implementations dispatched by the playbook
// executor.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nightwatch-siem/nightwatch/services/soar/internal/connector"
)

// TheHiveConnector opens and updates cases in TheHive's case management API.
type TheHiveConnector struct {
	*connector.BaseConnector
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewTheHiveConnector creates a new TheHive connector.
func NewTheHiveConnector(config *connector.ConnectorConfig) (connector.ActionConnector, error) {
	base := connector.NewBaseConnector(config)

	c := &TheHiveConnector{
		BaseConnector: base,
		baseURL:       config.Endpoint,
		apiKey:        config.Credentials.APIKey,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 30 * time.Second
	}

	c.registerActions()
	return c, nil
}

func (c *TheHiveConnector) registerActions() {
	c.RegisterAction(connector.ActionDefinition{
		Name:        "create_case",
		DisplayName: "Create Case",
		Description: "Open a TheHive case for an alert",
		Category:    "case_management",
		RiskLevel:   "low",
		Parameters: []connector.ParameterDef{
			{Name: "title", DisplayName: "Title", Type: "string", Required: true},
			{Name: "description", DisplayName: "Description", Type: "string", Required: false},
			{Name: "severity", DisplayName: "Severity", Type: "string", Required: false, Options: []string{"critical", "high", "medium", "low"}},
			{Name: "tags", DisplayName: "Tags", Type: "string[]", Required: false},
			{Name: "tlp", DisplayName: "TLP", Type: "int", Required: false},
		},
		Returns: []connector.ParameterDef{
			{Name: "case_id", Type: "string"},
			{Name: "url", Type: "string"},
		},
	}, c.createCase)

	c.RegisterAction(connector.ActionDefinition{
		Name:        "add_observable",
		DisplayName: "Add Observable",
		Description: "Attach an observable (IOC) to an existing case",
		Category:    "case_management",
		RiskLevel:   "low",
		Parameters: []connector.ParameterDef{
			{Name: "case_id", DisplayName: "Case ID", Type: "string", Required: true},
			{Name: "data_type", DisplayName: "Data Type", Type: "string", Required: true, Description: "ip, domain, hash, etc."},
			{Name: "data", DisplayName: "Data", Type: "string", Required: true},
			{Name: "ioc", DisplayName: "Is IOC", Type: "bool", Required: false},
		},
		Returns: []connector.ParameterDef{
			{Name: "observable_id", Type: "string"},
		},
	}, c.addObservable)
}

var theHiveSeverity = map[string]int{"critical": 4, "high": 3, "medium": 2, "low": 1}

func (c *TheHiveConnector) createCase(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"title":       params["title"],
		"description": params["description"],
	}
	if sev, ok := params["severity"].(string); ok {
		payload["severity"] = theHiveSeverity[sev]
	}
	if tags, ok := params["tags"]; ok {
		payload["tags"] = tags
	}
	if tlp, ok := params["tlp"]; ok {
		payload["tlp"] = tlp
	}

	result, err := c.apiCall(ctx, "POST", "/api/v1/case", payload)
	if err != nil {
		return nil, err
	}

	caseID := fmt.Sprintf("%v", result["_id"])
	return map[string]interface{}{
		"case_id": caseID,
		"url":     fmt.Sprintf("%s/cases/%s/details", c.baseURL, caseID),
	}, nil
}

func (c *TheHiveConnector) addObservable(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	caseID := params["case_id"].(string)
	payload := map[string]interface{}{
		"dataType": params["data_type"],
		"data":     params["data"],
		"ioc":      params["ioc"],
	}

	result, err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/v1/case/%s/observable", caseID), payload)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"observable_id": fmt.Sprintf("%v", result["_id"])}, nil
}

func (c *TheHiveConnector) apiCall(ctx context.Context, method, path string, payload map[string]interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TheHive API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// Actions returns the list of action names.
func (c *TheHiveConnector) Actions() []string {
	return []string{"create_case", "add_observable"}
}

// Health checks TheHive connector health.
func (c *TheHiveConnector) Health(ctx context.Context) (*connector.HealthStatus, error) {
	start := time.Now()
	_, err := c.apiCall(ctx, "GET", "/api/v1/status", nil)
	if err != nil {
		return &connector.HealthStatus{Status: "unhealthy", Message: err.Error(), LastCheck: time.Now(), Latency: time.Since(start)}, nil
	}
	return &connector.HealthStatus{Status: "healthy", LastCheck: time.Now(), Latency: time.Since(start)}, nil
}
