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

// AnsibleConnector triggers playbook runs on an Ansible Automation
// Controller (AWX/Tower) job template, for host isolation, firewall
// updates, and other remote-execution containment steps.
type AnsibleConnector struct {
	*connector.BaseConnector
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAnsibleConnector creates a new Ansible connector.
func NewAnsibleConnector(config *connector.ConnectorConfig) (connector.ActionConnector, error) {
	base := connector.NewBaseConnector(config)

	c := &AnsibleConnector{
		BaseConnector: base,
		baseURL:       config.Endpoint,
		token:         config.Credentials.APIKey,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 120 * time.Second
	}

	c.registerActions()
	return c, nil
}

func (c *AnsibleConnector) registerActions() {
	c.RegisterAction(connector.ActionDefinition{
		Name:        "run_playbook",
		DisplayName: "Run Playbook",
		Description: "Launch an Ansible job template, e.g. to isolate a host or block an IP at the firewall",
		Category:    "containment",
		RiskLevel:   "high",
		Parameters: []connector.ParameterDef{
			{Name: "job_template_id", DisplayName: "Job Template ID", Type: "string", Required: true},
			{Name: "limit", DisplayName: "Host Limit", Type: "string", Required: false, Description: "hostname or group to restrict the run to"},
			{Name: "extra_vars", DisplayName: "Extra Variables", Type: "object", Required: false},
		},
		Returns: []connector.ParameterDef{
			{Name: "job_id", Type: "string"},
			{Name: "status", Type: "string"},
		},
	}, c.runPlaybook)
}

func (c *AnsibleConnector) runPlaybook(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	templateID := params["job_template_id"].(string)

	payload := map[string]interface{}{}
	if limit, ok := params["limit"]; ok {
		payload["limit"] = limit
	}
	if extraVars, ok := params["extra_vars"]; ok {
		payload["extra_vars"] = extraVars
	}

	job, err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/v2/job_templates/%s/launch/", templateID), payload)
	if err != nil {
		return nil, err
	}

	jobID := fmt.Sprintf("%v", job["id"])
	status, err := c.pollJob(ctx, jobID)
	if err != nil {
		return map[string]interface{}{"job_id": jobID, "status": "unknown"}, err
	}
	if status != "successful" {
		return map[string]interface{}{"job_id": jobID, "status": status}, fmt.Errorf("ansible job %s finished with status %q", jobID, status)
	}

	return map[string]interface{}{"job_id": jobID, "status": status}, nil
}

func (c *AnsibleConnector) pollJob(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			job, err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/v2/jobs/%s/", jobID), nil)
			if err != nil {
				continue
			}
			status, _ := job["status"].(string)
			switch status {
			case "successful", "failed", "error", "canceled":
				return status, nil
			}
		}
	}
}

func (c *AnsibleConnector) apiCall(ctx context.Context, method, path string, payload map[string]interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ansible API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// Actions returns the list of action names.
func (c *AnsibleConnector) Actions() []string {
	return []string{"run_playbook"}
}

// Health checks Ansible connector health.
func (c *AnsibleConnector) Health(ctx context.Context) (*connector.HealthStatus, error) {
	start := time.Now()
	_, err := c.apiCall(ctx, "GET", "/api/v2/ping/", nil)
	if err != nil {
		return &connector.HealthStatus{Status: "unhealthy", Message: err.Error(), LastCheck: time.Now(), Latency: time.Since(start)}, nil
	}
	return &connector.HealthStatus{Status: "healthy", LastCheck: time.Now(), Latency: time.Since(start)}, nil
}
