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

// CortexConnector dispatches observables to TheHive Cortex analyzers for
// enrichment (reputation lookups, sandbox detonation, etc.).
type CortexConnector struct {
	*connector.BaseConnector
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCortexConnector creates a new Cortex connector.
func NewCortexConnector(config *connector.ConnectorConfig) (connector.ActionConnector, error) {
	base := connector.NewBaseConnector(config)

	c := &CortexConnector{
		BaseConnector: base,
		baseURL:       config.Endpoint,
		apiKey:        config.Credentials.APIKey,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 60 * time.Second
	}

	c.registerActions()
	return c, nil
}

func (c *CortexConnector) registerActions() {
	c.RegisterAction(connector.ActionDefinition{
		Name:        "run_analyzer",
		DisplayName: "Run Analyzer",
		Description: "Submit an observable to a Cortex analyzer and wait for the report",
		Category:    "enrichment",
		RiskLevel:   "low",
		Parameters: []connector.ParameterDef{
			{Name: "analyzer", DisplayName: "Analyzer", Type: "string", Required: true, Description: "e.g. VirusTotal_GetReport, AbuseIPDB"},
			{Name: "data_type", DisplayName: "Data Type", Type: "string", Required: true},
			{Name: "data", DisplayName: "Data", Type: "string", Required: true},
			{Name: "tlp", DisplayName: "TLP", Type: "int", Required: false},
		},
		Returns: []connector.ParameterDef{
			{Name: "job_id", Type: "string"},
			{Name: "status", Type: "string"},
			{Name: "report", Type: "object"},
		},
	}, c.runAnalyzer)
}

func (c *CortexConnector) runAnalyzer(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	analyzer := params["analyzer"].(string)

	payload := map[string]interface{}{
		"data":     params["data"],
		"dataType": params["data_type"],
		"tlp":      params["tlp"],
	}

	job, err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/analyzer/%s/run", analyzer), payload)
	if err != nil {
		return nil, err
	}
	jobID := fmt.Sprintf("%v", job["id"])

	report, err := c.waitForReport(ctx, jobID)
	if err != nil {
		return map[string]interface{}{"job_id": jobID, "status": "pending"}, err
	}

	return map[string]interface{}{
		"job_id": jobID,
		"status": "success",
		"report": report,
	}, nil
}

func (c *CortexConnector) waitForReport(ctx context.Context, jobID string) (map[string]interface{}, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			report, err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/job/%s/report", jobID), nil)
			if err != nil {
				continue
			}
			status, _ := report["status"].(string)
			if status == "Success" || status == "Failure" {
				return report, nil
			}
		}
	}
}

func (c *CortexConnector) apiCall(ctx context.Context, method, path string, payload map[string]interface{}) (map[string]interface{}, error) {
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Cortex API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// Actions returns the list of action names.
func (c *CortexConnector) Actions() []string {
	return []string{"run_analyzer"}
}

// Health checks Cortex connector health.
func (c *CortexConnector) Health(ctx context.Context) (*connector.HealthStatus, error) {
	start := time.Now()
	_, err := c.apiCall(ctx, "GET", "/api/status", nil)
	if err != nil {
		return &connector.HealthStatus{Status: "unhealthy", Message: err.Error(), LastCheck: time.Now(), Latency: time.Since(start)}, nil
	}
	return &connector.HealthStatus{Status: "healthy", LastCheck: time.Now(), Latency: time.Since(start)}, nil
}
