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

// NotifyConnector posts a short operator-facing message to a Slack/Discord
// incoming-webhook URL, the playbook-side counterpart to the alert
// dispatcher's channel notifications (spec §4.9) for ad hoc notes a
// playbook action wants to add mid-run.
type NotifyConnector struct {
	*connector.BaseConnector
	webhookURL string
	httpClient *http.Client
}

// NewNotifyConnector creates a new notify connector.
func NewNotifyConnector(config *connector.ConnectorConfig) (connector.ActionConnector, error) {
	base := connector.NewBaseConnector(config)

	c := &NotifyConnector{
		BaseConnector: base,
		webhookURL:    config.Endpoint,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 10 * time.Second
	}

	c.registerActions()
	return c, nil
}

func (c *NotifyConnector) registerActions() {
	c.RegisterAction(connector.ActionDefinition{
		Name:        "send",
		DisplayName: "Send Notification",
		Description: "Post a short message to the configured Slack/Discord-style webhook",
		Category:    "notification",
		RiskLevel:   "low",
		Parameters: []connector.ParameterDef{
			{Name: "message", DisplayName: "Message", Type: "string", Required: true},
			{Name: "url", DisplayName: "Webhook URL", Type: "string", Required: false, Description: "overrides the connector's configured endpoint"},
		},
	}, c.send)
}

func (c *NotifyConnector) send(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	url := c.webhookURL
	if v, ok := params["url"].(string); ok && v != "" {
		url = v
	}
	if url == "" {
		return nil, fmt.Errorf("no webhook URL configured")
	}

	payload, err := json.Marshal(map[string]interface{}{"text": fmt.Sprintf("%v", params["message"])})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("notify webhook error (status %d): %s", resp.StatusCode, string(body))
	}

	return map[string]interface{}{"status": "sent"}, nil
}

// Actions returns the list of action names.
func (c *NotifyConnector) Actions() []string { return []string{"send"} }

// Health checks that the configured webhook URL is reachable is skipped
// here: a send-only webhook has no status endpoint to probe. Report
// healthy whenever an endpoint is configured.
func (c *NotifyConnector) Health(ctx context.Context) (*connector.HealthStatus, error) {
	if c.webhookURL == "" {
		return &connector.HealthStatus{Status: "degraded", Message: "no webhook URL configured", LastCheck: time.Now()}, nil
	}
	return &connector.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
}
