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

// WebhookConnector posts arbitrary JSON payloads to an operator-supplied
// URL, the catch-all driver for integrations with no dedicated connector.
type WebhookConnector struct {
	*connector.BaseConnector
	httpClient *http.Client
}

// NewWebhookConnector creates a new generic webhook connector.
func NewWebhookConnector(config *connector.ConnectorConfig) (connector.ActionConnector, error) {
	base := connector.NewBaseConnector(config)

	c := &WebhookConnector{
		BaseConnector: base,
		httpClient:    &http.Client{Timeout: config.Timeout},
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 15 * time.Second
	}

	c.registerActions()
	return c, nil
}

func (c *WebhookConnector) registerActions() {
	c.RegisterAction(connector.ActionDefinition{
		Name:        "send",
		DisplayName: "Send Webhook",
		Description: "POST a JSON payload to a webhook URL",
		Category:    "notification",
		RiskLevel:   "low",
		Parameters: []connector.ParameterDef{
			{Name: "url", DisplayName: "URL", Type: "string", Required: true},
			{Name: "method", DisplayName: "Method", Type: "string", Required: false, Options: []string{"POST", "PUT"}},
			{Name: "payload", DisplayName: "Payload", Type: "object", Required: true},
			{Name: "headers", DisplayName: "Headers", Type: "object", Required: false},
		},
		Returns: []connector.ParameterDef{
			{Name: "status_code", Type: "int"},
		},
	}, c.send)
}

func (c *WebhookConnector) send(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	url, ok := params["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("webhook: missing url parameter")
	}

	method := "POST"
	if m, ok := params["method"].(string); ok && m != "" {
		method = m
	}

	data, err := json.Marshal(params["payload"])
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if headers, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return map[string]interface{}{"status_code": resp.StatusCode}, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return map[string]interface{}{"status_code": resp.StatusCode}, nil
}

// Actions returns the list of action names.
func (c *WebhookConnector) Actions() []string {
	return []string{"send"}
}

// Health always reports healthy; there is no fixed endpoint to probe.
func (c *WebhookConnector) Health(ctx context.Context) (*connector.HealthStatus, error) {
	return &connector.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
}
