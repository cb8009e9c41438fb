package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAlert struct {
	id, tenantID, severity, title, status string
}

func (a fakeAlert) GetID() string      { return a.id }
func (a fakeAlert) GetTenantID() string { return a.tenantID }
func (a fakeAlert) GetSeverity() string { return a.severity }
func (a fakeAlert) GetTitle() string    { return a.title }
func (a fakeAlert) GetStatus() string   { return a.status }
func (a fakeAlert) ToJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"id": a.id, "title": a.title})
}

func TestDiscordPublisherSendsColoredEmbed(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pub := NewDiscordPublisher(PublisherConfig{
		Name:     "discord",
		Endpoint: server.URL,
		Timeout:  time.Second,
	}, testLogger())

	alert := fakeAlert{id: "a1", severity: "critical", title: "brute force detected", status: "open"}
	result, err := pub.Publish(context.Background(), alert)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, PublisherTypeDiscord, pub.Type())

	embeds := gotBody["embeds"].([]interface{})
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "brute force detected", embed["title"])
}

func TestDiscordPublisherReturnsErrorOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := NewDiscordPublisher(PublisherConfig{Name: "discord", Endpoint: server.URL, Timeout: time.Second}, testLogger())
	result, err := pub.Publish(context.Background(), fakeAlert{id: "a2", severity: "low", title: "x"})
	assert.Error(t, err)
	assert.False(t, result.Success)
}

func TestTelegramPublisherNameTypeClose(t *testing.T) {
	pub := NewTelegramPublisher(PublisherConfig{Name: "telegram", APIKey: "bot-token", ChatID: "12345"}, testLogger())
	assert.Equal(t, "telegram", pub.Name())
	assert.Equal(t, PublisherTypeTelegram, pub.Type())
	assert.NoError(t, pub.Close())
}

func TestEmailPublisherRequiresRecipients(t *testing.T) {
	pub := NewEmailPublisher(PublisherConfig{
		Name:      "email",
		SMTPHost:  "localhost",
		SMTPPort:  25,
		EmailFrom: "alerts@nightwatch.local",
	}, testLogger())

	result, err := pub.Publish(context.Background(), fakeAlert{id: "a4", severity: "medium", title: "test"})
	assert.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no email recipients configured", result.Error)
}

func TestEmailPublisherType(t *testing.T) {
	pub := NewEmailPublisher(PublisherConfig{Name: "email"}, testLogger())
	assert.Equal(t, PublisherTypeEmail, pub.Type())
	assert.Equal(t, "email", pub.Name())
	assert.NoError(t, pub.Close())
}
