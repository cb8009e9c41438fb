package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-siem/nightwatch/pkg/bus"
)

func TestHandleDiscardsUndecodableMessage(t *testing.T) {
	b := New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := b.Handle(context.Background(), bus.Message{Topic: bus.TopicEnrichedLogs, Value: []byte("not json")})

	assert.NoError(t, err)
	assert.Equal(t, uint64(1), b.Stats()["consumed"])
	assert.Equal(t, uint64(1), b.Stats()["decode_errors"])
	assert.Equal(t, uint64(0), b.Stats()["engine_errors"])
}
