// Package consumer bridges the shared message bus into the detection
// engine: it unmarshals enriched-log messages and hands each one to the
// engine for rule evaluation.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/engine"
)

// Bridge drains a bus.Consumer and feeds each decoded event into a
// detection engine.
type Bridge struct {
	engine *engine.Engine
	logger *slog.Logger

	consumed   atomic.Uint64
	decodeErrs atomic.Uint64
	engineErrs atomic.Uint64
}

// New creates a Bridge wired to the given engine.
func New(detectionEngine *engine.Engine, logger *slog.Logger) *Bridge {
	return &Bridge{
		engine: detectionEngine,
		logger: logger.With("component", "detection-consumer"),
	}
}

// Handle implements bus.Handler, decoding msg.Value as an event.Event and
// submitting it to the engine for evaluation.
func (b *Bridge) Handle(ctx context.Context, msg bus.Message) error {
	b.consumed.Add(1)

	var ev event.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		b.decodeErrs.Add(1)
		b.logger.Error("discarding undecodable message", "topic", msg.Topic, "error", err)
		return nil
	}

	if err := b.engine.ProcessEvent(&ev); err != nil {
		b.engineErrs.Add(1)
		return fmt.Errorf("process event %s: %w", ev.ID, err)
	}

	return nil
}

// Stats returns bridge-level counters.
func (b *Bridge) Stats() map[string]uint64 {
	return map[string]uint64{
		"consumed":     b.consumed.Load(),
		"decode_errors": b.decodeErrs.Load(),
		"engine_errors": b.engineErrs.Load(),
	}
}
