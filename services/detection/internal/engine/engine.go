// Package engine provides the core detection engine implementation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/rule"
)

// EngineState represents the engine state.
type EngineState string

const (
	StateIdle     EngineState = "idle"
	StateRunning  EngineState = "running"
	StateStopping EngineState = "stopping"
	StateStopped  EngineState = "stopped"
)

// DetectionResult represents a detection match.
type DetectionResult struct {
	RuleID          string                 `json:"rule_id"`
	RuleName        string                 `json:"rule_name"`
	Severity        string                 `json:"severity"`
	MatchedEvents   []MatchedEvent         `json:"matched_events"`
	Timestamp       time.Time              `json:"timestamp"`
	Context         map[string]interface{} `json:"context,omitempty"`
	MITRETactics    []string               `json:"mitre_tactics,omitempty"`
	MITRETechniques []string               `json:"mitre_techniques,omitempty"`
}

// MatchedEvent represents an event that matched a rule.
type MatchedEvent struct {
	EventID       string                 `json:"event_id"`
	Timestamp     time.Time              `json:"timestamp"`
	MatchedFields map[string]interface{} `json:"matched_fields"`
}

// getNestedValue retrieves a value from a nested map using dot notation.
func getNestedValue(data map[string]interface{}, path string) (interface{}, bool) {
	parts := splitDots(path)
	var current interface{} = data

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func splitDots(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	// Worker settings
	NumWorkers     int           `json:"num_workers"`
	BufferSize     int           `json:"buffer_size"`
	ProcessTimeout time.Duration `json:"process_timeout"`

	// Batch settings
	BatchSize    int           `json:"batch_size"`
	BatchTimeout time.Duration `json:"batch_timeout"`

	// Rule settings, as a standard 5-field cron expression (e.g. "*/1 * * * *"
	// to poll every minute).
	RuleReloadSchedule string `json:"rule_reload_schedule"`
	MaxConcurrentRules int    `json:"max_concurrent_rules"`
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		NumWorkers:         8,
		BufferSize:         10000,
		ProcessTimeout:     5 * time.Second,
		BatchSize:          100,
		BatchTimeout:       time.Second,
		RuleReloadSchedule: "*/1 * * * *",
		MaxConcurrentRules: 50,
	}
}

// Engine is the core detection engine. It runs each enabled, active rule
// whose declared scope covers the event, across all four evaluator types the
// Executor dispatches to, and emits one DetectionResult per match.
type Engine struct {
	config     EngineConfig
	ruleLoader *rule.Loader
	cron       *cron.Cron
	executor   *Executor

	eventCh  chan *event.Event
	resultCh chan *DetectionResult

	rules   []*rule.Rule
	rulesMu sync.RWMutex

	state  atomic.Value
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	// Metrics
	eventsProcessed atomic.Uint64
	detections      atomic.Uint64
	ruleExecutions  atomic.Uint64
	errors          atomic.Uint64
}

// NewEngine creates a new detection engine.
func NewEngine(cfg EngineConfig, ruleLoader *rule.Loader, executor *Executor, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		config:     cfg,
		ruleLoader: ruleLoader,
		executor:   executor,
		eventCh:    make(chan *event.Event, cfg.BufferSize),
		resultCh:   make(chan *DetectionResult, cfg.BufferSize),
		cron:       cron.New(),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With("component", "detection-engine"),
	}

	e.state.Store(StateIdle)

	return e
}

// Start starts the detection engine.
func (e *Engine) Start() error {
	if e.state.Load().(EngineState) == StateRunning {
		return fmt.Errorf("engine already running")
	}

	e.logger.Info("starting detection engine", "workers", e.config.NumWorkers)

	if err := e.loadRules(); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	for i := 0; i < e.config.NumWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	if e.config.RuleReloadSchedule != "" {
		_, err := e.cron.AddFunc(e.config.RuleReloadSchedule, func() {
			if err := e.loadRules(); err != nil {
				e.logger.Error("failed to reload rules", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid rule reload schedule %q: %w", e.config.RuleReloadSchedule, err)
		}
		e.cron.Start()
	}

	e.state.Store(StateRunning)
	e.logger.Info("detection engine started", "rules_loaded", len(e.rules))

	return nil
}

// Stop stops the detection engine.
func (e *Engine) Stop() error {
	if e.state.Load().(EngineState) != StateRunning {
		return nil
	}

	e.logger.Info("stopping detection engine")
	e.state.Store(StateStopping)

	e.cancel()
	close(e.eventCh)

	stopCtx := e.cron.Stop()
	<-stopCtx.Done()

	e.wg.Wait()
	close(e.resultCh)

	e.state.Store(StateStopped)
	e.logger.Info("detection engine stopped")

	return nil
}

// ProcessEvent submits an event for detection.
func (e *Engine) ProcessEvent(ev *event.Event) error {
	if e.state.Load().(EngineState) != StateRunning {
		return fmt.Errorf("engine not running")
	}

	select {
	case e.eventCh <- ev:
		return nil
	case <-time.After(e.config.ProcessTimeout):
		return fmt.Errorf("event channel full, dropping event")
	}
}

// ProcessBatch submits a batch of events for detection.
func (e *Engine) ProcessBatch(events []*event.Event) error {
	for _, ev := range events {
		if err := e.ProcessEvent(ev); err != nil {
			e.errors.Add(1)
			e.logger.Warn("failed to process event", "event_id", ev.ID, "error", err)
		}
	}
	return nil
}

// Results returns the results channel.
func (e *Engine) Results() <-chan *DetectionResult {
	return e.resultCh
}

// State returns the current engine state.
func (e *Engine) State() EngineState {
	return e.state.Load().(EngineState)
}

// ReloadRules forces a rule reload.
func (e *Engine) ReloadRules() error {
	return e.loadRules()
}

// Stats returns engine statistics.
func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"state":            string(e.state.Load().(EngineState)),
		"events_processed": e.eventsProcessed.Load(),
		"detections":       e.detections.Load(),
		"rule_executions":  e.ruleExecutions.Load(),
		"errors":           e.errors.Load(),
		"rules_count":      len(e.GetRules()),
		"queue_depth":      len(e.eventCh),
	}
}

// GetRules returns all loaded rules.
func (e *Engine) GetRules() []*rule.Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return e.rules
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()

	logger := e.logger.With("worker_id", id)
	logger.Debug("worker started")

	for ev := range e.eventCh {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		e.processEvent(ev)
	}

	logger.Debug("worker stopped")
}

func (e *Engine) processEvent(ev *event.Event) {
	e.eventsProcessed.Add(1)

	rules := e.GetRules()
	for _, r := range rules {
		if !r.IsEnabled || r.Status != rule.StatusActive {
			continue
		}
		if !candidateForEvent(r, ev) {
			continue
		}

		e.ruleExecutions.Add(1)

		result, err := e.executor.Execute(e.ctx, r, ev)
		if err != nil {
			e.errors.Add(1)
			e.logger.Error("rule execution failed", "rule_id", r.ID, "error", err)
			continue
		}

		if result != nil {
			e.detections.Add(1)
			select {
			case e.resultCh <- result:
			default:
				e.logger.Warn("result channel full, dropping detection")
			}
		}
	}
}

// candidateForEvent prunes rules whose declared EventTypes/Sources don't
// include this event, so a tenant with thousands of rules doesn't run every
// one of them against every event. A rule with no declared scope matches
// everything.
func candidateForEvent(r *rule.Rule, ev *event.Event) bool {
	if len(r.EventTypes) > 0 && !contains(r.EventTypes, ev.EventType) {
		return false
	}
	if len(r.Sources) > 0 && !contains(r.Sources, ev.Source) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (e *Engine) loadRules() error {
	rules, err := e.ruleLoader.LoadAll(e.ctx)
	if err != nil {
		return err
	}

	validated := make([]*rule.Rule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			e.logger.Warn("invalid rule, skipping", "rule_id", r.ID, "error", err)
			continue
		}
		validated = append(validated, r)
	}

	e.rulesMu.Lock()
	e.rules = validated
	e.rulesMu.Unlock()

	e.logger.Info("rules loaded", "total", len(rules), "valid", len(validated))

	return nil
}
