// Package executor runs playbooks against alerts: it matches triggers,
// walks actions in declaration order, renders parameters, and dispatches
// each to the driver connector named by the action's type.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/connector"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/playbook"
)

// DriverRegistry resolves a playbook action type to the connector that
// serves it.
type DriverRegistry interface {
	GetConnector(actionType string) (connector.ActionConnector, error)
}

// defaultDriverAction is the connector action invoked when a playbook
// action's parameters don't specify one explicitly via the "action" key.
var defaultDriverAction = map[playbook.ActionType]string{
	playbook.ActionTheHive: "create_case",
	playbook.ActionCortex:  "run_analyzer",
	playbook.ActionAnsible: "run_playbook",
	playbook.ActionWebhook: "send",
	playbook.ActionCase:    "create_case",
	playbook.ActionNotify:  "send",
}

// Executor runs playbooks against alerts.
type Executor struct {
	drivers DriverRegistry
	runs    repository.PlaybookRunRepository
	logger  *slog.Logger
}

// NewExecutor creates a playbook executor. runs may be nil, in which case
// run history is not recorded.
func NewExecutor(drivers DriverRegistry, runs repository.PlaybookRunRepository, logger *slog.Logger) *Executor {
	return &Executor{drivers: drivers, runs: runs, logger: logger.With("component", "playbook-executor")}
}

// ActionResult is the outcome of dispatching a single playbook action.
type ActionResult struct {
	ActionName string
	ActionType playbook.ActionType
	Status     repository.PlaybookRunAction
	Duration   time.Duration
	Output     map[string]interface{}
	Err        error
}

// Matches reports whether every trigger condition on pb matches alert. A
// playbook with no triggers matches everything.
func (e *Executor) Matches(pb *playbook.Playbook, alert *playbook.Alert) bool {
	if len(pb.Triggers) == 0 {
		return true
	}
	data := alertToMap(alert)
	for _, cond := range pb.Triggers {
		if !matchCondition(&cond, data) {
			return false
		}
	}
	return true
}

// Run executes every action in pb against alert, in declaration order,
// recording each to the run log and stopping early if an action marked
// fail_stop errors or times out.
func (e *Executor) Run(ctx context.Context, pb *playbook.Playbook, alert *playbook.Alert) []ActionResult {
	data := alertToMap(alert)
	results := make([]ActionResult, 0, len(pb.Actions))

	for i := range pb.Actions {
		action := &pb.Actions[i]
		result := e.runAction(ctx, action, alert, data)
		results = append(results, result)

		if e.runs != nil {
			if err := e.recordRun(ctx, pb, alert, result); err != nil {
				e.logger.Error("record playbook run", "error", err, "playbook", pb.Name, "action", action.Name)
			}
		}

		if action.FailStop && (result.Status == repository.RunActionError || result.Status == repository.RunActionTimeout) {
			e.logger.Warn("stopping playbook after failed action", "playbook", pb.Name, "action", action.Name, "status", result.Status)
			break
		}
	}

	return results
}

func (e *Executor) runAction(ctx context.Context, action *playbook.Action, alert *playbook.Alert, data map[string]interface{}) ActionResult {
	start := time.Now()

	if !conditionsMatch(action.Conditions, data) {
		return ActionResult{ActionName: action.Name, ActionType: action.Type, Status: repository.RunActionSkipped, Duration: time.Since(start)}
	}

	params, err := renderParameters(action.Parameters, alert)
	if err != nil {
		return ActionResult{ActionName: action.Name, ActionType: action.Type, Status: repository.RunActionError, Duration: time.Since(start), Err: fmt.Errorf("render parameters: %w", err)}
	}

	conn, err := e.drivers.GetConnector(string(action.Type))
	if err != nil {
		return ActionResult{ActionName: action.Name, ActionType: action.Type, Status: repository.RunActionError, Duration: time.Since(start), Err: fmt.Errorf("resolve driver %s: %w", action.Type, err)}
	}

	driverAction := defaultDriverAction[action.Type]
	if v, ok := params["action"].(string); ok && v != "" {
		driverAction = v
	}

	timeout := time.Duration(action.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := conn.Execute(actionCtx, driverAction, params)
	duration := time.Since(start)

	if err != nil {
		if actionCtx.Err() == context.DeadlineExceeded {
			return ActionResult{ActionName: action.Name, ActionType: action.Type, Status: repository.RunActionTimeout, Duration: duration, Err: err}
		}
		return ActionResult{ActionName: action.Name, ActionType: action.Type, Status: repository.RunActionError, Duration: duration, Err: err}
	}

	return ActionResult{ActionName: action.Name, ActionType: action.Type, Status: repository.RunActionOK, Duration: duration, Output: output}
}

func conditionsMatch(conditions []playbook.Condition, data map[string]interface{}) bool {
	for _, cond := range conditions {
		if !matchCondition(&cond, data) {
			return false
		}
	}
	return true
}

// templateFuncs exposes only safe, side-effect-free string helpers to action
// parameter templates. There is no access to the alert beyond the fields
// passed as the template root, and no function here can read files, make
// network calls, or otherwise escape the rendered string.
var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
	"trim":  strings.TrimSpace,
}

// renderParameters runs every action parameter value through text/template
// with alert as the root object, so values can reference "{{.Title}}",
// "{{.Severity}}", "{{.Source.Hostname}}", and so on.
func renderParameters(params map[string]string, alert *playbook.Alert) (map[string]interface{}, error) {
	rendered := make(map[string]interface{}, len(params))

	for key, raw := range params {
		tmpl, err := template.New(key).Funcs(templateFuncs).Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse template for %q: %w", key, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, alert); err != nil {
			return nil, fmt.Errorf("render template for %q: %w", key, err)
		}

		rendered[key] = buf.String()
	}

	return rendered, nil
}

func (e *Executor) recordRun(ctx context.Context, pb *playbook.Playbook, alert *playbook.Alert, result ActionResult) error {
	run := &repository.PlaybookRun{
		TenantID:   pb.TenantID,
		PlaybookID: pb.ID,
		AlertID:    alert.ID,
		ActionName: result.ActionName,
		ActionType: string(result.ActionType),
		Status:     result.Status,
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		run.Error = result.Err.Error()
	}
	return e.runs.Append(ctx, run)
}
