package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/rule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func simpleLoginFailureRule(id string) *rule.Rule {
	return &rule.Rule{
		ID:       id,
		Name:     "repeated failed logins",
		Type:     rule.TypeSimple,
		Severity: "medium",
		ParsedConditions: &rule.ParsedConditions{
			Logic: rule.LogicAnd,
			Conditions: []*rule.Condition{
				{Field: "outcome", Operator: rule.OpEquals, Value: "failure", Required: true},
			},
		},
	}
}

func TestExecuteMatchesSimpleRuleAgainstEventData(t *testing.T) {
	ex := NewExecutor(4, time.Second, nil, nil, nil, nil, testLogger())
	r := simpleLoginFailureRule("r1")

	ev := &event.Event{ID: "e1", Timestamp: time.Now(), Data: map[string]interface{}{"outcome": "failure"}}
	result, err := ex.Execute(context.Background(), r, ev)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "r1", result.RuleID)

	ev2 := &event.Event{ID: "e2", Timestamp: time.Now(), Data: map[string]interface{}{"outcome": "success"}}
	result2, err := ex.Execute(context.Background(), r, ev2)
	require.NoError(t, err)
	assert.Nil(t, result2)
}

func TestExecuteReadsEnrichedFieldsOverData(t *testing.T) {
	ex := NewExecutor(4, time.Second, nil, nil, nil, nil, testLogger())
	r := &rule.Rule{
		ID:   "r2",
		Type: rule.TypeSimple,
		ParsedConditions: &rule.ParsedConditions{
			Conditions: []*rule.Condition{
				{Field: "geo.country", Operator: rule.OpEquals, Value: "RU", Required: true},
			},
		},
	}

	ev := &event.Event{
		ID:       "e3",
		Data:     map[string]interface{}{"geo": map[string]interface{}{"country": "US"}},
		Enriched: map[string]interface{}{"geo": map[string]interface{}{"country": "RU"}},
	}

	result, err := ex.Execute(context.Background(), r, ev)
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestExecuteSkipsThrottleCheckWithoutAThrottler(t *testing.T) {
	ex := NewExecutor(4, time.Second, nil, nil, nil, nil, testLogger())

	r := simpleLoginFailureRule("r3")
	r.ThrottleWindow = time.Minute

	ev := &event.Event{ID: "e4", Data: map[string]interface{}{"outcome": "failure"}}

	first, err := ex.Execute(context.Background(), r, ev)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := ex.Execute(context.Background(), r, ev)
	require.NoError(t, err)
	require.NotNil(t, second, "a rule with no throttler configured is never suppressed")
}

func TestExecuteMatchesOrLogicOnEitherCondition(t *testing.T) {
	ex := NewExecutor(4, time.Second, nil, nil, nil, nil, testLogger())
	r := &rule.Rule{
		ID:   "r5",
		Type: rule.TypeSimple,
		ParsedConditions: &rule.ParsedConditions{
			Logic: rule.LogicOr,
			Conditions: []*rule.Condition{
				{Field: "outcome", Operator: rule.OpEquals, Value: "failure", Required: true},
				{Field: "severity", Operator: rule.OpEquals, Value: "critical", Required: true},
			},
		},
	}

	ev := &event.Event{ID: "e6", Data: map[string]interface{}{"outcome": "success", "severity": "critical"}}
	result, err := ex.Execute(context.Background(), r, ev)
	require.NoError(t, err)
	require.NotNil(t, result, "or logic should match when only the second condition is true")

	ev2 := &event.Event{ID: "e7", Data: map[string]interface{}{"outcome": "success", "severity": "low"}}
	result2, err := ex.Execute(context.Background(), r, ev2)
	require.NoError(t, err)
	assert.Nil(t, result2)
}

func TestExecuteSuppressesMatchOnNegatedFilterGroup(t *testing.T) {
	ex := NewExecutor(4, time.Second, nil, nil, nil, nil, testLogger())
	r := &rule.Rule{
		ID:   "r6",
		Type: rule.TypeSimple,
		ParsedConditions: &rule.ParsedConditions{
			Logic: rule.LogicAnd,
			Groups: []*rule.ConditionGroup{
				{Logic: rule.LogicAnd, Conditions: []*rule.Condition{
					{Field: "process.name", Operator: rule.OpEndsWith, Value: ".exe", Required: true},
				}},
				{Logic: rule.LogicAnd, Negate: true, Conditions: []*rule.Condition{
					{Field: "process.parent_name", Operator: rule.OpEquals, Value: "trusted_updater.exe", Required: true},
				}},
			},
		},
	}

	blocked := &event.Event{ID: "e8", Data: map[string]interface{}{
		"process": map[string]interface{}{"name": "payload.exe", "parent_name": "trusted_updater.exe"},
	}}
	result, err := ex.Execute(context.Background(), r, blocked)
	require.NoError(t, err)
	assert.Nil(t, result, "filter group should negate the match when its condition is true")

	allowed := &event.Event{ID: "e9", Data: map[string]interface{}{
		"process": map[string]interface{}{"name": "payload.exe", "parent_name": "explorer.exe"},
	}}
	result2, err := ex.Execute(context.Background(), r, allowed)
	require.NoError(t, err)
	assert.NotNil(t, result2)
}

func TestExecuteErrorsOnRuleWithoutConditions(t *testing.T) {
	ex := NewExecutor(4, time.Second, nil, nil, nil, nil, testLogger())
	r := &rule.Rule{ID: "r4", Type: rule.TypeSimple, ParsedConditions: nil}

	result, err := ex.Execute(context.Background(), r, &event.Event{ID: "e5", Data: map[string]interface{}{}})
	assert.Nil(t, result)
	assert.Error(t, err)
}
