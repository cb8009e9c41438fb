// Package engine provides the core detection engine implementation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/anomaly"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/mitre"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/rule"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/sigma"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/throttle"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/yara"
)

// Executor executes detection rules against events, dispatching to one of
// four evaluators by rule type. A panicking or erroring evaluator never
// takes down the worker: the rule is counted as errored for that event and
// evaluation moves on to the next rule.
type Executor struct {
	maxConcurrent int
	timeout       time.Duration
	semaphore     chan struct{}
	logger        *slog.Logger

	patternCache   map[string]*regexp.Regexp
	patternCacheMu sync.RWMutex

	sigmaEval       *sigma.Evaluator
	sigmaCache      map[string]*sigma.InternalRule
	sigmaCacheMu    sync.RWMutex

	yaraScanner     *yara.Scanner
	yaraCompiledVer map[string]int
	yaraMu          sync.Mutex

	anomalyModels *anomaly.Registry
	mitreMapper   *mitre.Mapper
	throttler     *throttle.Throttler

	executions atomic.Uint64
	matches    atomic.Uint64
	suppressed atomic.Uint64
	errors     atomic.Uint64
	timeouts   atomic.Uint64
	panics     atomic.Uint64
}

// NewExecutor creates a new rule executor.
func NewExecutor(maxConcurrent int, timeout time.Duration, throttler *throttle.Throttler, yaraScanner *yara.Scanner, anomalyModels *anomaly.Registry, mitreMapper *mitre.Mapper, logger *slog.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Executor{
		maxConcurrent:   maxConcurrent,
		timeout:         timeout,
		semaphore:       make(chan struct{}, maxConcurrent),
		logger:          logger.With("component", "executor"),
		patternCache:    make(map[string]*regexp.Regexp),
		sigmaEval:       sigma.NewEvaluator(),
		sigmaCache:      make(map[string]*sigma.InternalRule),
		yaraScanner:     yaraScanner,
		yaraCompiledVer: make(map[string]int),
		anomalyModels:   anomalyModels,
		mitreMapper:     mitreMapper,
		throttler:       throttler,
	}
}

// Execute runs a rule against an event.
func (e *Executor) Execute(ctx context.Context, r *rule.Rule, ev *event.Event) (result *DetectionResult, execErr error) {
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.timeout):
		e.timeouts.Add(1)
		return nil, fmt.Errorf("timeout waiting for executor slot")
	}

	e.executions.Add(1)

	defer func() {
		if p := recover(); p != nil {
			e.panics.Add(1)
			e.errors.Add(1)
			execErr = fmt.Errorf("rule %s panicked during evaluation: %v", r.ID, p)
			result = nil
		}
	}()

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var matched bool
	var matchedFields map[string]interface{}
	var err error

	switch r.Type {
	case rule.TypeSimple:
		matched, matchedFields, err = e.executeSimpleRule(execCtx, r, ev)
	case rule.TypeSigma:
		matched, matchedFields, err = e.executeSigmaRule(execCtx, r, ev)
	case rule.TypeYara:
		matched, matchedFields, err = e.executeYaraRule(execCtx, r, ev)
	case rule.TypeAnomaly:
		matched, matchedFields, err = e.executeAnomalyRule(execCtx, r, ev)
	default:
		return nil, fmt.Errorf("unsupported rule type: %s", r.Type)
	}

	if err != nil {
		e.errors.Add(1)
		return nil, err
	}

	if !matched {
		return nil, nil
	}

	if e.throttler != nil && r.ThrottleWindow > 0 {
		scope := r.ID
		if r.ThrottleField != "" {
			if v, ok := getNestedValue(effectiveData(ev), r.ThrottleField); ok {
				scope = fmt.Sprintf("%v", v)
			}
		}
		if !e.throttler.Allow(execCtx, throttle.Key(r.ID, scope), r.ThrottleWindow) {
			e.suppressed.Add(1)
			return nil, nil
		}
	}

	e.matches.Add(1)

	detectionResult := &DetectionResult{
		RuleID:   r.ID,
		RuleName: r.Name,
		Severity: r.Severity,
		Timestamp: time.Now(),
		MatchedEvents: []MatchedEvent{{
			EventID:       ev.ID,
			Timestamp:     ev.Timestamp,
			MatchedFields: matchedFields,
		}},
		MITRETactics:    r.MITRETactics,
		MITRETechniques: r.MITRETechniques,
	}

	if e.mitreMapper != nil && (len(r.MITRETactics) > 0 || len(r.MITRETechniques) > 0) {
		mapping := e.mitreMapper.MapToATTACK(r.MITRETechniques, r.MITRETactics)
		detectionResult.Context = map[string]interface{}{"mitre": mapping}
	}

	return detectionResult, nil
}

// Stats returns executor statistics.
func (e *Executor) Stats() map[string]interface{} {
	return map[string]interface{}{
		"executions": e.executions.Load(),
		"matches":    e.matches.Load(),
		"suppressed": e.suppressed.Load(),
		"errors":     e.errors.Load(),
		"timeouts":   e.timeouts.Load(),
	}
}

// effectiveData merges Enriched over Data so rules can match on fields the
// Processor added (geoip, threat-intel, directory lookups) as well as the
// original payload.
func effectiveData(ev *event.Event) map[string]interface{} {
	if len(ev.Enriched) == 0 {
		return ev.Data
	}
	merged := make(map[string]interface{}, len(ev.Data)+len(ev.Enriched))
	for k, v := range ev.Data {
		merged[k] = v
	}
	for k, v := range ev.Enriched {
		merged[k] = v
	}
	return merged
}

func (e *Executor) executeSimpleRule(ctx context.Context, r *rule.Rule, ev *event.Event) (bool, map[string]interface{}, error) {
	conditions := r.ParsedConditions
	if conditions == nil {
		return false, nil, fmt.Errorf("rule has no conditions")
	}

	data := effectiveData(ev)

	if len(conditions.Groups) > 0 {
		return e.evaluateGroups(conditions.Groups, conditions.Logic, data)
	}
	return e.evaluateConditionList(conditions.Conditions, conditions.Logic, data)
}

// evaluateConditionList matches a flat condition list under a single
// and/or logic, the shape most simple rules use.
func (e *Executor) evaluateConditionList(conditions []*rule.Condition, logic rule.LogicType, data map[string]interface{}) (bool, map[string]interface{}, error) {
	matchedFields := make(map[string]interface{})

	if logic == rule.LogicOr {
		matched := false
		for _, cond := range conditions {
			ok, value := e.evaluateCondition(cond, data)
			if ok {
				matched = true
				matchedFields[cond.Field] = value
			}
		}
		return matched, matchedFields, nil
	}

	for _, cond := range conditions {
		matched, value := e.evaluateCondition(cond, data)
		if !matched && cond.Required {
			return false, nil, nil
		}
		if matched {
			matchedFields[cond.Field] = value
		}
	}
	return len(matchedFields) > 0, matchedFields, nil
}

// evaluateGroups combines a list of condition groups (each with its own
// and/or logic and optional negation) under the rule's top-level logic.
func (e *Executor) evaluateGroups(groups []*rule.ConditionGroup, logic rule.LogicType, data map[string]interface{}) (bool, map[string]interface{}, error) {
	matchedFields := make(map[string]interface{})
	results := make([]bool, 0, len(groups))

	for _, group := range groups {
		matched, fields, err := e.evaluateConditionList(group.Conditions, group.Logic, data)
		if err != nil {
			return false, nil, err
		}
		if group.Negate {
			matched = !matched
		}
		results = append(results, matched)
		if matched {
			for field, value := range fields {
				matchedFields[field] = value
			}
		}
	}

	var overall bool
	if logic == rule.LogicOr {
		overall = anyTrue(results)
	} else {
		overall = allTrue(results)
	}
	if !overall {
		return false, nil, nil
	}
	return true, matchedFields, nil
}

func allTrue(results []bool) bool {
	for _, r := range results {
		if !r {
			return false
		}
	}
	return len(results) > 0
}

func anyTrue(results []bool) bool {
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}

func (e *Executor) executeSigmaRule(ctx context.Context, r *rule.Rule, ev *event.Event) (bool, map[string]interface{}, error) {
	internal, err := e.sigmaRuleFor(r)
	if err != nil {
		return false, nil, err
	}

	result := e.sigmaEval.Evaluate(internal, effectiveData(ev))
	return result.Matched, result.MatchedFields, nil
}

// sigmaRuleFor converts a rule's raw Sigma YAML to the evaluator's internal
// form once, caching it so repeat evaluations against the rule don't
// re-parse its YAML on every event.
func (e *Executor) sigmaRuleFor(r *rule.Rule) (*sigma.InternalRule, error) {
	e.sigmaCacheMu.RLock()
	cached, ok := e.sigmaCache[r.ID]
	e.sigmaCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	converter := sigma.NewConverter()
	parsed, err := converter.ConvertYAML(r.RawContent)
	if err != nil {
		return nil, fmt.Errorf("convert sigma rule %s: %w", r.ID, err)
	}

	e.sigmaCacheMu.Lock()
	e.sigmaCache[r.ID] = parsed
	e.sigmaCacheMu.Unlock()

	return parsed, nil
}

// ForgetSigmaRule evicts a cached conversion, e.g. after a rule edit.
func (e *Executor) ForgetSigmaRule(ruleID string) {
	e.sigmaCacheMu.Lock()
	delete(e.sigmaCache, ruleID)
	e.sigmaCacheMu.Unlock()
}

func (e *Executor) executeYaraRule(ctx context.Context, r *rule.Rule, ev *event.Event) (bool, map[string]interface{}, error) {
	if r.Yara == nil || r.Yara.ContentField == "" || e.yaraScanner == nil {
		return false, nil, nil
	}

	value, ok := getNestedValue(effectiveData(ev), r.Yara.ContentField)
	if !ok {
		return false, nil, nil
	}

	if err := e.ensureYaraCompiled(r); err != nil {
		return false, nil, err
	}

	content, err := yara.ExtractContent(value, r.Yara.ContentIsPath)
	if err != nil {
		return false, nil, fmt.Errorf("extract yara content: %w", err)
	}

	scanResult, err := e.yaraScanner.ScanBytes(r.ID, content)
	if err != nil {
		return false, nil, fmt.Errorf("yara scan: %w", err)
	}
	if !scanResult.Matched {
		return false, nil, nil
	}

	return true, map[string]interface{}{"yara_rules": scanResult.MatchedRules}, nil
}

func (e *Executor) ensureYaraCompiled(r *rule.Rule) error {
	e.yaraMu.Lock()
	defer e.yaraMu.Unlock()

	if v, ok := e.yaraCompiledVer[r.ID]; ok && v == r.Version {
		return nil
	}

	if err := e.yaraScanner.Compile(r.ID, r.RawContent); err != nil {
		return err
	}
	e.yaraCompiledVer[r.ID] = r.Version
	return nil
}

func (e *Executor) executeAnomalyRule(ctx context.Context, r *rule.Rule, ev *event.Event) (bool, map[string]interface{}, error) {
	if r.Anomaly == nil || e.anomalyModels == nil {
		return false, nil, nil
	}

	data := effectiveData(ev)
	numeric := make(map[string]float64)
	for _, field := range r.Anomaly.NumericFields {
		v, ok := getNestedValue(data, field)
		if !ok {
			continue
		}
		f := toFloat64(v)
		if f != nil {
			numeric[field] = *f
		}
	}

	categorical := make(map[string]string)
	for _, field := range r.Anomaly.CategoricalFields {
		v, ok := getNestedValue(data, field)
		if !ok {
			continue
		}
		categorical[field] = fmt.Sprintf("%v", v)
	}

	if len(numeric) == 0 && len(categorical) == 0 {
		return false, nil, nil
	}

	threshold := r.Anomaly.SigmaThreshold
	if threshold <= 0 {
		threshold = 3.0
	}

	scores := e.anomalyModels.Evaluate(ev.EventType, numeric, categorical, r.Anomaly.MinSamples)

	matchedFields := make(map[string]interface{})
	var outlier bool
	for _, s := range scores {
		if s.HasBaseline && s.MaxSigma >= threshold {
			outlier = true
			matchedFields[s.Field] = s.MaxSigma
		}
	}

	return outlier, matchedFields, nil
}

func (e *Executor) evaluateCondition(cond *rule.Condition, data map[string]interface{}) (bool, interface{}) {
	value, found := getNestedValue(data, cond.Field)
	if !found {
		return false, nil
	}

	switch cond.Operator {
	case rule.OpEquals:
		return e.compareEquals(value, cond.Value), value
	case rule.OpNotEquals:
		return !e.compareEquals(value, cond.Value), value
	case rule.OpContains:
		return e.contains(value, cond.Value), value
	case rule.OpStartsWith:
		return e.startsWith(value, cond.Value), value
	case rule.OpEndsWith:
		return e.endsWith(value, cond.Value), value
	case rule.OpRegex:
		return e.matchesRegex(value, cond.Value), value
	case rule.OpIn:
		return e.inList(value, cond.Values), value
	case rule.OpNotIn:
		return !e.inList(value, cond.Values), value
	case rule.OpGreaterThan:
		return e.compareNumeric(value, cond.Value, ">"), value
	case rule.OpLessThan:
		return e.compareNumeric(value, cond.Value, "<"), value
	case rule.OpGreaterOrEqual:
		return e.compareNumeric(value, cond.Value, ">="), value
	case rule.OpLessOrEqual:
		return e.compareNumeric(value, cond.Value, "<="), value
	case rule.OpExists:
		return found, value
	case rule.OpNotExists:
		return !found, nil
	default:
		return false, nil
	}
}

func (e *Executor) compareEquals(value, expected interface{}) bool {
	if vs, ok := value.(string); ok {
		if es, ok := expected.(string); ok {
			return strings.EqualFold(vs, es)
		}
	}
	return value == expected
}

func (e *Executor) contains(value, substr interface{}) bool {
	vs, ok := value.(string)
	if !ok {
		return false
	}
	ss, ok := substr.(string)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(vs), strings.ToLower(ss))
}

func (e *Executor) startsWith(value, prefix interface{}) bool {
	vs, ok := value.(string)
	if !ok {
		return false
	}
	ps, ok := prefix.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.ToLower(vs), strings.ToLower(ps))
}

func (e *Executor) endsWith(value, suffix interface{}) bool {
	vs, ok := value.(string)
	if !ok {
		return false
	}
	ss, ok := suffix.(string)
	if !ok {
		return false
	}
	return strings.HasSuffix(strings.ToLower(vs), strings.ToLower(ss))
}

func (e *Executor) matchesRegex(value, pattern interface{}) bool {
	vs, ok := value.(string)
	if !ok {
		return false
	}
	ps, ok := pattern.(string)
	if !ok {
		return false
	}

	e.patternCacheMu.RLock()
	re, cached := e.patternCache[ps]
	e.patternCacheMu.RUnlock()

	if !cached {
		var err error
		re, err = regexp.Compile(ps)
		if err != nil {
			return false
		}

		e.patternCacheMu.Lock()
		e.patternCache[ps] = re
		e.patternCacheMu.Unlock()
	}

	return re.MatchString(vs)
}

func (e *Executor) inList(value interface{}, list []interface{}) bool {
	for _, item := range list {
		if e.compareEquals(value, item) {
			return true
		}
	}
	return false
}

func (e *Executor) compareNumeric(value, threshold interface{}, op string) bool {
	v := toFloat64(value)
	t := toFloat64(threshold)

	if v == nil || t == nil {
		return false
	}

	switch op {
	case ">":
		return *v > *t
	case "<":
		return *v < *t
	case ">=":
		return *v >= *t
	case "<=":
		return *v <= *t
	default:
		return false
	}
}

func toFloat64(value interface{}) *float64 {
	var result float64

	switch v := value.(type) {
	case float64:
		result = v
	case float32:
		result = float64(v)
	case int:
		result = float64(v)
	case int64:
		result = float64(v)
	case int32:
		result = float64(v)
	case string:
		var err error
		result, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
	default:
		return nil
	}

	return &result
}

// ClearPatternCache clears the regex pattern cache.
func (e *Executor) ClearPatternCache() {
	e.patternCacheMu.Lock()
	defer e.patternCacheMu.Unlock()
	e.patternCache = make(map[string]*regexp.Regexp)
}
