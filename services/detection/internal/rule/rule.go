// Package rule provides detection rule models and validation.
package rule

import (
	"fmt"
	"time"
)

// RuleType represents the type of detection rule.
type RuleType string

const (
	TypeSimple  RuleType = "simple"
	TypeSigma   RuleType = "sigma"
	TypeYara    RuleType = "yara"
	TypeAnomaly RuleType = "anomaly"
)

// RuleStatus represents the status of a rule.
type RuleStatus string

const (
	StatusDraft      RuleStatus = "draft"
	StatusActive     RuleStatus = "active"
	StatusInactive   RuleStatus = "inactive"
	StatusDeprecated RuleStatus = "deprecated"
	StatusTesting    RuleStatus = "testing"
)

// Severity represents the severity level of a rule.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Operator represents condition operators.
type Operator string

const (
	OpEquals         Operator = "eq"
	OpNotEquals      Operator = "ne"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpRegex          Operator = "regex"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpGreaterThan    Operator = "gt"
	OpLessThan       Operator = "lt"
	OpGreaterOrEqual Operator = "gte"
	OpLessOrEqual    Operator = "lte"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
	OpCIDR           Operator = "cidr"
)

// Rule represents a detection rule. Which fields the evaluator reads depends
// on Type: ParsedConditions (built from Detection) for simple rules,
// RawContent for sigma rules, Yara and RawContent for yara rules, Anomaly for
// anomaly rules.
type Rule struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Name     string `json:"name" yaml:"name"`
	Title    string `json:"title" yaml:"title"`

	Description    string   `json:"description" yaml:"description"`
	References     []string `json:"references,omitempty" yaml:"references"`
	Author         string   `json:"author,omitempty" yaml:"author"`
	FalsePositives []string `json:"false_positives,omitempty" yaml:"falsepositives"`

	Type     RuleType   `json:"type" yaml:"type"`
	Status   RuleStatus `json:"status" yaml:"status"`
	Severity string     `json:"severity" yaml:"severity"`

	MITRETactics    []string `json:"mitre_tactics,omitempty" yaml:"mitre_tactics"`
	MITRETechniques []string `json:"mitre_techniques,omitempty" yaml:"mitre_techniques"`

	Tags     []string          `json:"tags,omitempty" yaml:"tags"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata"`

	// RawContent is the source text the rule was loaded from. The sigma
	// evaluator converts it on first use and caches the result rather than
	// re-parsing per event; yara rules compile it as their rule source.
	RawContent string `json:"raw_content,omitempty" yaml:"-"`

	EventTypes []string `json:"event_types,omitempty" yaml:"event_types"` // candidate pruning
	Sources    []string `json:"sources,omitempty" yaml:"sources"`         // candidate pruning

	LogSource        *LogSource        `json:"logsource,omitempty" yaml:"logsource"`
	Detection        *Detection        `json:"detection,omitempty" yaml:"detection"`
	ParsedConditions *ParsedConditions `json:"-" yaml:"-"`

	Yara    *YaraConfig    `json:"yara,omitempty" yaml:"yara"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly"`

	// ThrottleWindow suppresses repeat matches of the same (rule, fingerprint)
	// pair within the window. Zero disables throttling for the rule.
	ThrottleWindow time.Duration `json:"throttle_window,omitempty" yaml:"throttle_window"`
	// ThrottleField is a dotted path into the matched event's data used as
	// the fingerprint scope, e.g. "source_ip". Empty defaults to the rule ID.
	ThrottleField string `json:"throttle_field,omitempty" yaml:"throttle_field"`

	IsEnabled bool      `json:"is_enabled" yaml:"is_enabled"`
	Version   int       `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`

	ExecutionCount int64 `json:"execution_count,omitempty" yaml:"-"`
	MatchCount     int64 `json:"match_count,omitempty" yaml:"-"`
}

// LogSource defines the log source for Sigma rules.
type LogSource struct {
	Category   string `json:"category,omitempty" yaml:"category"`
	Product    string `json:"product,omitempty" yaml:"product"`
	Service    string `json:"service,omitempty" yaml:"service"`
	Definition string `json:"definition,omitempty" yaml:"definition"`
}

// Detection defines the detection logic for Sigma rules.
type Detection struct {
	Selection map[string]interface{} `json:"selection,omitempty" yaml:"selection"`
	Filter    map[string]interface{} `json:"filter,omitempty" yaml:"filter"`
	Condition string                 `json:"condition" yaml:"condition"`
	Timeframe string                 `json:"timeframe,omitempty" yaml:"timeframe"`
}

// ParsedConditions represents parsed rule conditions for simple rules.
type ParsedConditions struct {
	Conditions []*Condition      `json:"conditions"`
	Logic      LogicType         `json:"logic"`
	Groups     []*ConditionGroup `json:"groups,omitempty"`
}

// LogicType represents the logical operator between conditions.
type LogicType string

const (
	LogicAnd LogicType = "and"
	LogicOr  LogicType = "or"
)

// ConditionGroup represents a group of conditions.
type ConditionGroup struct {
	Conditions []*Condition `json:"conditions"`
	Logic      LogicType    `json:"logic"`
	Negate     bool         `json:"negate,omitempty"`
}

// Condition represents a single detection condition.
type Condition struct {
	Field         string        `json:"field"`
	Operator      Operator      `json:"operator"`
	Value         interface{}   `json:"value,omitempty"`
	Values        []interface{} `json:"values,omitempty"`
	Required      bool          `json:"required"`
	CaseSensitive bool          `json:"case_sensitive,omitempty"`
}

// YaraConfig configures the YARA evaluator. ContentField is a dotted path
// into the event's data holding either raw bytes, a base64 blob, or a
// filesystem path to the content to scan; events missing it are skipped.
type YaraConfig struct {
	ContentField string `json:"content_field" yaml:"content_field"`
	ContentIsPath bool  `json:"content_is_path,omitempty" yaml:"content_is_path"`
}

// AnomalyConfig configures a per-event-type statistical outlier model.
// NumericFields are standardized against the running centroid; Categorical
// fields are hashed into the same feature space. A sample scoring at or
// above SigmaThreshold standard deviations from the centroid is an outlier.
type AnomalyConfig struct {
	NumericFields     []string `json:"numeric_fields,omitempty" yaml:"numeric_fields"`
	CategoricalFields []string `json:"categorical_fields,omitempty" yaml:"categorical_fields"`
	SigmaThreshold    float64  `json:"sigma_threshold" yaml:"sigma_threshold"`
	MinSamples        int      `json:"min_samples" yaml:"min_samples"`
}

// Validate validates the rule.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Type == "" {
		return fmt.Errorf("rule type is required")
	}

	switch r.Type {
	case TypeSimple:
		if r.ParsedConditions == nil || len(r.ParsedConditions.Conditions) == 0 {
			return fmt.Errorf("simple rule must have conditions")
		}
	case TypeSigma:
		if r.Detection == nil && r.RawContent == "" {
			return fmt.Errorf("sigma rule must have a detection section or raw content")
		}
	case TypeYara:
		if r.Yara == nil || r.Yara.ContentField == "" {
			return fmt.Errorf("yara rule must declare a content field")
		}
		if r.RawContent == "" {
			return fmt.Errorf("yara rule must have rule source in raw content")
		}
	case TypeAnomaly:
		if r.Anomaly == nil || (len(r.Anomaly.NumericFields) == 0 && len(r.Anomaly.CategoricalFields) == 0) {
			return fmt.Errorf("anomaly rule must declare at least one feature field")
		}
	}

	return nil
}

// NewRule creates a new rule with defaults.
func NewRule(id, name string, ruleType RuleType) *Rule {
	return &Rule{
		ID:        id,
		Name:      name,
		Type:      ruleType,
		Status:    StatusDraft,
		Severity:  string(SeverityMedium),
		IsEnabled: false,
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// Clone creates a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	clone := *r

	if r.MITRETactics != nil {
		clone.MITRETactics = append([]string(nil), r.MITRETactics...)
	}
	if r.MITRETechniques != nil {
		clone.MITRETechniques = append([]string(nil), r.MITRETechniques...)
	}
	if r.Tags != nil {
		clone.Tags = append([]string(nil), r.Tags...)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}
