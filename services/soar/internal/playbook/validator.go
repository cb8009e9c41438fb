// Package playbook provides validation for playbook definitions.
package playbook

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Path    string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Field, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors found for a playbook.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError records a validation error and marks the result invalid.
func (r *ValidationResult) AddError(field, message, path string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Path: path})
}

// Error returns a combined error message for all recorded errors.
func (r *ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	var msgs []string
	for _, err := range r.Errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validOperators = map[ConditionOperator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
	OpStartsWith: true, OpEndsWith: true, OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true, OpIn: true, OpNotIn: true,
	OpMatches: true, OpExists: true, OpNotExists: true,
}

var validActionTypes = map[ActionType]bool{
	ActionTheHive: true, ActionCortex: true, ActionAnsible: true,
	ActionWebhook: true, ActionCase: true, ActionNotify: true,
}

// Validator checks playbook definitions for structural errors before they
// are stored or run.
type Validator struct{}

// NewValidator creates a playbook validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns an error if the playbook is invalid.
func (v *Validator) Validate(pb *Playbook) error {
	result := v.ValidateWithResult(pb)
	if !result.Valid {
		return result
	}
	return nil
}

// ValidateWithResult validates a playbook and returns every error found.
func (v *Validator) ValidateWithResult(pb *Playbook) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if pb.Name == "" {
		result.AddError("name", "playbook name is required", "")
	}
	if len(pb.Actions) == 0 {
		result.AddError("actions", "playbook must have at least one action", "")
	}

	for i, cond := range pb.Triggers {
		v.validateCondition(&cond, fmt.Sprintf("triggers[%d]", i), result)
	}

	seen := make(map[string]bool, len(pb.Actions))
	for i, action := range pb.Actions {
		path := fmt.Sprintf("actions[%d]", i)

		if action.Name == "" {
			result.AddError("name", "action name is required", path)
		} else if seen[action.Name] {
			result.AddError("name", fmt.Sprintf("duplicate action name %q", action.Name), path)
		}
		seen[action.Name] = true

		if !validActionTypes[action.Type] {
			result.AddError("type", fmt.Sprintf("unknown action type %q", action.Type), path)
		}

		for j, cond := range action.Conditions {
			v.validateCondition(&cond, fmt.Sprintf("%s.conditions[%d]", path, j), result)
		}
	}

	return result
}

func (v *Validator) validateCondition(c *Condition, path string, result *ValidationResult) {
	if len(c.And) > 0 || len(c.Or) > 0 {
		for i, sub := range c.And {
			v.validateCondition(&sub, fmt.Sprintf("%s.and[%d]", path, i), result)
		}
		for i, sub := range c.Or {
			v.validateCondition(&sub, fmt.Sprintf("%s.or[%d]", path, i), result)
		}
		return
	}

	if c.Field == "" {
		result.AddError("field", "condition field is required", path)
	}
	if !validOperators[c.Operator] {
		result.AddError("operator", fmt.Sprintf("unknown operator %q", c.Operator), path)
	}
	if c.Operator != OpExists && c.Operator != OpNotExists && c.Value == nil {
		result.AddError("value", "condition value is required for this operator", path)
	}
}
