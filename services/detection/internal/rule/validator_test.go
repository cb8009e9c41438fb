package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorWithResultCollectsMultipleErrors(t *testing.T) {
	v := NewValidator()

	result := v.ValidateWithResult(&Rule{})
	assert.False(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Errors), 3)
}

func TestValidatorWarnsOnMissingDescriptionButStaysValid(t *testing.T) {
	v := NewValidator()

	r := &Rule{
		ID:   "r1",
		Name: "test rule",
		Type: TypeSimple,
		ParsedConditions: &ParsedConditions{
			Conditions: []*Condition{{Field: "x", Operator: OpEquals, Value: "y"}},
		},
		Severity: "medium",
	}

	result := v.ValidateWithResult(r)
	require.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidatorRejectsUnknownOperator(t *testing.T) {
	v := NewValidator()

	r := &Rule{
		ID:          "r1",
		Name:        "test rule",
		Type:        TypeSimple,
		Description: "desc",
		Severity:    "medium",
		ParsedConditions: &ParsedConditions{
			Conditions: []*Condition{{Field: "x", Operator: Operator("bogus"), Value: "y"}},
		},
	}

	err := v.Validate(r)
	assert.Error(t, err)
}

func TestValidatorRejectsInvalidRegexPattern(t *testing.T) {
	v := NewValidator()

	r := &Rule{
		ID:          "r1",
		Name:        "test rule",
		Type:        TypeSimple,
		Description: "desc",
		Severity:    "medium",
		ParsedConditions: &ParsedConditions{
			Conditions: []*Condition{{Field: "x", Operator: OpRegex, Value: "(unterminated"}},
		},
	}

	err := v.Validate(r)
	assert.Error(t, err)
}

func TestValidatorWarnsOnExpensiveRegex(t *testing.T) {
	v := NewValidator()

	r := &Rule{
		ID:          "r1",
		Name:        "test rule",
		Type:        TypeSimple,
		Description: "desc",
		Severity:    "medium",
		ParsedConditions: &ParsedConditions{
			Conditions: []*Condition{{Field: "x", Operator: OpRegex, Value: "(.+)+"}},
		},
	}

	result := v.ValidateWithResult(r)
	require.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidatorRejectsInvalidSeverity(t *testing.T) {
	v := NewValidator()

	r := &Rule{
		ID:          "r1",
		Name:        "test rule",
		Type:        TypeSimple,
		Description: "desc",
		Severity:    "catastrophic",
		ParsedConditions: &ParsedConditions{
			Conditions: []*Condition{{Field: "x", Operator: OpEquals, Value: "y"}},
		},
	}

	assert.Error(t, v.Validate(r))
}
