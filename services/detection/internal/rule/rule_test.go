package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequiresIDNameType(t *testing.T) {
	r := &Rule{}
	assert.EqualError(t, r.Validate(), "rule ID is required")

	r.ID = "r1"
	assert.EqualError(t, r.Validate(), "rule name is required")

	r.Name = "test"
	assert.EqualError(t, r.Validate(), "rule type is required")
}

func TestValidateSimpleRuleRequiresConditions(t *testing.T) {
	r := &Rule{ID: "r1", Name: "test", Type: TypeSimple}
	assert.Error(t, r.Validate())

	r.ParsedConditions = &ParsedConditions{Conditions: []*Condition{{Field: "x", Operator: OpEquals, Value: "y"}}}
	assert.NoError(t, r.Validate())
}

func TestValidateYaraRuleRequiresContentFieldAndSource(t *testing.T) {
	r := &Rule{ID: "r1", Name: "test", Type: TypeYara}
	assert.Error(t, r.Validate())

	r.Yara = &YaraConfig{ContentField: "file.content"}
	assert.Error(t, r.Validate(), "still missing raw content")

	r.RawContent = "rule test { condition: true }"
	assert.NoError(t, r.Validate())
}

func TestValidateAnomalyRuleRequiresFeatureField(t *testing.T) {
	r := &Rule{ID: "r1", Name: "test", Type: TypeAnomaly}
	assert.Error(t, r.Validate())

	r.Anomaly = &AnomalyConfig{NumericFields: []string{"bytes"}}
	assert.NoError(t, r.Validate())
}

func TestCloneDeepCopiesSlicesAndMaps(t *testing.T) {
	r := &Rule{
		ID:           "r1",
		MITRETactics: []string{"execution"},
		Tags:         []string{"a"},
		Metadata:     map[string]string{"k": "v"},
	}

	clone := r.Clone()
	clone.MITRETactics[0] = "persistence"
	clone.Tags[0] = "b"
	clone.Metadata["k"] = "changed"

	assert.Equal(t, "execution", r.MITRETactics[0])
	assert.Equal(t, "a", r.Tags[0])
	assert.Equal(t, "v", r.Metadata["k"])
}
