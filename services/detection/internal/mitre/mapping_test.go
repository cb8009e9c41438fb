package mitre

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapToATTACKInfersTacticsFromTechniques(t *testing.T) {
	m := NewMapper()

	mapping := m.MapToATTACK([]string{"T1059.001"}, nil)

	assert.Len(t, mapping.Techniques, 1)
	assert.Equal(t, "T1059.001", mapping.Techniques[0].ID)
	assert.NotEmpty(t, mapping.Tactics)
	assert.Contains(t, mapping.KillChainPhases, "execution")
}

func TestMapToATTACKUnknownIDsAreDropped(t *testing.T) {
	m := NewMapper()

	mapping := m.MapToATTACK([]string{"T9999.999"}, []string{"not-a-tactic"})

	assert.Empty(t, mapping.Techniques)
	assert.Empty(t, mapping.Tactics)
}
