package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateNoBaselineBeforeMinSamples(t *testing.T) {
	r := NewRegistry(100)
	scores := r.Evaluate("login", map[string]float64{"bytes": 100}, nil, 5)
	assert.False(t, scores[0].HasBaseline)
}

func TestEvaluateFlagsOutlierBeyondBaseline(t *testing.T) {
	r := NewRegistry(100)
	for i := 0; i < 20; i++ {
		r.Evaluate("login", map[string]float64{"bytes": 100}, nil, 5)
	}
	scores := r.Evaluate("login", map[string]float64{"bytes": 100000}, nil, 5)
	assert.True(t, scores[0].HasBaseline)
	assert.Greater(t, scores[0].MaxSigma, 3.0)
}

func TestEvaluateHashesCategoricalFields(t *testing.T) {
	r := NewRegistry(100)
	scores := r.Evaluate("login", nil, map[string]string{"country": "US"}, 1)
	assert.Equal(t, "country", scores[0].Field)
}
