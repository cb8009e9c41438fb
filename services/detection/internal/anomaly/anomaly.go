// Package anomaly maintains a per-event-type statistical model of numeric
// and categorical fields and scores new samples against it, flagging
// outliers beyond a configurable number of standard deviations.
package anomaly

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const defaultWindow = 2000

// Score describes how anomalous a sample was relative to the model's
// current centroid.
type Score struct {
	MaxSigma    float64
	Field       string
	HasBaseline bool
}

// Model tracks a bounded sample window per feature field for one event
// type. Numeric fields are stored as-is; categorical fields are hashed into
// a float64 so they standardize against a centroid the same way numeric
// fields do.
type Model struct {
	mu      sync.Mutex
	samples map[string][]float64
	window  int
}

func newModel(window int) *Model {
	if window <= 0 {
		window = defaultWindow
	}
	return &Model{samples: make(map[string][]float64), window: window}
}

// Registry holds one Model per event type.
type Registry struct {
	mu     sync.Mutex
	models map[string]*Model
	window int
}

func NewRegistry(window int) *Registry {
	return &Registry{models: make(map[string]*Model), window: window}
}

func (r *Registry) modelFor(eventType string) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[eventType]
	if !ok {
		m = newModel(r.window)
		r.models[eventType] = m
	}
	return m
}

// Evaluate scores the given numeric and categorical field values against
// the running model for eventType, then folds the sample into the model
// regardless of outcome. minSamples gates scoring: until a field has that
// many prior samples, Evaluate reports HasBaseline=false and never flags
// an outlier on it.
func (r *Registry) Evaluate(eventType string, numeric map[string]float64, categorical map[string]string, minSamples int) []Score {
	model := r.modelFor(eventType)
	model.mu.Lock()
	defer model.mu.Unlock()

	var scores []Score

	for field, v := range numeric {
		scores = append(scores, model.scoreAndRecord(field, v, minSamples))
	}
	for field, v := range categorical {
		scores = append(scores, model.scoreAndRecord(field, hashToFloat(v), minSamples))
	}

	return scores
}

func (m *Model) scoreAndRecord(field string, value float64, minSamples int) Score {
	history := m.samples[field]

	score := Score{Field: field}
	if len(history) >= minSamples && minSamples > 0 {
		mean, stddev := stat.MeanStdDev(history, nil)
		score.HasBaseline = true
		if stddev > 0 {
			score.MaxSigma = absFloat((value - mean) / stddev)
		} else if value != mean {
			// A constant baseline has no spread, so any departure from it
			// scores as the largest representable deviation.
			score.MaxSigma = math.MaxFloat64
		}
	}

	history = append(history, value)
	if len(history) > m.window {
		history = history[len(history)-m.window:]
	}
	m.samples[field] = history

	return score
}

func hashToFloat(s string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum64() % 1_000_000)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// String renders a score for logging/context purposes.
func (s Score) String() string {
	return fmt.Sprintf("%s:%.2fσ", s.Field, s.MaxSigma)
}
