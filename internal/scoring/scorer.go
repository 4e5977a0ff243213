package scoring

import (
	"context"
	"fmt"
)

// Scorer computes a score in [0,1] from a fixed feature vector. Scorers are
// pure from the caller's point of view: no side effects, swappable per model.
type Scorer interface {
	Score(ctx context.Context, f Features) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, f Features) (float64, error)

func (fn ScorerFunc) Score(ctx context.Context, f Features) (float64, error) {
	return fn(ctx, f)
}

// Registry maps catalog model names to scorer implementations.
type Registry struct {
	scorers map[string]Scorer
}

func NewRegistry() *Registry {
	return &Registry{scorers: make(map[string]Scorer)}
}

func (r *Registry) Register(modelName string, s Scorer) {
	r.scorers[modelName] = s
}

// ForModel returns the scorer registered for modelName.
func (r *Registry) ForModel(modelName string) (Scorer, error) {
	s, ok := r.scorers[modelName]
	if !ok {
		return nil, fmt.Errorf("no scorer registered for model %q", modelName)
	}
	return s, nil
}

// DefaultRegistry wires the seeded catalog models to the reference heuristic.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ModelCourtOrderSuitability, ScorerFunc(CourtOrderScore))
	r.Register(ModelDebtRiskScorer, ScorerFunc(CourtOrderScore))
	return r
}
