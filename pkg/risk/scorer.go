// Package risk maps dataset aggregates to bounded cardiac, fall and
// respiratory risk scores. Scorers are interchangeable behind Scorer.
package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/geririsk/platform/pkg/common/models"
)

const (
	CategoryCardiac     = "cardiac"
	CategoryFall        = "fall"
	CategoryRespiratory = "respiratory"
)

// Result is a scorer's output plus non-fatal diagnostics.
type Result struct {
	Predictions models.RiskPayload
	Warnings    []string
	Fallback    bool
}

type Scorer interface {
	Score(ctx context.Context, agg models.Aggregates) (Result, error)
}

type ScorerFunc func(ctx context.Context, agg models.Aggregates) (Result, error)

func (f ScorerFunc) Score(ctx context.Context, agg models.Aggregates) (Result, error) {
	return f(ctx, agg)
}

// DefaultAssessment is the safe output used when a risk cannot be computed.
func DefaultAssessment() models.RiskAssessment {
	return models.RiskAssessment{Score: 0, Level: models.RiskLow}
}

func DefaultPayload() models.RiskPayload {
	return models.RiskPayload{
		CardiacRisk:     DefaultAssessment(),
		FallRisk:        DefaultAssessment(),
		RespiratoryRisk: DefaultAssessment(),
	}
}

// ValidatePayload checks every category carries a score in [0,1] and a known level.
func ValidatePayload(p models.RiskPayload) error {
	for name, a := range map[string]models.RiskAssessment{
		"cardiacRisk":     p.CardiacRisk,
		"fallRisk":        p.FallRisk,
		"respiratoryRisk": p.RespiratoryRisk,
	} {
		if math.IsNaN(a.Score) || a.Score < 0 || a.Score > 1 {
			return fmt.Errorf("%s score %v outside [0,1]", name, a.Score)
		}
		if !a.Level.Valid() {
			return fmt.Errorf("%s level %q unknown", name, a.Level)
		}
	}
	return nil
}

func assess(score float64, levels Levels) models.RiskAssessment {
	score = round3(clamp01(score))
	return models.RiskAssessment{Score: score, Level: levels.For(score)}
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
