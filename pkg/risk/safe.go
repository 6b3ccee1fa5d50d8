package risk

import (
	"context"
	"fmt"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/observability/metrics"
)

// SafeScorer never fails: an error, a panic or an out-of-range payload from
// the wrapped scorer degrades to DefaultPayload with a logged warning.
type SafeScorer struct {
	inner Scorer
}

func NewSafeScorer(inner Scorer) *SafeScorer {
	return &SafeScorer{inner: inner}
}

func (s *SafeScorer) Score(ctx context.Context, agg models.Aggregates) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = s.fallback(fmt.Errorf("scorer panic: %v", p)), nil
		}
	}()

	if s.inner == nil {
		return s.fallback(fmt.Errorf("no scorer configured")), nil
	}

	out, scoreErr := s.inner.Score(ctx, agg)
	if scoreErr != nil {
		return s.fallback(scoreErr), nil
	}
	if vErr := ValidatePayload(out.Predictions); vErr != nil {
		return s.fallback(vErr), nil
	}
	return out, nil
}

func (s *SafeScorer) fallback(cause error) Result {
	metrics.IncScorerFallbacks()
	logger.Log.WithError(cause).Warn("risk scorer failed, using default low-risk output")
	return Result{
		Predictions: DefaultPayload(),
		Warnings:    []string{"risk scoring unavailable, default low-risk output returned: " + cause.Error()},
		Fallback:    true,
	}
}
