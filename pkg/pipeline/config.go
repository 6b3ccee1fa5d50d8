package pipeline

import (
	"fmt"

	"github.com/geririsk/platform/pkg/common/config"
	"github.com/geririsk/platform/pkg/features"
	"github.com/geririsk/platform/pkg/risk"
)

// FromConfig builds the scorer selected by cfg and a pipeline around it. The
// rules file also carries the optional aggregation section.
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	rules, err := risk.LoadConfig(cfg.RiskRulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading risk rules: %w", err)
	}
	scorer, err := risk.New(risk.Settings{
		Kind:         cfg.RiskScorer,
		Rules:        rules,
		ArtifactDir:  cfg.RiskArtifactDir,
		PredictorURL: cfg.PredictorURL,
		Timeout:      cfg.PredictorTimeout,
		Strict:       cfg.PredictorStrict,
	})
	if err != nil {
		return nil, err
	}
	aggregation, err := features.LoadConfig(cfg.RiskRulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading aggregation config: %w", err)
	}
	return New(scorer, WithAggregator(features.NewAggregator(aggregation))), nil
}
