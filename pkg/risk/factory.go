package risk

import (
	"fmt"
	"time"
)

type Settings struct {
	Kind         string // rules, logistic or remote
	Rules        Config
	ArtifactDir  string
	PredictorURL string
	Timeout      time.Duration

	// Strict leaves scorer failures request-fatal instead of degrading them.
	Strict bool
}

func New(s Settings) (Scorer, error) {
	var scorer Scorer
	switch s.Kind {
	case "", "rules":
		scorer = NewRuleScorer(s.Rules)
	case "logistic":
		scorer = NewLogisticScorer(s.ArtifactDir, s.Rules.Levels)
	case "remote":
		if s.PredictorURL == "" {
			return nil, fmt.Errorf("remote scorer requires a predictor URL")
		}
		scorer = NewRemoteScorer(s.PredictorURL, s.Timeout)
	default:
		return nil, fmt.Errorf("unknown risk scorer %q", s.Kind)
	}
	if s.Strict {
		return scorer, nil
	}
	return NewSafeScorer(scorer), nil
}
