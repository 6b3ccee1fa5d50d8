package risk

import (
	"context"
	"fmt"

	"github.com/geririsk/platform/pkg/common/models"
)

// Factor is one weighted rule term. Contribution = Weight * Value.
type Factor struct {
	Name         string  `json:"name"`
	Input        float64 `json:"input"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type Explanation struct {
	Cardiac     []Factor `json:"cardiac"`
	Fall        []Factor `json:"fall"`
	Respiratory []Factor `json:"respiratory"`
}

// RuleScorer is the default deterministic scorer: each risk is the sum of
// weighted ramps over the aggregates, clamped to [0,1].
type RuleScorer struct {
	cfg Config
}

func NewRuleScorer(cfg Config) *RuleScorer {
	if cfg.Levels.Validate() != nil {
		cfg.Levels = DefaultLevels()
	}
	return &RuleScorer{cfg: cfg}
}

func (s *RuleScorer) Score(_ context.Context, agg models.Aggregates) (Result, error) {
	exp := s.Explain(agg)
	var res Result

	res.Predictions.CardiacRisk = s.combine(CategoryCardiac, exp.Cardiac, &res)
	res.Predictions.FallRisk = s.combine(CategoryFall, exp.Fall, &res)
	res.Predictions.RespiratoryRisk = s.combine(CategoryRespiratory, exp.Respiratory, &res)
	return res, nil
}

func (s *RuleScorer) combine(category string, factors []Factor, res *Result) models.RiskAssessment {
	if len(factors) == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s risk inputs absent, defaulted to Low", category))
		return DefaultAssessment()
	}
	var total float64
	for _, f := range factors {
		total += f.Contribution
	}
	return assess(total, s.cfg.Levels)
}

// Explain lists the factors behind each score. A category whose inputs are
// all absent has no factors.
func (s *RuleScorer) Explain(agg models.Aggregates) Explanation {
	var exp Explanation
	if agg.RecordCount <= 0 {
		return exp
	}
	records := float64(agg.RecordCount)

	if agg.AvgHeartRate != nil {
		c := s.cfg.Cardiac
		exp.Cardiac = append(exp.Cardiac, factor("cardiac_event_rate", float64(agg.CardiacEvents)/records, c.EventRate))
		if agg.MaxHeartRate != nil {
			exp.Cardiac = append(exp.Cardiac, factor("max_heart_rate", *agg.MaxHeartRate, c.MaxHeartRate))
		}
		exp.Cardiac = append(exp.Cardiac, factor("avg_heart_rate", *agg.AvgHeartRate, c.AvgHeartRate))
	}

	if agg.MinSpO2 != nil {
		r := s.cfg.Respiratory
		exp.Respiratory = append(exp.Respiratory,
			factor("spo2_event_rate", float64(agg.SpO2Events)/records, r.EventRate),
			factor("min_spo2", *agg.MinSpO2, r.MinSpO2),
		)
	}

	if agg.MinHeartRate != nil || agg.MinSpO2 != nil || agg.TotalSteps > 0 {
		f := s.cfg.Fall
		perRecord := agg.TotalSteps / records
		inactivity := 1 - f.StepsPerRecord.Eval(perRecord)
		exp.Fall = append(exp.Fall, Factor{
			Name:         "inactivity",
			Input:        perRecord,
			Value:        inactivity,
			Weight:       f.StepsPerRecord.Weight,
			Contribution: f.StepsPerRecord.Weight * inactivity,
		})
		if agg.MinHeartRate != nil {
			exp.Fall = append(exp.Fall, factor("min_heart_rate", *agg.MinHeartRate, f.MinHeartRate))
		}
		if agg.MinSpO2 != nil {
			exp.Fall = append(exp.Fall, factor("min_spo2", *agg.MinSpO2, f.MinSpO2))
		}
	}

	return exp
}

func factor(name string, input float64, ramp Ramp) Factor {
	v := ramp.Eval(input)
	return Factor{Name: name, Input: input, Value: v, Weight: ramp.Weight, Contribution: ramp.Weight * v}
}
