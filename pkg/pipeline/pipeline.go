// Package pipeline composes the batch transform applied to one uploaded file:
// parse, preprocess, aggregate, score.
package pipeline

import (
	"context"
	"fmt"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/csvparse"
	"github.com/geririsk/platform/pkg/dataset"
	"github.com/geririsk/platform/pkg/features"
	"github.com/geririsk/platform/pkg/observability/metrics"
	"github.com/geririsk/platform/pkg/preprocess"
	"github.com/geririsk/platform/pkg/risk"
)

type Pipeline struct {
	parse      csvparse.Options
	clean      preprocess.Options
	aggregator *features.Aggregator
	scorer     risk.Scorer
}

type Option func(*Pipeline)

func WithParseOptions(opts csvparse.Options) Option {
	return func(p *Pipeline) { p.parse = opts }
}

func WithPreprocessOptions(opts preprocess.Options) Option {
	return func(p *Pipeline) { p.clean = opts }
}

func WithAggregator(a *features.Aggregator) Option {
	return func(p *Pipeline) { p.aggregator = a }
}

// New builds a pipeline around scorer. A nil scorer falls back to the default
// rule scorer behind the failure-tolerant wrapper.
func New(scorer risk.Scorer, opts ...Option) *Pipeline {
	if scorer == nil {
		scorer = risk.NewSafeScorer(risk.NewRuleScorer(risk.DefaultConfig()))
	}
	p := &Pipeline{
		parse:      csvparse.DefaultOptions(),
		clean:      preprocess.AllOptions(),
		aggregator: features.NewAggregator(features.DefaultConfig()),
		scorer:     scorer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Result struct {
	Meta        csvparse.Meta
	Records     []*dataset.Record
	Processed   int
	Skipped     int
	Aggregates  models.Aggregates
	Predictions models.RiskPayload
	Collisions  []models.KeyCollision
	Warnings    []string
	Fallback    bool
}

// Response shapes the result for callers. file is the display name.
func (r Result) Response(uploadID, file string) models.ProcessResponse {
	return models.ProcessResponse{
		UploadID:    uploadID,
		File:        file,
		RecordCount: r.Processed,
		Skipped:     r.Skipped,
		Aggregates:  r.Aggregates,
		Predictions: r.Predictions,
		Collisions:  r.Collisions,
		Warnings:    r.Warnings,
	}
}

// Run processes raw CSV bytes. A structural parse error aborts before
// preprocessing and is returned as *csvparse.StructuralError. Scorer errors
// are returned as-is.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	parsed := csvparse.ParseBytes(raw, p.parse)
	if err := parsed.Err(); err != nil {
		metrics.IncParseRejections()
		return Result{Meta: parsed.Meta}, err
	}

	cleaned := preprocess.Preprocess(parsed.Data, p.clean)
	metrics.AddRecordsSkipped(cleaned.Skipped)

	agg := p.aggregator.Aggregate(cleaned.Data)

	scored, err := p.scorer.Score(ctx, agg)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: %w", err)
	}

	res := Result{
		Meta:        parsed.Meta,
		Records:     cleaned.Data,
		Processed:   cleaned.Processed,
		Skipped:     cleaned.Skipped,
		Aggregates:  agg,
		Predictions: scored.Predictions,
		Collisions:  cleaned.Collisions,
		Fallback:    scored.Fallback,
	}
	for _, c := range cleaned.Collisions {
		res.Warnings = append(res.Warnings, fmt.Sprintf("columns %v normalize to %q, last value kept", c.Sources, c.Key))
	}
	res.Warnings = append(res.Warnings, scored.Warnings...)

	logger.Log.WithFields(map[string]interface{}{
		"records":   res.Processed,
		"skipped":   res.Skipped,
		"delimiter": parsed.Meta.Delimiter,
		"fallback":  res.Fallback,
	}).Debug("pipeline completed")
	return res, nil
}
