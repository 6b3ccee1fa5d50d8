package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/ml/linear"
)

const (
	ModelCardiac     = "cardiac_risk"
	ModelFall        = "fall_risk"
	ModelRespiratory = "respiratory_risk"
)

// Artifact is a trained logistic model on disk as <dir>/<model>_latest.json.
type Artifact struct {
	Model struct {
		Type         string         `json:"type"`
		Algorithm    string         `json:"algorithm"`
		FeatureNames []string       `json:"feature_names"`
		Scaler       linear.Scaler  `json:"scaler"`
		Weights      linear.Weights `json:"weights"`
	} `json:"model"`
}

// Feature vectors per model, named by the aggregate JSON keys.
var modelFeatures = map[string][]string{
	ModelCardiac:     {"avgHeartRate", "maxHeartRate", "minHeartRate", "minSpO2", "totalSteps", "recordCount"},
	ModelFall:        {"avgHeartRate", "totalSteps", "recordCount"},
	ModelRespiratory: {"minSpO2", "avgHeartRate", "recordCount"},
}

// ErrMissingFeature marks a model whose inputs are absent from the aggregates.
var ErrMissingFeature = errors.New("missing feature")

// LogisticScorer evaluates one logistic artifact per risk category. Artifacts
// are re-read when their modification time changes.
type LogisticScorer struct {
	dir    string
	levels Levels
	cache  map[string]cachedArtifact
	mu     sync.RWMutex
}

type cachedArtifact struct {
	artifact Artifact
	modTime  int64
}

func NewLogisticScorer(dir string, levels Levels) *LogisticScorer {
	if levels.Validate() != nil {
		levels = DefaultLevels()
	}
	return &LogisticScorer{
		dir:    dir,
		levels: levels,
		cache:  make(map[string]cachedArtifact),
	}
}

// Score evaluates each model on its own. A model whose inputs are absent is
// defaulted to Low with a warning while the others are still scored; artifact
// and evaluation failures abort scoring.
func (s *LogisticScorer) Score(_ context.Context, agg models.Aggregates) (Result, error) {
	features := featureMap(agg)
	var res Result

	for _, m := range []struct {
		model, category string
		out             *models.RiskAssessment
	}{
		{ModelCardiac, CategoryCardiac, &res.Predictions.CardiacRisk},
		{ModelFall, CategoryFall, &res.Predictions.FallRisk},
		{ModelRespiratory, CategoryRespiratory, &res.Predictions.RespiratoryRisk},
	} {
		p, err := s.predict(m.model, features)
		switch {
		case errors.Is(err, ErrMissingFeature):
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s risk inputs absent, defaulted to Low", m.category))
			*m.out = DefaultAssessment()
		case err != nil:
			return Result{}, err
		default:
			*m.out = assess(p, s.levels)
		}
	}
	return res, nil
}

func (s *LogisticScorer) predict(model string, features map[string]float64) (float64, error) {
	artifact, err := s.loadArtifact(model)
	if err != nil {
		return 0, fmt.Errorf("loading %s artifact: %w", model, err)
	}
	names := artifact.Model.FeatureNames
	if len(names) == 0 {
		names = modelFeatures[model]
	}
	sample := make([]float64, len(names))
	for idx, name := range names {
		value, ok := features[name]
		if !ok {
			return 0, fmt.Errorf("%s: %w %s", model, ErrMissingFeature, name)
		}
		sample[idx] = value
	}
	scaled, err := artifact.Model.Scaler.Transform(sample)
	if err != nil {
		return 0, fmt.Errorf("%s: scaling: %w", model, err)
	}
	p, err := linear.Predict(artifact.Model.Weights, scaled)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", model, err)
	}
	return p, nil
}

func (s *LogisticScorer) loadArtifact(model string) (Artifact, error) {
	latest := filepath.Join(s.dir, fmt.Sprintf("%s_latest.json", model))
	info, err := os.Stat(latest)
	if err != nil {
		return Artifact{}, err
	}
	mod := info.ModTime().UnixNano()

	s.mu.RLock()
	cached, ok := s.cache[model]
	s.mu.RUnlock()
	if ok && cached.modTime == mod {
		return cached.artifact, nil
	}

	content, err := os.ReadFile(latest)
	if err != nil {
		return Artifact{}, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return Artifact{}, err
	}
	s.mu.Lock()
	s.cache[model] = cachedArtifact{artifact: artifact, modTime: mod}
	s.mu.Unlock()
	return artifact, nil
}

// featureMap exposes the present aggregates by JSON name; nil aggregates are
// left out so models that need them default instead of scoring on zeros.
func featureMap(agg models.Aggregates) map[string]float64 {
	m := map[string]float64{
		"totalSteps":    agg.TotalSteps,
		"recordCount":   float64(agg.RecordCount),
		"cardiacEvents": float64(agg.CardiacEvents),
		"spo2Events":    float64(agg.SpO2Events),
	}
	if agg.AvgHeartRate != nil {
		m["avgHeartRate"] = *agg.AvgHeartRate
	}
	if agg.MaxHeartRate != nil {
		m["maxHeartRate"] = *agg.MaxHeartRate
	}
	if agg.MinHeartRate != nil {
		m["minHeartRate"] = *agg.MinHeartRate
	}
	if agg.MinSpO2 != nil {
		m["minSpO2"] = *agg.MinSpO2
	}
	return m
}
