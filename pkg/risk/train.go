package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/ml/linear"
)

// Example is one labelled dataset for training: its aggregates and the
// observed outcome (0 or 1) per model.
type Example struct {
	Aggregates models.Aggregates  `json:"aggregates"`
	Labels     map[string]float64 `json:"labels"`
}

type TrainingReport struct {
	Model    string  `json:"model"`
	Samples  int     `json:"samples"`
	Skipped  int     `json:"skipped"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Path     string  `json:"path"`
}

// TrainArtifact fits a standardized logistic model for model. Examples missing
// a feature or the label are skipped.
func TrainArtifact(model string, examples []Example, opts linear.Options) (Artifact, TrainingReport, error) {
	names, ok := modelFeatures[model]
	if !ok {
		return Artifact{}, TrainingReport{}, fmt.Errorf("unknown model %q", model)
	}

	var (
		samples [][]float64
		labels  []float64
		skipped int
	)
	for _, ex := range examples {
		label, ok := ex.Labels[model]
		if !ok {
			skipped++
			continue
		}
		features := featureMap(ex.Aggregates)
		sample := make([]float64, len(names))
		complete := true
		for i, name := range names {
			v, ok := features[name]
			if !ok {
				complete = false
				break
			}
			sample[i] = v
		}
		if !complete {
			skipped++
			continue
		}
		samples = append(samples, sample)
		labels = append(labels, label)
	}
	if len(samples) == 0 {
		return Artifact{}, TrainingReport{}, fmt.Errorf("%s: no usable training examples", model)
	}

	scaler := linear.FitScaler(samples)
	scaled := make([][]float64, len(samples))
	for i, s := range samples {
		out, err := scaler.Transform(s)
		if err != nil {
			return Artifact{}, TrainingReport{}, err
		}
		scaled[i] = out
	}
	weights, m := linear.TrainLogistic(scaled, labels, opts)

	var a Artifact
	a.Model.Type = "logistic_regression"
	a.Model.Algorithm = "gradient_descent"
	a.Model.FeatureNames = append([]string(nil), names...)
	a.Model.Scaler = scaler
	a.Model.Weights = weights

	return a, TrainingReport{
		Model:    model,
		Samples:  len(samples),
		Skipped:  skipped,
		Loss:     m.Loss,
		Accuracy: m.Accuracy,
	}, nil
}

// WriteArtifact writes a timestamped copy and replaces <model>_latest.json,
// which is what LogisticScorer loads.
func WriteArtifact(dir, model string, a Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", err
	}
	versioned := filepath.Join(dir, fmt.Sprintf("%s_%s.json", model, time.Now().UTC().Format("20060102T150405")))
	if err := os.WriteFile(versioned, payload, 0o644); err != nil {
		return "", err
	}
	latest := filepath.Join(dir, fmt.Sprintf("%s_latest.json", model))
	tmp := latest + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, latest); err != nil {
		return "", err
	}
	return latest, nil
}

// Models lists the logistic models in scoring order.
func Models() []string {
	return []string{ModelCardiac, ModelFall, ModelRespiratory}
}
