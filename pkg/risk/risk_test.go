package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/ml/linear"
)

func f64(v float64) *float64 { return &v }

func scenarioAggregates() models.Aggregates {
	return models.Aggregates{
		AvgHeartRate:  f64(91),
		MaxHeartRate:  f64(110),
		MinHeartRate:  f64(72),
		MinSpO2:       f64(90),
		TotalSteps:    3000,
		RecordCount:   2,
		CardiacEvents: 1,
		SpO2Events:    1,
	}
}

func TestLevelsFor(t *testing.T) {
	levels := DefaultLevels()
	cases := map[float64]models.RiskLevel{
		0:     models.RiskLow,
		0.339: models.RiskLow,
		0.34:  models.RiskModerate,
		0.669: models.RiskModerate,
		0.67:  models.RiskHigh,
		1:     models.RiskHigh,
	}
	for score, want := range cases {
		if got := levels.For(score); got != want {
			t.Fatalf("score %v: expected %s, got %s", score, want, got)
		}
	}
}

func TestLevelsValidate(t *testing.T) {
	if err := (Levels{High: 0.3, Moderate: 0.5}).Validate(); err == nil {
		t.Fatal("expected inverted levels to be rejected")
	}
	if err := DefaultLevels().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRuleScorerScenario(t *testing.T) {
	res, err := NewRuleScorer(DefaultConfig()).Score(context.Background(), scenarioAggregates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := res.Predictions
	if p.CardiacRisk.Score != 0.605 || p.CardiacRisk.Level != models.RiskModerate {
		t.Fatalf("unexpected cardiac %+v", p.CardiacRisk)
	}
	if p.RespiratoryRisk.Score != 0.75 || p.RespiratoryRisk.Level != models.RiskHigh {
		t.Fatalf("unexpected respiratory %+v", p.RespiratoryRisk)
	}
	if p.FallRisk.Score != 0.1 || p.FallRisk.Level != models.RiskLow {
		t.Fatalf("unexpected fall %+v", p.FallRisk)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
}

func TestRuleScorerEmptyAggregates(t *testing.T) {
	res, err := NewRuleScorer(DefaultConfig()).Score(context.Background(), models.Aggregates{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Predictions != DefaultPayload() {
		t.Fatalf("expected default payload, got %+v", res.Predictions)
	}
	if len(res.Warnings) != 3 {
		t.Fatalf("expected one warning per category, got %v", res.Warnings)
	}
}

func TestRuleScorerScoresStayBounded(t *testing.T) {
	agg := models.Aggregates{
		AvgHeartRate:  f64(220),
		MaxHeartRate:  f64(250),
		MinHeartRate:  f64(20),
		MinSpO2:       f64(50),
		RecordCount:   1,
		CardiacEvents: 1,
		SpO2Events:    1,
	}
	res, _ := NewRuleScorer(DefaultConfig()).Score(context.Background(), agg)
	if err := ValidatePayload(res.Predictions); err != nil {
		t.Fatalf("expected bounded payload: %v", err)
	}
	if res.Predictions.CardiacRisk.Score != 1 || res.Predictions.FallRisk.Level != models.RiskHigh {
		t.Fatalf("expected saturated scores, got %+v", res.Predictions)
	}
}

func TestExplainListsFactors(t *testing.T) {
	exp := NewRuleScorer(DefaultConfig()).Explain(scenarioAggregates())
	if len(exp.Cardiac) != 3 || len(exp.Respiratory) != 2 || len(exp.Fall) != 3 {
		t.Fatalf("unexpected factor counts %d/%d/%d", len(exp.Cardiac), len(exp.Respiratory), len(exp.Fall))
	}
	if exp.Cardiac[0].Name != "cardiac_event_rate" || exp.Cardiac[0].Contribution != 0.5 {
		t.Fatalf("unexpected first cardiac factor %+v", exp.Cardiac[0])
	}
}

func TestRampDescending(t *testing.T) {
	r := Ramp{Weight: 1, From: 95, To: 85}
	if r.Eval(96) != 0 || r.Eval(85) != 1 || r.Eval(90) != 0.5 {
		t.Fatalf("unexpected ramp values %v %v %v", r.Eval(96), r.Eval(85), r.Eval(90))
	}
	step := Ramp{Weight: 1, From: 10, To: 10}
	if step.Eval(9) != 0 || step.Eval(10) != 1 {
		t.Fatal("expected step ramp")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := "levels:\n  high: 0.8\n  moderate: 0.4\ncardiac:\n  max_heart_rate:\n    weight: 0.4\n    from: 90\n    to: 150\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Levels.High != 0.8 || cfg.Levels.Moderate != 0.4 {
		t.Fatalf("unexpected levels %+v", cfg.Levels)
	}
	if cfg.Cardiac.MaxHeartRate.From != 90 {
		t.Fatalf("unexpected cardiac max rule %+v", cfg.Cardiac.MaxHeartRate)
	}
	if cfg.Respiratory != DefaultConfig().Respiratory {
		t.Fatalf("expected respiratory defaults to survive, got %+v", cfg.Respiratory)
	}
}

func TestLoadConfigRejectsBadLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("levels:\n  high: 0.2\n  moderate: 0.5\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected invalid levels error")
	}
	cfg, err := LoadConfig("")
	if err != nil || cfg.Levels != DefaultLevels() {
		t.Fatalf("expected defaults for empty path, got %+v %v", cfg, err)
	}
}

func writeArtifact(t *testing.T, dir, model string, weights linear.Weights) {
	t.Helper()
	var a Artifact
	a.Model.Type = "logistic_regression"
	a.Model.Algorithm = "gradient_descent"
	a.Model.FeatureNames = modelFeatures[model]
	a.Model.Weights = weights
	content, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, model+"_latest.json"), content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLogisticScorer(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, ModelCardiac, linear.Weights{Coefficients: make([]float64, 6)})
	writeArtifact(t, dir, ModelFall, linear.Weights{Bias: -10, Coefficients: make([]float64, 3)})
	writeArtifact(t, dir, ModelRespiratory, linear.Weights{Bias: 10, Coefficients: make([]float64, 3)})

	res, err := NewLogisticScorer(dir, DefaultLevels()).Score(context.Background(), scenarioAggregates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Predictions.CardiacRisk.Score != 0.5 || res.Predictions.CardiacRisk.Level != models.RiskModerate {
		t.Fatalf("unexpected cardiac %+v", res.Predictions.CardiacRisk)
	}
	if res.Predictions.FallRisk.Level != models.RiskLow {
		t.Fatalf("unexpected fall %+v", res.Predictions.FallRisk)
	}
	if res.Predictions.RespiratoryRisk.Score != 1 || res.Predictions.RespiratoryRisk.Level != models.RiskHigh {
		t.Fatalf("unexpected respiratory %+v", res.Predictions.RespiratoryRisk)
	}
}

func TestLogisticScorerTrainedArtifact(t *testing.T) {
	samples := [][]float64{{0}, {1}, {2}, {8}, {9}, {10}}
	labels := []float64{0, 0, 0, 1, 1, 1}
	scaler := linear.FitScaler(samples)
	scaled := make([][]float64, len(samples))
	for i, s := range samples {
		scaled[i], _ = scaler.Transform(s)
	}
	weights, m := linear.TrainLogistic(scaled, labels, linear.Options{Epochs: 500, LearningRate: 0.5})
	if m.Accuracy != 1 {
		t.Fatalf("expected separable training data, got accuracy %v", m.Accuracy)
	}

	high, _ := linear.Predict(weights, mustTransform(t, scaler, []float64{10}))
	low, _ := linear.Predict(weights, mustTransform(t, scaler, []float64{0}))
	if low >= high {
		t.Fatalf("expected monotone model, got low=%v high=%v", low, high)
	}
}

func mustTransform(t *testing.T, s linear.Scaler, sample []float64) []float64 {
	t.Helper()
	out, err := s.Transform(sample)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	return out
}

func TestLogisticScorerMissingArtifact(t *testing.T) {
	_, err := NewLogisticScorer(t.TempDir(), DefaultLevels()).Score(context.Background(), scenarioAggregates())
	if err == nil {
		t.Fatal("expected missing artifact error")
	}
}

func TestLogisticScorerMissingFeatureDefaultsThatModel(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, ModelCardiac, linear.Weights{Bias: 10, Coefficients: make([]float64, 6)})
	writeArtifact(t, dir, ModelFall, linear.Weights{Bias: 10, Coefficients: make([]float64, 3)})
	writeArtifact(t, dir, ModelRespiratory, linear.Weights{Bias: 10, Coefficients: make([]float64, 3)})
	agg := scenarioAggregates()
	agg.MinSpO2 = nil

	res, err := NewLogisticScorer(dir, DefaultLevels()).Score(context.Background(), agg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Predictions.CardiacRisk != DefaultAssessment() || res.Predictions.RespiratoryRisk != DefaultAssessment() {
		t.Fatalf("expected spo2 models defaulted, got %+v", res.Predictions)
	}
	if res.Predictions.FallRisk.Level != models.RiskHigh {
		t.Fatalf("expected fall model still scored, got %+v", res.Predictions.FallRisk)
	}
	if len(res.Warnings) != 2 || !strings.Contains(res.Warnings[0], "cardiac") || !strings.Contains(res.Warnings[1], "respiratory") {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if res.Fallback {
		t.Fatal("per-model default is not a fallback")
	}
}

func TestLogisticScorerMissingFeatureError(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, ModelCardiac, linear.Weights{Coefficients: make([]float64, 6)})
	_, err := NewLogisticScorer(dir, DefaultLevels()).predict(ModelCardiac, map[string]float64{})
	if !errors.Is(err, ErrMissingFeature) || !strings.Contains(err.Error(), "avgHeartRate") {
		t.Fatalf("expected missing feature error, got %v", err)
	}
}

func predictorServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteScorerSuccess(t *testing.T) {
	srv := predictorServer(t, func(w http.ResponseWriter, r *http.Request) {
		var agg models.Aggregates
		if err := json.NewDecoder(r.Body).Decode(&agg); err != nil || agg.RecordCount != 2 {
			http.Error(w, "bad input", http.StatusBadRequest)
			return
		}
		w.Header().Set(DiagnosticsHeader, "sklearn version mismatch")
		_ = json.NewEncoder(w).Encode(models.RiskPayload{
			CardiacRisk:     models.RiskAssessment{Score: 0.712, Level: models.RiskHigh},
			FallRisk:        models.RiskAssessment{Score: 0.2, Level: models.RiskLow},
			RespiratoryRisk: models.RiskAssessment{Score: 0.4, Level: models.RiskModerate},
		})
	})

	res, err := NewRemoteScorer(srv.URL, time.Second).Score(context.Background(), scenarioAggregates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Predictions.CardiacRisk.Score != 0.712 {
		t.Fatalf("unexpected payload %+v", res.Predictions)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "sklearn") {
		t.Fatalf("expected diagnostics warning, got %v", res.Warnings)
	}
}

func TestRemoteScorerFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Traceback: model not loaded", http.StatusInternalServerError)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, "not json")
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `{"cardiacRisk":{"score":3,"level":"High"}}`)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := predictorServer(t, handler)
			_, err := NewRemoteScorer(srv.URL, time.Second).Score(context.Background(), scenarioAggregates())
			var pe *PredictorError
			if !errors.As(err, &pe) {
				t.Fatalf("expected predictor error, got %v", err)
			}
			if pe.Diagnostics == "" {
				t.Fatal("expected predictor diagnostics to be captured")
			}
		})
	}
}

func TestRemoteScorerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemoteScorer(url, time.Second).Score(context.Background(), scenarioAggregates())
	if !IsPredictorError(err) {
		t.Fatalf("expected predictor error, got %v", err)
	}
}

func TestSafeScorerFallbacks(t *testing.T) {
	cases := map[string]Scorer{
		"error": ScorerFunc(func(context.Context, models.Aggregates) (Result, error) {
			return Result{}, errors.New("boom")
		}),
		"panic": ScorerFunc(func(context.Context, models.Aggregates) (Result, error) {
			panic("kaboom")
		}),
		"invalid": ScorerFunc(func(context.Context, models.Aggregates) (Result, error) {
			return Result{Predictions: models.RiskPayload{CardiacRisk: models.RiskAssessment{Score: 2, Level: "Severe"}}}, nil
		}),
		"nil": nil,
	}
	for name, inner := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := NewSafeScorer(inner).Score(context.Background(), scenarioAggregates())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !res.Fallback || res.Predictions != DefaultPayload() {
				t.Fatalf("expected default fallback payload, got %+v", res)
			}
			if len(res.Warnings) != 1 {
				t.Fatalf("expected a fallback warning, got %v", res.Warnings)
			}
		})
	}
}

func TestSafeScorerPassesThrough(t *testing.T) {
	res, err := NewSafeScorer(NewRuleScorer(DefaultConfig())).Score(context.Background(), scenarioAggregates())
	if err != nil || res.Fallback {
		t.Fatalf("unexpected fallback %+v %v", res, err)
	}
	if res.Predictions.CardiacRisk.Score != 0.605 {
		t.Fatalf("unexpected cardiac %+v", res.Predictions.CardiacRisk)
	}
}

func TestNewSelectsScorer(t *testing.T) {
	s, err := New(Settings{Kind: "rules", Rules: DefaultConfig()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*SafeScorer); !ok {
		t.Fatalf("expected safe wrapper, got %T", s)
	}
	s, err = New(Settings{Kind: "remote", PredictorURL: "http://predictor", Strict: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*RemoteScorer); !ok {
		t.Fatalf("expected bare remote scorer, got %T", s)
	}
	if _, err := New(Settings{Kind: "magic"}); err == nil {
		t.Fatal("expected unknown scorer error")
	}
	if _, err := New(Settings{Kind: "remote"}); err == nil {
		t.Fatal("expected missing url error")
	}
}

func trainingExamples() []Example {
	var out []Example
	for i := 0; i < 5; i++ {
		d := float64(i)
		low := models.Aggregates{
			AvgHeartRate: f64(68 + d), MaxHeartRate: f64(82 + d), MinHeartRate: f64(58 + d),
			MinSpO2: f64(97 + d/5), TotalSteps: 6000 + 100*d, RecordCount: 10,
		}
		high := models.Aggregates{
			AvgHeartRate: f64(112 + d), MaxHeartRate: f64(150 + d), MinHeartRate: f64(44 - d),
			MinSpO2: f64(86 - d/5), TotalSteps: 300 + 10*d, RecordCount: 10, CardiacEvents: 6, SpO2Events: 5,
		}
		out = append(out,
			Example{Aggregates: low, Labels: map[string]float64{ModelCardiac: 0, ModelFall: 0, ModelRespiratory: 0}},
			Example{Aggregates: high, Labels: map[string]float64{ModelCardiac: 1, ModelFall: 1, ModelRespiratory: 1}},
		)
	}
	// unusable: no spo2 for the cardiac and respiratory vectors
	out = append(out, Example{
		Aggregates: models.Aggregates{AvgHeartRate: f64(90), RecordCount: 4},
		Labels:     map[string]float64{ModelCardiac: 1},
	})
	return out
}

func TestTrainWriteAndScore(t *testing.T) {
	dir := t.TempDir()
	opts := linear.Options{Epochs: 400, LearningRate: 0.2}
	for _, model := range Models() {
		artifact, report, err := TrainArtifact(model, trainingExamples(), opts)
		if err != nil {
			t.Fatalf("%s: %v", model, err)
		}
		if report.Samples != 10 {
			t.Fatalf("%s: expected 10 samples, got %d", model, report.Samples)
		}
		if report.Accuracy != 1 {
			t.Fatalf("%s: expected separable data, got accuracy %v", model, report.Accuracy)
		}
		if _, err := WriteArtifact(dir, model, artifact); err != nil {
			t.Fatalf("write %s: %v", model, err)
		}
	}

	scorer := NewLogisticScorer(dir, DefaultLevels())
	examples := trainingExamples()
	low, err := scorer.Score(context.Background(), examples[0].Aggregates)
	if err != nil {
		t.Fatalf("score low: %v", err)
	}
	high, err := scorer.Score(context.Background(), examples[1].Aggregates)
	if err != nil {
		t.Fatalf("score high: %v", err)
	}
	if low.Predictions.CardiacRisk.Score >= high.Predictions.CardiacRisk.Score {
		t.Fatalf("expected higher cardiac risk for high example: %v vs %v", low.Predictions.CardiacRisk, high.Predictions.CardiacRisk)
	}
	if high.Predictions.RespiratoryRisk.Level != models.RiskHigh || low.Predictions.FallRisk.Level != models.RiskLow {
		t.Fatalf("unexpected levels low=%+v high=%+v", low.Predictions, high.Predictions)
	}
}

func TestTrainArtifactUnknownModel(t *testing.T) {
	if _, _, err := TrainArtifact("sleep_risk", trainingExamples(), linear.Options{}); err == nil {
		t.Fatal("expected unknown model error")
	}
}
