package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/geririsk/platform/pkg/common/config"
)

func TestFromConfigAppliesAggregationSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := `
levels:
  high: 0.7
aggregation:
  columns:
    heart_rate: heart_rate_bpm
  thresholds:
    high_heart_rate: 0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	p, err := FromConfig(&config.Config{RiskScorer: "rules", RiskRulesPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := p.Run(context.Background(), []byte("Heart Rate (bpm),spo2\n50,98\n70,97\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Aggregates.AvgHeartRate == nil || *res.Aggregates.AvgHeartRate != 60 {
		t.Fatalf("expected heart_rate_bpm to feed heart rate stats, got %+v", res.Aggregates)
	}
	if res.Aggregates.CardiacEvents != 2 {
		t.Fatalf("expected zero threshold to count every reading, got %d", res.Aggregates.CardiacEvents)
	}
}

func TestFromConfigDefaultsWithoutRulesFile(t *testing.T) {
	p, err := FromConfig(&config.Config{RiskScorer: "rules"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.aggregator.Config().Columns.HeartRate; got != "heart_rate" {
		t.Fatalf("expected default heart rate column, got %q", got)
	}
}
