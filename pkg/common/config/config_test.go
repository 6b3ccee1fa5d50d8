package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RISK_SCORER", "")
	t.Setenv("PREDICTOR_TIMEOUT", "")

	cfg := Load()
	if cfg.RiskScorer != "rules" {
		t.Fatalf("expected rules scorer by default, got %q", cfg.RiskScorer)
	}
	if cfg.PredictorTimeout != 10*time.Second {
		t.Fatalf("expected 10s predictor timeout, got %s", cfg.PredictorTimeout)
	}
	if cfg.MaxUploadBytes != 50*1024*1024 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RISK_SCORER", "Remote")
	t.Setenv("PREDICTOR_STRICT", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ASSESSMENT_CACHE_TTL", "1m")

	cfg := Load()
	if cfg.RiskScorer != "remote" {
		t.Fatalf("expected lower-cased scorer name, got %q", cfg.RiskScorer)
	}
	if !cfg.PredictorStrict {
		t.Fatal("expected strict predictor")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.AssessmentCacheTTL != time.Minute {
		t.Fatalf("unexpected ttl %s", cfg.AssessmentCacheTTL)
	}
}
