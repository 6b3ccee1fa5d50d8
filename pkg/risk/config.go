package risk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/geririsk/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Levels holds the score cut-points: score >= High is High, score >= Moderate
// is Moderate, anything lower is Low.
type Levels struct {
	High     float64 `yaml:"high" json:"high"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
}

func DefaultLevels() Levels {
	return Levels{High: 0.67, Moderate: 0.34}
}

func (l Levels) Validate() error {
	if l.Moderate <= 0 || l.High > 1 || l.Moderate >= l.High {
		return fmt.Errorf("invalid level cut-points moderate=%v high=%v", l.Moderate, l.High)
	}
	return nil
}

func (l Levels) For(score float64) models.RiskLevel {
	switch {
	case score >= l.High:
		return models.RiskHigh
	case score >= l.Moderate:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

// Ramp maps a reading linearly onto [0,1]: 0 at From, 1 at To, clamped
// outside. To may be below From for "lower is worse" readings. A ramp with
// From == To is a step at From.
type Ramp struct {
	Weight float64 `yaml:"weight" json:"weight"`
	From   float64 `yaml:"from" json:"from"`
	To     float64 `yaml:"to" json:"to"`
}

func (r Ramp) Eval(x float64) float64 {
	if r.To == r.From {
		if x >= r.From {
			return 1
		}
		return 0
	}
	return clamp01((x - r.From) / (r.To - r.From))
}

type CardiacRules struct {
	EventRate    Ramp `yaml:"event_rate" json:"event_rate"`
	MaxHeartRate Ramp `yaml:"max_heart_rate" json:"max_heart_rate"`
	AvgHeartRate Ramp `yaml:"avg_heart_rate" json:"avg_heart_rate"`
}

type RespiratoryRules struct {
	EventRate Ramp `yaml:"event_rate" json:"event_rate"`
	MinSpO2   Ramp `yaml:"min_spo2" json:"min_spo2"`
}

type FallRules struct {
	// StepsPerRecord ramps from inactive to active; the factor is its complement.
	StepsPerRecord Ramp `yaml:"steps_per_record" json:"steps_per_record"`
	MinHeartRate   Ramp `yaml:"min_heart_rate" json:"min_heart_rate"`
	MinSpO2        Ramp `yaml:"min_spo2" json:"min_spo2"`
}

type Config struct {
	Levels      Levels           `yaml:"levels" json:"levels"`
	Cardiac     CardiacRules     `yaml:"cardiac" json:"cardiac"`
	Respiratory RespiratoryRules `yaml:"respiratory" json:"respiratory"`
	Fall        FallRules        `yaml:"fall" json:"fall"`
}

func DefaultConfig() Config {
	return Config{
		Levels: DefaultLevels(),
		Cardiac: CardiacRules{
			EventRate:    Ramp{Weight: 0.5, From: 0, To: 0.5},
			MaxHeartRate: Ramp{Weight: 0.3, From: 100, To: 160},
			AvgHeartRate: Ramp{Weight: 0.2, From: 80, To: 120},
		},
		Respiratory: RespiratoryRules{
			EventRate: Ramp{Weight: 0.5, From: 0, To: 0.5},
			MinSpO2:   Ramp{Weight: 0.5, From: 95, To: 85},
		},
		Fall: FallRules{
			StepsPerRecord: Ramp{Weight: 0.5, From: 0, To: 250},
			MinHeartRate:   Ramp{Weight: 0.3, From: 60, To: 40},
			MinSpO2:        Ramp{Weight: 0.2, From: 95, To: 85},
		},
	}
}

// LoadConfig reads a YAML rules file. Sections absent from the file keep the
// defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, err
	}
	if len(content) == 0 {
		return Config{}, errors.New("empty risk rules file")
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Levels.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
