package features

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/dataset"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHeartRateColumn = "heart_rate"
	DefaultSpO2Column      = "spo2"
	DefaultStepsColumn     = "steps"

	DefaultHighHeartRate = 100.0
	DefaultLowSpO2       = 95.0
)

// ColumnMapping names the cleaned columns read by the aggregator. Empty
// fields fall back to the defaults.
type ColumnMapping struct {
	HeartRate string `yaml:"heart_rate" json:"heart_rate"`
	SpO2      string `yaml:"spo2" json:"spo2"`
	Steps     string `yaml:"steps" json:"steps"`
}

// EventThresholds: a cardiac event is a reading strictly above HighHeartRate,
// an SpO2 event a reading strictly below LowSpO2. Values are used as given,
// zero included; start from DefaultConfig to inherit the defaults.
type EventThresholds struct {
	HighHeartRate float64 `yaml:"high_heart_rate" json:"high_heart_rate"`
	LowSpO2       float64 `yaml:"low_spo2" json:"low_spo2"`
}

type Config struct {
	Columns    ColumnMapping   `yaml:"columns" json:"columns"`
	Thresholds EventThresholds `yaml:"thresholds" json:"thresholds"`
}

func DefaultConfig() Config {
	return Config{
		Columns: ColumnMapping{
			HeartRate: DefaultHeartRateColumn,
			SpO2:      DefaultSpO2Column,
			Steps:     DefaultStepsColumn,
		},
		Thresholds: EventThresholds{
			HighHeartRate: DefaultHighHeartRate,
			LowSpO2:       DefaultLowSpO2,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Columns.HeartRate == "" {
		c.Columns.HeartRate = d.Columns.HeartRate
	}
	if c.Columns.SpO2 == "" {
		c.Columns.SpO2 = d.Columns.SpO2
	}
	if c.Columns.Steps == "" {
		c.Columns.Steps = d.Columns.Steps
	}
	return c
}

// LoadConfig reads the aggregation section of the rules file at path over
// DefaultConfig. An empty path or a file without the section yields the
// defaults; keys left out of the section keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, err
	}
	doc := struct {
		Aggregation *Config `yaml:"aggregation"`
	}{Aggregation: &cfg}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return Config{}, err
	}
	if doc.Aggregation == nil {
		return DefaultConfig(), nil
	}
	return cfg.withDefaults(), nil
}

type Aggregator struct {
	cfg Config
}

func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg.withDefaults()}
}

func (a *Aggregator) Config() Config {
	return a.cfg
}

// Aggregate reduces cleaned records to dataset statistics. Missing or
// non-numeric entries are ignored; a column without valid values yields nil
// (or zero for steps). Values are sorted before reduction so the result is
// identical for every ordering of records.
func (a *Aggregator) Aggregate(records []*dataset.Record) models.Aggregates {
	heartRates := collect(records, a.cfg.Columns.HeartRate)
	spo2 := collect(records, a.cfg.Columns.SpO2)
	steps := collect(records, a.cfg.Columns.Steps)

	agg := models.Aggregates{
		RecordCount: len(records),
		TotalSteps:  sum(steps),
	}

	if n := len(heartRates); n > 0 {
		avg := sum(heartRates) / float64(n)
		lo, hi := heartRates[0], heartRates[n-1]
		agg.AvgHeartRate = &avg
		agg.MinHeartRate = &lo
		agg.MaxHeartRate = &hi
	}
	if len(spo2) > 0 {
		lo := spo2[0]
		agg.MinSpO2 = &lo
	}

	for _, hr := range heartRates {
		if hr > a.cfg.Thresholds.HighHeartRate {
			agg.CardiacEvents++
		}
	}
	for _, v := range spo2 {
		if v < a.cfg.Thresholds.LowSpO2 {
			agg.SpO2Events++
		}
	}

	return agg
}

// Aggregate runs the default aggregator.
func Aggregate(records []*dataset.Record) models.Aggregates {
	return NewAggregator(DefaultConfig()).Aggregate(records)
}

// collect returns the valid numeric values of column in ascending order.
func collect(records []*dataset.Record, column string) []float64 {
	var values []float64
	for _, rec := range records {
		v, ok := rec.Get(column)
		if !ok {
			continue
		}
		if f, ok := dataset.Number(v); ok {
			values = append(values, f)
		}
	}
	sort.Float64s(values)
	return values
}

func sum(sorted []float64) float64 {
	var total float64
	for _, v := range sorted {
		total += v
	}
	return total
}
