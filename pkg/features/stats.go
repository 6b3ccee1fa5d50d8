package features

import (
	"github.com/geririsk/platform/pkg/dataset"
)

type ColumnSummary struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// ColumnStats summarises one numeric column, or returns nil when it has no
// valid values.
func ColumnStats(records []*dataset.Record, column string) *ColumnSummary {
	values := collect(records, column)
	if len(values) == 0 {
		return nil
	}
	return &ColumnSummary{
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  sum(values) / float64(len(values)),
		Count: len(values),
	}
}
