// Package preprocess cleans parsed rows: null removal, string trimming and key
// normalization, with collisions between normalized keys reported per file.
package preprocess

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/dataset"
)

var ErrNilRecord = errors.New("nil record")

type Options struct {
	RemoveNulls   bool
	TrimStrings   bool
	NormalizeKeys bool
}

// DefaultOptions removes nulls and trims strings; keys are left untouched.
func DefaultOptions() Options {
	return Options{RemoveNulls: true, TrimStrings: true}
}

// AllOptions is the configuration used by the upload pipeline.
func AllOptions() Options {
	return Options{RemoveNulls: true, TrimStrings: true, NormalizeKeys: true}
}

type Result struct {
	Data       []*dataset.Record
	Processed  int
	Skipped    int
	Collisions []models.KeyCollision
}

func RemoveNullValues(record *dataset.Record) *dataset.Record {
	cleaned := dataset.NewRecord(record.Len())
	for _, f := range record.Fields() {
		if f.Value != nil {
			cleaned.Set(f.Key, f.Value)
		}
	}
	return cleaned
}

func TrimStringValues(record *dataset.Record) *dataset.Record {
	trimmed := dataset.NewRecord(record.Len())
	for _, f := range record.Fields() {
		if s, ok := f.Value.(string); ok {
			trimmed.Set(f.Key, strings.TrimSpace(s))
			continue
		}
		trimmed.Set(f.Key, f.Value)
	}
	return trimmed
}

// NormalizeKey lowercases key, collapses each whitespace run to one
// underscore and drops every character outside [a-z0-9_].
func NormalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	inSpace := false
	for _, r := range strings.ToLower(key) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeKeys rewrites every key with NormalizeKey. When two source keys
// map to the same name the later column's value wins.
func NormalizeKeys(record *dataset.Record) *dataset.Record {
	normalized, _ := normalizeKeys(record)
	return normalized
}

func normalizeKeys(record *dataset.Record) (*dataset.Record, map[string][]string) {
	normalized := dataset.NewRecord(record.Len())
	var sources map[string][]string
	seen := make(map[string]string, record.Len())
	for _, f := range record.Fields() {
		key := NormalizeKey(f.Key)
		if first, ok := seen[key]; ok {
			if sources == nil {
				sources = make(map[string][]string)
			}
			if len(sources[key]) == 0 {
				sources[key] = []string{first}
			}
			sources[key] = append(sources[key], f.Key)
		} else {
			seen[key] = f.Key
		}
		normalized.Set(key, f.Value)
	}
	return normalized, sources
}

// PreprocessRecord applies null removal, string trimming and key
// normalization, in that order, according to opts.
func PreprocessRecord(record *dataset.Record, opts Options) (*dataset.Record, error) {
	processed, _, err := preprocessRecord(record, opts)
	return processed, err
}

func preprocessRecord(record *dataset.Record, opts Options) (out *dataset.Record, collisions map[string][]string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, collisions, err = nil, nil, fmt.Errorf("cleaning record: %v", p)
		}
	}()

	if record == nil {
		return nil, nil, ErrNilRecord
	}

	processed := record
	if opts.RemoveNulls {
		processed = RemoveNullValues(processed)
	}
	if opts.TrimStrings {
		processed = TrimStringValues(processed)
	}
	if opts.NormalizeKeys {
		processed, collisions = normalizeKeys(processed)
	}
	return processed, collisions, nil
}

// Preprocess cleans every record. A record that fails to clean is counted as
// skipped and left out; it never aborts the batch.
func Preprocess(records []*dataset.Record, opts Options) Result {
	result := Result{Data: make([]*dataset.Record, 0, len(records))}
	tracker := newCollisionTracker()

	for i, rec := range records {
		cleaned, collisions, err := preprocessRecord(rec, opts)
		if err != nil {
			logger.Log.WithError(err).WithField("record", i).Debug("skipping record")
			result.Skipped++
			continue
		}
		tracker.add(collisions)
		result.Data = append(result.Data, cleaned)
		result.Processed++
	}

	result.Collisions = tracker.list()
	for _, c := range result.Collisions {
		logger.Log.WithFields(map[string]interface{}{
			"key":     c.Key,
			"sources": c.Sources,
		}).Warn("normalized column names collide, later column wins")
	}
	return result
}

// ValidateStructure reports whether the first record carries every required column.
func ValidateStructure(records []*dataset.Record, required []string) bool {
	if len(records) == 0 || records[0] == nil {
		return false
	}
	for _, col := range required {
		if !records[0].Has(col) {
			return false
		}
	}
	return true
}

type collisionTracker struct {
	order   []string
	sources map[string][]string
	known   map[string]map[string]struct{}
}

func newCollisionTracker() *collisionTracker {
	return &collisionTracker{
		sources: make(map[string][]string),
		known:   make(map[string]map[string]struct{}),
	}
}

func (t *collisionTracker) add(collisions map[string][]string) {
	if len(collisions) == 0 {
		return
	}
	keys := make([]string, 0, len(collisions))
	for key := range collisions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := t.known[key]; !ok {
			t.known[key] = make(map[string]struct{})
			t.order = append(t.order, key)
		}
		for _, src := range collisions[key] {
			if _, dup := t.known[key][src]; dup {
				continue
			}
			t.known[key][src] = struct{}{}
			t.sources[key] = append(t.sources[key], src)
		}
	}
}

func (t *collisionTracker) list() []models.KeyCollision {
	if len(t.order) == 0 {
		return nil
	}
	out := make([]models.KeyCollision, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, models.KeyCollision{Key: key, Sources: t.sources[key]})
	}
	return out
}
