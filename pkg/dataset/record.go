// Package dataset holds the row record shared by the parser, preprocessor and
// aggregator. A Record keeps its columns in insertion order so that cleaning
// steps which can map two columns onto one key resolve deterministically.
package dataset

import (
	"bytes"
	"encoding/json"
	"sort"
)

type Field struct {
	Key   string
	Value interface{}
}

type Record struct {
	fields []Field
	index  map[string]int
}

func NewRecord(capacity int) *Record {
	return &Record{
		fields: make([]Field, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

// Of builds a record from fields in order. Repeated keys overwrite earlier values.
func Of(fields ...Field) *Record {
	r := NewRecord(len(fields))
	for _, f := range fields {
		r.Set(f.Key, f.Value)
	}
	return r
}

// FromMap builds a record with keys in lexical order.
func FromMap(m map[string]interface{}) *Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	r := NewRecord(len(keys))
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set stores value under key. An existing key keeps its position and takes the
// new value.
func (r *Record) Set(key string, value interface{}) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field{Key: key, Value: value})
}

func (r *Record) Get(key string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Fields returns a copy of the record's fields in order.
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

func (r *Record) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, r.Len())
	if r == nil {
		return out
	}
	for _, f := range r.fields {
		out[f.Key] = f.Value
	}
	return out
}

// MarshalJSON writes the record as a JSON object in column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
