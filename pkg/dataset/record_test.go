package dataset

import (
	"encoding/json"
	"math"
	"testing"
)

func TestSetKeepsPositionOnOverwrite(t *testing.T) {
	r := Of(Field{"a", 1.0}, Field{"b", 2.0})
	r.Set("a", 3.0)

	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected key order %v", keys)
	}
	if v, _ := r.Get("a"); v != 3.0 {
		t.Fatalf("expected overwritten value, got %v", v)
	}
}

func TestMarshalJSONPreservesOrder(t *testing.T) {
	r := Of(Field{"z", "last"}, Field{"a", nil}, Field{"m", true})
	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"z":"last","a":null,"m":true}` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestNilRecordIsEmpty(t *testing.T) {
	var r *Record
	if r.Len() != 0 || r.Has("x") {
		t.Fatal("nil record should behave as empty")
	}
}

func TestNumber(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{72.0, 72, true},
		{int64(5), 5, true},
		{"72", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{math.NaN(), 0, false},
	}
	for _, tc := range cases {
		got, ok := Number(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Number(%v) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
