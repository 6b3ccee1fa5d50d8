package csvparse

import (
	"testing"
)

func TestParseTypesValuesAndSkipsEmptyLines(t *testing.T) {
	input := "timestamp,Heart Rate,spo2,active,note\n" +
		"2024-01-01T00:00:00Z,72,98.5,true,ok\n" +
		"\n" +
		"2024-01-01T00:01:00Z,,97,FALSE,  spaced  \n"

	res := ParseString(input, DefaultOptions())
	if err := res.Err(); err != nil {
		t.Fatalf("unexpected parse errors: %v", res.Errors)
	}
	if len(res.Data) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Data))
	}
	if res.Meta.Delimiter != "," || res.Meta.FieldCount != 5 {
		t.Fatalf("unexpected meta %+v", res.Meta)
	}

	first := res.Data[0]
	if v, _ := first.Get("Heart Rate"); v != 72.0 {
		t.Fatalf("expected numeric heart rate, got %#v", v)
	}
	if v, _ := first.Get("spo2"); v != 98.5 {
		t.Fatalf("expected 98.5, got %#v", v)
	}
	if v, _ := first.Get("active"); v != true {
		t.Fatalf("expected bool true, got %#v", v)
	}
	if v, _ := first.Get("timestamp"); v != "2024-01-01T00:00:00Z" {
		t.Fatalf("expected timestamp string, got %#v", v)
	}

	second := res.Data[1]
	if v, ok := second.Get("Heart Rate"); !ok || v != nil {
		t.Fatalf("expected explicit nil for empty field, got %#v (present=%v)", v, ok)
	}
	if v, _ := second.Get("active"); v != false {
		t.Fatalf("expected bool false, got %#v", v)
	}
	if v, _ := second.Get("note"); v != "  spaced  " {
		t.Fatalf("parser must not trim strings, got %#v", v)
	}
}

func TestHeaderIsVerbatim(t *testing.T) {
	res := ParseString(" Heart Rate (bpm) ,Steps\n80,100\n", DefaultOptions())
	if res.Meta.Fields[0] != " Heart Rate (bpm) " {
		t.Fatalf("header must not be normalized, got %q", res.Meta.Fields[0])
	}
	if !res.Data[0].Has(" Heart Rate (bpm) ") {
		t.Fatal("expected verbatim key on record")
	}
}

func TestFieldCountMismatchesAreCollected(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5\n6,7,8,9\n"
	res := ParseString(input, DefaultOptions())

	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 row errors, got %+v", res.Errors)
	}
	if res.Errors[0].Code != CodeTooFewFields || res.Errors[0].Row != 1 {
		t.Fatalf("unexpected first error %+v", res.Errors[0])
	}
	if res.Errors[1].Code != CodeTooManyFields || res.Errors[1].Row != 2 {
		t.Fatalf("unexpected second error %+v", res.Errors[1])
	}
	if len(res.Data) != 3 {
		t.Fatalf("rows are kept alongside errors, got %d", len(res.Data))
	}
	extra, ok := res.Data[2].Get(ExtraFieldsKey)
	if !ok || len(extra.([]interface{})) != 1 {
		t.Fatalf("expected one extra field, got %#v", extra)
	}

	err := res.Err()
	if !IsStructuralError(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestBareQuoteInUnquotedFieldIsLiteral(t *testing.T) {
	input := "device,heart_rate\nWatch 5\",72\nBand,80\n"
	res := ParseString(input, DefaultOptions())
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", res.Errors)
	}
	if len(res.Data) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Data))
	}
	if v, _ := res.Data[0].Get("device"); v != "Watch 5\"" {
		t.Fatalf("expected literal quote in device, got %#v", v)
	}
	if v, _ := res.Data[1].Get("heart_rate"); v != 80.0 {
		t.Fatalf("expected second row intact, got %#v", v)
	}
}

func TestUnterminatedQuotedFieldIsReported(t *testing.T) {
	res := ParseString("a,b\n1,2\n3,\"x\n4,5\n", DefaultOptions())
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeInvalidQuotes || res.Errors[0].Row != 1 {
		t.Fatalf("expected quote error on row 1, got %+v", res.Errors)
	}
	if len(res.Data) != 1 {
		t.Fatalf("expected rows before the open quote to be kept, got %d", len(res.Data))
	}
	if !IsStructuralError(res.Err()) {
		t.Fatalf("expected structural error, got %v", res.Err())
	}
}

func TestEscapedQuotesInQuotedField(t *testing.T) {
	res := ParseString("a,b\n\"say \"\"hi\"\"\",2\n", DefaultOptions())
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", res.Errors)
	}
	if v, _ := res.Data[0].Get("a"); v != `say "hi"` {
		t.Fatalf("unexpected value %#v", v)
	}
}

func TestDelimiterDetection(t *testing.T) {
	cases := map[string]string{
		"a;b;c\n1;2;3\n4;5;6\n":    ";",
		"a\tb\n1\t2\n":             "\t",
		"a|b|c\n1|2|3\n":           "|",
		"a,b\n1,2\n":               ",",
		"only\n1\n2\n":             ",",
		"a;b,c\n1;2,3\n4;5,6\n7;8": ";",
	}
	for input, want := range cases {
		if got := ParseString(input, DefaultOptions()).Meta.Delimiter; got != want {
			t.Fatalf("input %q: expected delimiter %q, got %q", input, want, got)
		}
	}
}

func TestBOMAndCRLF(t *testing.T) {
	res := ParseString("\ufeffheart_rate,steps\r\n70,10\r\n", DefaultOptions())
	if res.Meta.Linebreak != "\r\n" {
		t.Fatalf("expected CRLF, got %q", res.Meta.Linebreak)
	}
	if !res.Data[0].Has("heart_rate") {
		t.Fatalf("BOM must be stripped from first header, got %v", res.Meta.Fields)
	}
}

func TestParseBytesReplacesInvalidUTF8(t *testing.T) {
	res := ParseBytes([]byte("name,v\nab\xffc,1\n"), DefaultOptions())
	if v, _ := res.Data[0].Get("name"); v != "ab\uFFFDc" {
		t.Fatalf("expected replacement char, got %q", v)
	}
}

func TestDynamicTypingDisabled(t *testing.T) {
	res := ParseString("a\n1\n", Options{Delimiter: ","})
	if v, _ := res.Data[0].Get("a"); v != "1" {
		t.Fatalf("expected raw string, got %#v", v)
	}
}

func TestHugeNumbersStayStrings(t *testing.T) {
	res := ParseString("id\n12345678901234567890\n", DefaultOptions())
	if v, _ := res.Data[0].Get("id"); v != "12345678901234567890" {
		t.Fatalf("expected string for unsafe integer, got %#v", v)
	}
}

func TestEmptyInput(t *testing.T) {
	res := ParseString("", DefaultOptions())
	if len(res.Data) != 0 || len(res.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}
