// Package csvparse turns loosely structured CSV text into ordered row records
// keyed by the header row. Structural problems are collected per row instead
// of aborting the parse; callers decide whether to continue.
package csvparse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/geririsk/platform/pkg/dataset"
)

const ExtraFieldsKey = "__parsed_extra"

type ErrorCode string

const (
	CodeTooFewFields  ErrorCode = "TooFewFields"
	CodeTooManyFields ErrorCode = "TooManyFields"
	CodeInvalidQuotes ErrorCode = "InvalidQuotes"
)

// RowError describes one malformed data row. Row is the 0-based index of the
// data row, excluding the header.
type RowError struct {
	Type    string    `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Row     int       `json:"row"`
}

type Meta struct {
	Delimiter  string   `json:"delimiter"`
	Linebreak  string   `json:"linebreak"`
	Fields     []string `json:"fields"`
	FieldCount int      `json:"fieldCount"`
}

type Result struct {
	Data   []*dataset.Record
	Errors []RowError
	Meta   Meta
}

// Err returns a *StructuralError when any row failed, nil otherwise.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &StructuralError{Errors: r.Errors}
}

type StructuralError struct {
	Errors []RowError
}

func (e *StructuralError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("CSV parsing errors: row %d: %s", e.Errors[0].Row, e.Errors[0].Message)
	}
	return fmt.Sprintf("CSV parsing errors: %d malformed rows", len(e.Errors))
}

func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

type Options struct {
	// Delimiter forces the field separator; empty means auto-detect.
	Delimiter string
	// DynamicTyping converts numeric and boolean text and maps empty fields to nil.
	DynamicTyping bool
	// TransformHeader, when set, is applied to each header name.
	TransformHeader func(string) string
}

func DefaultOptions() Options {
	return Options{DynamicTyping: true}
}

var candidateDelimiters = []string{",", "\t", "|", ";"}

var floatPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

// 2^53, the largest magnitude a float64 holds without losing integer precision.
const maxSafeFloat = 9007199254740992

// ParseBytes decodes raw upload bytes as UTF-8, replacing invalid sequences,
// and parses them.
func ParseBytes(raw []byte, opts Options) Result {
	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	return ParseString(text, opts)
}

func ParseString(text string, opts Options) Result {
	text = strings.TrimPrefix(text, "\ufeff")

	linebreak := detectLinebreak(text)
	if linebreak == "\r" {
		text = strings.ReplaceAll(text, "\r", "\n")
	}

	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = guessDelimiter(text)
	}

	result := Result{Meta: Meta{Delimiter: delimiter, Linebreak: linebreak}}

	reader := newReader(text, delimiter)
	reader.LazyQuotes = true
	openLine := unterminatedQuoteLine(text, delimiter)
	var header []string
	row := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				result.Errors = append(result.Errors, RowError{Type: "Quotes", Code: CodeInvalidQuotes, Message: err.Error(), Row: row})
				break
			}
			result.Errors = append(result.Errors, RowError{
				Type:    "Quotes",
				Code:    CodeInvalidQuotes,
				Message: fmt.Sprintf("line %d: %v", pe.Line, pe.Err),
				Row:     row,
			})
			if header != nil {
				row++
			}
			continue
		}

		// A quoted field left open swallows the rest of the input.
		if line, _ := reader.FieldPos(len(fields) - 1); openLine > 0 && line == openLine {
			result.Errors = append(result.Errors, RowError{
				Type:    "Quotes",
				Code:    CodeInvalidQuotes,
				Message: fmt.Sprintf("line %d: quoted field is never closed", openLine),
				Row:     row,
			})
			break
		}

		if header == nil {
			header = buildHeader(fields, opts.TransformHeader)
			result.Meta.Fields = header
			result.Meta.FieldCount = len(header)
			continue
		}

		rec := dataset.NewRecord(len(header))
		n := len(fields)
		if n > len(header) {
			n = len(header)
		}
		for i := 0; i < n; i++ {
			rec.Set(header[i], convert(fields[i], opts.DynamicTyping))
		}

		switch {
		case len(fields) < len(header):
			result.Errors = append(result.Errors, RowError{
				Type:    "FieldMismatch",
				Code:    CodeTooFewFields,
				Message: fmt.Sprintf("Too few fields: expected %d fields but parsed %d", len(header), len(fields)),
				Row:     row,
			})
		case len(fields) > len(header):
			extra := make([]interface{}, 0, len(fields)-len(header))
			for _, f := range fields[len(header):] {
				extra = append(extra, convert(f, opts.DynamicTyping))
			}
			rec.Set(ExtraFieldsKey, extra)
			result.Errors = append(result.Errors, RowError{
				Type:    "FieldMismatch",
				Code:    CodeTooManyFields,
				Message: fmt.Sprintf("Too many fields: expected %d fields but parsed %d", len(header), len(fields)),
				Row:     row,
			})
		}

		result.Data = append(result.Data, rec)
		row++
	}

	return result
}

func newReader(text, delimiter string) *csv.Reader {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma, _ = utf8.DecodeRuneInString(delimiter)
	r.FieldsPerRecord = -1
	return r
}

// unterminatedQuoteLine returns the 1-based line of a quoted field that is
// still open at the end of text, or 0. Quotes that do not start a field are
// literal text.
func unterminatedQuoteLine(text, delimiter string) int {
	comma, _ := utf8.DecodeRuneInString(delimiter)
	line, openedAt := 1, 0
	fieldStart, quoted := true, false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch {
		case quoted:
			if r == '"' {
				if strings.HasPrefix(text[i:], `"`) {
					i++
				} else {
					quoted = false
				}
			}
		case fieldStart && r == '"':
			quoted, openedAt = true, line
		}
		if r == '\n' {
			line++
		}
		fieldStart = !quoted && (r == comma || r == '\n')
	}
	if quoted {
		return openedAt
	}
	return 0
}

func buildHeader(fields []string, transform func(string) string) []string {
	header := make([]string, len(fields))
	for i, f := range fields {
		if transform != nil {
			f = transform(f)
		}
		header[i] = f
	}
	return header
}

func convert(value string, dynamic bool) interface{} {
	if !dynamic {
		return value
	}
	switch value {
	case "":
		return nil
	case "true", "TRUE":
		return true
	case "false", "FALSE":
		return false
	}
	if floatPattern.MatchString(value) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && math.Abs(f) <= maxSafeFloat {
			return f
		}
	}
	return value
}

func detectLinebreak(text string) string {
	switch {
	case strings.Contains(text, "\r\n"):
		return "\r\n"
	case strings.Contains(text, "\n"):
		return "\n"
	case strings.Contains(text, "\r"):
		return "\r"
	default:
		return "\n"
	}
}

const previewRows = 10

// guessDelimiter picks the candidate whose preview rows split into a stable
// number of fields (lowest variation), preferring more fields on ties.
// Single-column input falls back to a comma.
func guessDelimiter(text string) string {
	best := ","
	bestDelta := math.MaxInt
	bestAvg := 0.0

	for _, delim := range candidateDelimiters {
		reader := newReader(text, delim)
		reader.LazyQuotes = true

		var counts []int
		for len(counts) < previewRows {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					continue
				}
				break
			}
			counts = append(counts, len(fields))
		}
		if len(counts) == 0 {
			continue
		}

		total, delta := 0, 0
		for i, c := range counts {
			total += c
			if i > 0 {
				d := c - counts[i-1]
				if d < 0 {
					d = -d
				}
				delta += d
			}
		}
		avg := float64(total) / float64(len(counts))
		if avg < 1.99 {
			continue
		}
		if delta < bestDelta || (delta == bestDelta && avg > bestAvg) {
			best, bestDelta, bestAvg = delim, delta, avg
		}
	}

	return best
}
