package analytics

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Shape identifies where an envelope keeps its row array.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeArray
	ShapeResult
	ShapeResultData
	ShapeResults
	ShapeData
	ShapeRows
)

// envelopeShapes lists the known envelopes in the order they are tried.
var envelopeShapes = []struct {
	shape Shape
	path  string
}{
	{ShapeArray, "@this"},
	{ShapeResult, "result"},
	{ShapeResultData, "result.data"},
	{ShapeResults, "results"},
	{ShapeData, "data"},
	{ShapeRows, "rows"},
}

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeResult:
		return "result"
	case ShapeResultData:
		return "result.data"
	case ShapeResults:
		return "results"
	case ShapeData:
		return "data"
	case ShapeRows:
		return "rows"
	default:
		return "unknown"
	}
}

// DetectShape returns the first known envelope whose row location holds an
// array. Invalid JSON is ShapeUnknown.
func DetectShape(body []byte) (Shape, gjson.Result) {
	if !gjson.ValidBytes(body) {
		return ShapeUnknown, gjson.Result{}
	}
	doc := gjson.ParseBytes(body)
	for _, candidate := range envelopeShapes {
		v := doc.Get(candidate.path)
		if v.IsArray() {
			return candidate.shape, v
		}
	}
	return ShapeUnknown, gjson.Result{}
}

// Rows unwraps an envelope into its row list. Unknown shapes yield an empty
// slice.
func Rows(body []byte) []gjson.Result {
	shape, arr := DetectShape(body)
	if shape == ShapeUnknown {
		return []gjson.Result{}
	}
	return arr.Array()
}

// FirstNumber reads field from the first row. Missing rows, missing fields
// and non-numeric values read as 0.
func FirstNumber(rows []gjson.Result, field string) float64 {
	if len(rows) == 0 {
		return 0
	}
	return Number(rows[0].Get(gjson.Escape(field)))
}

// FirstInt is FirstNumber rounded to the nearest integer.
func FirstInt(rows []gjson.Result, field string) int64 {
	return int64(math.Round(FirstNumber(rows, field)))
}

// Number accepts JSON numbers and numeric strings.
func Number(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// envelopeFailure reports the upstream message when an envelope signals
// failure via `success: false` or a non-empty `errors` list.
func envelopeFailure(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return "", false
	}

	errs := doc.Get("errors")
	failed := doc.Get("success").Type == gjson.False || (errs.IsArray() && len(errs.Array()) > 0)
	if !failed {
		return "", false
	}

	if errs.IsArray() {
		for _, e := range errs.Array() {
			if msg := e.Get("message"); msg.Exists() && msg.String() != "" {
				return msg.String(), true
			}
			if e.Type == gjson.String && e.Str != "" {
				return e.Str, true
			}
		}
	}
	if msg := doc.Get("error"); msg.Exists() && msg.String() != "" {
		return msg.String(), true
	}
	return "analytics engine reported failure", true
}
