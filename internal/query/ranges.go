package query

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Kind is the semantic type of a range operand.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindDate
	KindAge
	KindRatio
	KindFilesize
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindAge:
		return "age"
	case KindRatio:
		return "ratio"
	case KindFilesize:
		return "filesize"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RangeOp is a comparison operator in a range expression
type RangeOp int

const (
	RangeEq RangeOp = iota
	RangeGt
	RangeGte
	RangeLt
	RangeLte
	RangeBetween
	RangeIn
)

func (op RangeOp) String() string {
	switch op {
	case RangeEq:
		return "eq"
	case RangeGt:
		return "gt"
	case RangeGte:
		return "gte"
	case RangeLt:
		return "lt"
	case RangeLte:
		return "lte"
	case RangeBetween:
		return "between"
	case RangeIn:
		return "in"
	default:
		return "?"
	}
}

func (op RangeOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// Range is a parsed comparison. Values holds one operand for the unary
// operators, two for RangeBetween (in the order written) and any number for
// RangeIn. Operands are int64, float64 or time.Time depending on Kind; an
// operand that could not be parsed is nil.
type Range struct {
	Op     RangeOp `json:"op"`
	Kind   Kind    `json:"kind"`
	Values []any   `json:"values"`
}

// Valid reports whether every operand parsed.
func (r Range) Valid() bool {
	if len(r.Values) == 0 {
		return false
	}
	for _, v := range r.Values {
		if v == nil {
			return false
		}
	}
	return true
}

// Reverse flips the comparison direction. Age ranges are reversed after
// conversion to absolute times: older than X means created before now-X.
func (r Range) Reverse() Range {
	out := Range{Op: r.Op, Kind: r.Kind, Values: append([]any(nil), r.Values...)}
	switch r.Op {
	case RangeBetween:
		if len(out.Values) == 2 {
			out.Values[0], out.Values[1] = out.Values[1], out.Values[0]
		}
	case RangeLte:
		out.Op = RangeGte
	case RangeLt:
		out.Op = RangeGt
	case RangeGte:
		out.Op = RangeLte
	case RangeGt:
		out.Op = RangeLt
	}
	return out
}

// ParseRange parses range text relative to the current time.
func ParseRange(text string, kind Kind) Range {
	return parseRange(text, kind, time.Now())
}

// ParseFudged parses mpixels and filesize values. An exact match is widened
// to a 5% tolerance unless a filesize was written with a unit suffix.
func ParseFudged(text string, kind Kind) Range {
	return parseFudged(text, kind, time.Now())
}

func parseFudged(text string, kind Kind, now time.Time) Range {
	r := parseRange(text, kind, now)
	if r.Op != RangeEq || !r.Valid() {
		return r
	}

	switch v := r.Values[0].(type) {
	case int64:
		if kind == KindFilesize && hasSizeSuffix(text) {
			return r
		}
		lo, _ := toInt64(float64(v) * 0.95)
		hi, ok := toInt64(float64(v) * 1.05)
		if !ok {
			hi = math.MaxInt64
		}
		return Range{Op: RangeBetween, Kind: kind, Values: []any{lo, hi}}
	case float64:
		return Range{Op: RangeBetween, Kind: kind, Values: []any{v * 0.95, v * 1.05}}
	}
	return r
}

func parseRange(text string, kind Kind, now time.Time) Range {
	unary := func(op RangeOp, s string) Range {
		return Range{Op: op, Kind: kind, Values: []any{castValue(s, kind, now)}}
	}

	// A..B where A is non-empty and B is whatever follows the first "..".
	for i := 1; i+2 < len(text); i++ {
		if text[i] == '.' && text[i+1] == '.' {
			return Range{
				Op:     RangeBetween,
				Kind:   kind,
				Values: []any{castValue(text[:i], kind, now), castValue(text[i+2:], kind, now)},
			}
		}
	}

	switch {
	case len(text) > 2 && strings.HasPrefix(text, "<="):
		return unary(RangeLte, text[2:])
	case len(text) > 2 && strings.HasPrefix(text, ".."):
		return unary(RangeLte, text[2:])
	case len(text) > 1 && strings.HasPrefix(text, "<"):
		return unary(RangeLt, text[1:])
	case len(text) > 2 && strings.HasPrefix(text, ">="):
		return unary(RangeGte, text[2:])
	case len(text) > 2 && strings.HasSuffix(text, ".."):
		return unary(RangeGte, text[:len(text)-2])
	case len(text) > 1 && strings.HasPrefix(text, ">"):
		return unary(RangeGt, text[1:])
	case strings.ContainsAny(text, ", "):
		parts := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' })
		values := make([]any, 0, len(parts))
		for _, part := range parts {
			values = append(values, castValue(part, kind, now))
		}
		return Range{Op: RangeIn, Kind: kind, Values: values}
	}

	return unary(RangeEq, text)
}

func castValue(s string, kind Kind, now time.Time) any {
	switch kind {
	case KindInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, ok := parseFloat(s); ok {
			if n, ok := toInt64(f); ok {
				return n
			}
		}
		return nil
	case KindFloat:
		if f, ok := parseFloat(s); ok {
			return f
		}
		return nil
	case KindDate:
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil
		}
		return t
	case KindAge:
		d, err := ParseDuration(s)
		if err != nil {
			return nil
		}
		return now.Add(-d)
	case KindRatio:
		return parseRatio(s)
	case KindFilesize:
		return parseFilesize(s)
	}
	return nil
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func parseRatio(s string) any {
	if w, h, ok := strings.Cut(s, ":"); ok {
		wf, wok := parseFloat(w)
		hf, hok := parseFloat(h)
		if !wok || !hok || wf < 0 || hf <= 0 {
			return nil
		}
		return round2(wf / hf)
	}
	f, ok := parseFloat(s)
	if !ok {
		return nil
	}
	return round2(f)
}

// parseFilesize accepts <number>[k|m][b], case-insensitive.
func parseFilesize(s string) any {
	num := strings.ToLower(s)
	num = strings.TrimSuffix(num, "b")

	factor := 1.0
	switch {
	case strings.HasSuffix(num, "k"):
		factor = 1024
		num = num[:len(num)-1]
	case strings.HasSuffix(num, "m"):
		factor = 1024 * 1024
		num = num[:len(num)-1]
	}

	if num == "" || strings.ContainsAny(num, "+-eE") {
		return nil
	}
	f, ok := parseFloat(num)
	if !ok {
		return nil
	}
	n, ok := toInt64(f * factor)
	if !ok {
		return nil
	}
	return n
}

// toInt64 truncates f, failing when it is outside the int64 range.
func toInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func hasSizeSuffix(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case 'k', 'K', 'm', 'M', 'b', 'B':
		return true
	}
	return false
}
