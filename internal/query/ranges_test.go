package query

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange_Integer(t *testing.T) {
	tests := []struct {
		text   string
		op     RangeOp
		values []any
	}{
		{"5", RangeEq, []any{int64(5)}},
		{"1..5", RangeBetween, []any{int64(1), int64(5)}},
		{"5..1", RangeBetween, []any{int64(5), int64(1)}},
		{"<=5", RangeLte, []any{int64(5)}},
		{"..5", RangeLte, []any{int64(5)}},
		{"<5", RangeLt, []any{int64(5)}},
		{">=5", RangeGte, []any{int64(5)}},
		{"5..", RangeGte, []any{int64(5)}},
		{">5", RangeGt, []any{int64(5)}},
		{"1,2,3", RangeIn, []any{int64(1), int64(2), int64(3)}},
		{"1,,2", RangeIn, []any{int64(1), int64(2)}},
		{"-3", RangeEq, []any{int64(-3)}},
		{"2.7", RangeEq, []any{int64(2)}},
		{"abc", RangeEq, []any{nil}},
		{"1..abc", RangeBetween, []any{int64(1), nil}},
		{"<", RangeEq, []any{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r := ParseRange(tt.text, KindInteger)
			assert.Equal(t, tt.op, r.Op)
			assert.Equal(t, tt.values, r.Values)
			assert.Equal(t, KindInteger, r.Kind)
		})
	}
}

func TestParseRange_BetweenKeepsWrittenOrder(t *testing.T) {
	pairs := [][2]string{{"1", "5"}, {"100", "7"}, {"2.5", "0.5"}}
	for _, p := range pairs {
		fwd := ParseRange(p[0]+".."+p[1], KindFloat)
		rev := ParseRange(p[1]+".."+p[0], KindFloat)
		require.Equal(t, RangeBetween, fwd.Op)
		require.Equal(t, RangeBetween, rev.Op)
		assert.Equal(t, fwd.Values[0], rev.Values[1])
		assert.Equal(t, fwd.Values[1], rev.Values[0])
	}
}

func TestParseRange_Valid(t *testing.T) {
	assert.True(t, ParseRange("1..2", KindInteger).Valid())
	assert.False(t, ParseRange("x", KindInteger).Valid())
	assert.False(t, ParseRange("1,x", KindInteger).Valid())
	assert.False(t, Range{}.Valid())
}

func TestParseRange_Ratio(t *testing.T) {
	tests := []struct {
		text string
		want any
	}{
		{"16:9", 1.78},
		{"4:3", 1.33},
		{"1.5", 1.5},
		{"1.234", 1.23},
		{"4:0", nil},
		{"wide", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r := ParseRange(tt.text, KindRatio)
			assert.Equal(t, RangeEq, r.Op)
			assert.Equal(t, tt.want, r.Values[0])
		})
	}
}

func TestParseRange_Date(t *testing.T) {
	r := ParseRange("2020-01-01..2020-02-01", KindDate)
	require.Equal(t, RangeBetween, r.Op)
	require.IsType(t, time.Time{}, r.Values[0])
	assert.True(t, r.Values[0].(time.Time).Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Values[1].(time.Time).Equal(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)))

	bad := ParseRange(">yesterdayish", KindDate)
	assert.Equal(t, RangeGt, bad.Op)
	assert.Nil(t, bad.Values[0])
}

func TestParseFudged(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		kind   Kind
		op     RangeOp
		values []any
	}{
		{"bare filesize is fudged", "100", KindFilesize, RangeBetween, []any{int64(95), int64(105)}},
		{"kilobytes stay exact", "100k", KindFilesize, RangeEq, []any{int64(102400)}},
		{"kb suffix stays exact", "100KB", KindFilesize, RangeEq, []any{int64(102400)}},
		{"megabytes stay exact", "1.5mb", KindFilesize, RangeEq, []any{int64(1572864)}},
		{"bytes suffix stays exact", "100b", KindFilesize, RangeEq, []any{int64(100)}},
		{"filesize range untouched", ">100k", KindFilesize, RangeGt, []any{int64(102400)}},
		{"filesize between", "1m..2m", KindFilesize, RangeBetween, []any{int64(1048576), int64(2097152)}},
		{"malformed filesize", "lots", KindFilesize, RangeEq, []any{nil}},
		{"mpixels range untouched", "<2", KindFloat, RangeLt, []any{2.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseFudged(tt.text, tt.kind)
			assert.Equal(t, tt.op, r.Op)
			assert.Equal(t, tt.values, r.Values)
		})
	}
}

func TestParseFudged_Mpixels(t *testing.T) {
	r := ParseFudged("2", KindFloat)
	require.Equal(t, RangeBetween, r.Op)
	assert.InDelta(t, 1.9, r.Values[0], 1e-9)
	assert.InDelta(t, 2.1, r.Values[1], 1e-9)
}

func TestRange_Reverse(t *testing.T) {
	a, b := int64(1), int64(2)
	tests := []struct {
		in   Range
		want Range
	}{
		{Range{Op: RangeLte, Values: []any{a}}, Range{Op: RangeGte, Values: []any{a}}},
		{Range{Op: RangeLt, Values: []any{a}}, Range{Op: RangeGt, Values: []any{a}}},
		{Range{Op: RangeGte, Values: []any{a}}, Range{Op: RangeLte, Values: []any{a}}},
		{Range{Op: RangeGt, Values: []any{a}}, Range{Op: RangeLt, Values: []any{a}}},
		{Range{Op: RangeBetween, Values: []any{a, b}}, Range{Op: RangeBetween, Values: []any{b, a}}},
		{Range{Op: RangeEq, Values: []any{a}}, Range{Op: RangeEq, Values: []any{a}}},
		{Range{Op: RangeIn, Values: []any{a, b}}, Range{Op: RangeIn, Values: []any{a, b}}},
	}

	for _, tt := range tests {
		t.Run(tt.in.Op.String(), func(t *testing.T) {
			got := tt.in.Reverse()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.Reverse())
		})
	}
}

func TestParseRange_Age(t *testing.T) {
	r := parseRange(">1d", KindAge, fixedNow).Reverse()
	require.Equal(t, RangeLt, r.Op)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), r.Values[0])

	r = parseRange("1d..1w", KindAge, fixedNow).Reverse()
	require.Equal(t, RangeBetween, r.Op)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), r.Values[0])
	assert.Equal(t, fixedNow.Add(-24*time.Hour), r.Values[1])
}

func TestParseRange_OutOfInt64Range(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind Kind
	}{
		{"huge megabytes", "99999999999999999999999m", KindFilesize},
		{"huge kilobytes", "<99999999999999999999k", KindFilesize},
		{"huge bytes", "99999999999999999999", KindFilesize},
		{"huge integer", "99999999999999999999.5", KindInteger},
		{"huge negative integer", "-99999999999999999999.5", KindInteger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseFudged(tt.text, tt.kind)
			assert.False(t, r.Valid(), "values = %v", r.Values)
		})
	}
}

func TestParseRange_AgeOutOfRange(t *testing.T) {
	r := parseRange("<99999999999y", KindAge, fixedNow)
	assert.Equal(t, RangeLt, r.Op)
	assert.Nil(t, r.Values[0])
	assert.False(t, r.Valid())
}

func TestParseFudged_ClampsUpperBound(t *testing.T) {
	r := ParseFudged("9000000000000000000", KindFilesize)
	require.Equal(t, RangeBetween, r.Op)
	require.IsType(t, int64(0), r.Values[0])
	assert.Less(t, r.Values[0].(int64), int64(9000000000000000000))
	assert.Equal(t, int64(math.MaxInt64), r.Values[1])
}
