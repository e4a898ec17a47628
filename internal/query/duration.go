package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// durationUnits is checked in order, so "mi" and "mo" must come before "m".
var durationUnits = []struct {
	prefix string
	unit   time.Duration
}{
	{"s", time.Second},
	{"mi", time.Minute},
	{"mo", month},
	{"h", time.Hour},
	{"d", day},
	{"w", week},
	{"y", year},
}

// ParseDuration parses an age such as "3d", "2weeks", "1mo" or "1.5y".
// A bare number is seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	unit := time.Second
	if suffix := s[end:]; suffix != "" {
		unit = 0
		for _, u := range durationUnits {
			if strings.HasPrefix(suffix, u.prefix) {
				unit = u.unit
				break
			}
		}
		if unit == 0 {
			return 0, fmt.Errorf("invalid duration unit %q", suffix)
		}
	}

	d := n * float64(unit)
	if d >= math.MaxInt64 {
		return 0, fmt.Errorf("duration %q out of range", s)
	}
	return time.Duration(d), nil
}
