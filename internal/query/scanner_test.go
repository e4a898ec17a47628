package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		query string
		strip bool
		want  []string
	}{
		{
			name:  "empty",
			query: "   ",
			want:  nil,
		},
		{
			name:  "whitespace runs",
			query: "  touhou \t hakurei_reimu\nscore:>5 ",
			want:  []string{"touhou", "hakurei_reimu", "score:>5"},
		},
		{
			name:  "duplicates removed",
			query: "touhou touhou -touhou touhou",
			want:  []string{"touhou", "-touhou"},
		},
		{
			name:  "full-width space",
			query: "touhou　reimu",
			want:  []string{"touhou", "reimu"},
		},
		{
			name:  "source literal first",
			query: `touhou source:"http://a.example/x y" reimu`,
			want:  []string{`source:"http://a.example/x y"`, "touhou", "reimu"},
		},
		{
			name:  "negated source literal",
			query: `touhou -source:"pixiv fanbox"`,
			want:  []string{`-source:"pixiv fanbox"`, "touhou"},
		},
		{
			name:  "source literals are not deduplicated",
			query: `source:"a" source:"a"`,
			want:  []string{`source:"a"`, `source:"a"`},
		},
		{
			name:  "unterminated source literal",
			query: `source:"abc def`,
			want:  []string{`source:"abc`, `def`},
		},
		{
			name:  "strip metatags",
			query: "-touhou ~reimu --double marisa",
			strip: true,
			want:  []string{"touhou", "reimu", "-double", "marisa"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScanSlice(tt.query, tt.strip))
		})
	}
}

func TestScan_Restartable(t *testing.T) {
	seq := Scan(`a b source:"c d" a`, false)

	var first, second []string
	for tok := range seq {
		first = append(first, tok)
	}
	for tok := range seq {
		second = append(second, tok)
	}

	assert.Equal(t, first, second)
	assert.Equal(t, []string{`source:"c d"`, "a", "b"}, first)
}

func TestScan_EarlyBreak(t *testing.T) {
	var got []string
	for tok := range Scan("a b c d", false) {
		got = append(got, tok)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestScan_Idempotent(t *testing.T) {
	queries := []string{
		"touhou touhou  reimu",
		"-a ~b c:d c:d e*",
		"score:>5 order:score rating:s limit:10",
		"　x  y　x",
	}
	for _, q := range queries {
		once := ScanSlice(q, false)
		twice := ScanSlice(strings.Join(once, " "), false)
		assert.Equal(t, once, twice, q)
	}
}
