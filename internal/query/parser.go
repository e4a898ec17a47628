package query

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/errdefs"
)

// Category is a tag category; "<Short>tags" searches its tag count.
type Category struct {
	Name  string
	Short string
}

func DefaultCategories() []Category {
	return []Category{
		{Name: "general", Short: "gen"},
		{Name: "artist", Short: "art"},
		{Name: "copyright", Short: "copy"},
		{Name: "character", Short: "char"},
		{Name: "meta", Short: "meta"},
	}
}

type Options struct {
	// MaxTagCount bounds the number of counted tokens; zero means unlimited.
	MaxTagCount int
	// IsUnlimited exempts a token from MaxTagCount.
	IsUnlimited func(token string) bool
	Categories  []Category
	// Now is the reference time for age: ranges.
	Now func() time.Time
}

// Parser turns query strings into ParsedQuery values. It holds no per-query
// state and is safe for concurrent use when its resolvers are.
type Parser struct {
	resolvers Resolvers
	opts      Options
	metatags  registry
}

func NewParser(resolvers Resolvers, opts Options) *Parser {
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Parser{
		resolvers: resolvers,
		opts:      opts,
		metatags:  newRegistry(opts.Categories),
	}
}

// Categories returns the configured tag categories.
func (p *Parser) Categories() []Category {
	return p.opts.Categories
}

// Metatags returns every metatag name the parser recognizes.
func (p *Parser) Metatags() []string {
	return p.metatags.Names()
}

// Metatag returns the metatag entry for name, if any.
func (p *Parser) Metatag(name string) (*Metatag, bool) {
	m, ok := p.metatags[strings.ToLower(name)]
	return m, ok
}

// CountTags returns the number of tokens counted against MaxTagCount.
func (p *Parser) CountTags(tokens []string) int {
	n := 0
	for _, tok := range tokens {
		if p.opts.IsUnlimited == nil || !p.opts.IsUnlimited(tok) {
			n++
		}
	}
	return n
}

// Parse parses query on behalf of actor. A nil actor is treated as
// anonymous.
func (p *Parser) Parse(query string, actor *Actor) (*ParsedQuery, error) {
	if actor == nil {
		actor = Anonymous()
	}

	tokens := ScanSlice(query, false)
	b := newBuilder(p, actor)

	for _, tok := range tokens {
		if m, value, ok := p.metatags.lookup(tok); ok {
			if err := m.handle(b, value); err != nil {
				return nil, err
			}
			continue
		}
		if err := b.tags.add(tok); err != nil {
			return nil, err
		}
	}

	// Metatag errors such as NotAuthorized take precedence over the limit.
	b.q.TagCount = p.CountTags(tokens)
	if p.opts.MaxTagCount > 0 && b.q.TagCount > p.opts.MaxTagCount {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeTagLimitExceeded,
			fmt.Sprintf("you cannot search for more than %d tags at a time", p.opts.MaxTagCount), nil)
	}

	return b.finish()
}

// Normalize returns the canonical form of a query: every token normalized
// like a tag name, optionally aliased and sorted, with duplicates removed.
func (p *Parser) Normalize(query string, aliases, sorted bool) (string, error) {
	tokens := ScanSlice(query, false)
	for i, tok := range tokens {
		tokens[i] = NormalizeTagName(tok)
	}

	if aliases && p.resolvers.Tags != nil {
		aliased, err := p.resolvers.Tags.ToAliased(tokens)
		if err != nil {
			return "", err
		}
		tokens = aliased
	}

	if sorted {
		sort.Strings(tokens)
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " "), nil
}

// CanonicalOrder lowercases an order: value and rewrites plural count
// synonyms, e.g. "Children_asc" becomes "child_count_asc".
func CanonicalOrder(value string) string {
	value = strings.ToLower(value)
	base, suffix := value, ""
	for _, s := range []string{"_asc", "_desc"} {
		if strings.HasSuffix(value, s) {
			base, suffix = strings.TrimSuffix(value, s), s
			break
		}
	}
	if column, ok := countSynonyms[base]; ok {
		return column + suffix
	}
	return value
}
