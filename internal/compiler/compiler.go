// Package compiler turns query strings into search plans.
package compiler

import (
	"slices"
	"strings"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/plan"
	"github.com/AvengeMedia/dankbooru/internal/query"
)

// Compiler parses queries and builds plans from them. It holds no per-query
// state and is safe for concurrent use when its resolvers are.
type Compiler struct {
	parser  *query.Parser
	builder *plan.Builder
	now     func() time.Time
}

// Explanation is everything the compiler derives from one query.
type Explanation struct {
	Query      string             `json:"query"`
	Tokens     []string           `json:"tokens"`
	Normalized string             `json:"normalized"`
	Signature  string             `json:"signature"`
	Parsed     *query.ParsedQuery `json:"parsed"`
	Plan       *plan.QueryPlan    `json:"plan"`
}

func New(resolvers query.Resolvers, opts query.Options) *Compiler {
	if len(opts.Categories) == 0 {
		opts.Categories = query.DefaultCategories()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Compiler{
		parser:  query.NewParser(resolvers, opts),
		builder: plan.NewBuilder(opts.Categories),
		now:     opts.Now,
	}
}

// FromConfig builds a compiler using the configured tag limit, unlimited tag
// patterns and tag categories.
func FromConfig(cfg *config.Config, resolvers query.Resolvers) *Compiler {
	return New(resolvers, Options(cfg))
}

func Options(cfg *config.Config) query.Options {
	return query.Options{
		MaxTagCount: cfg.MaxTagCount,
		IsUnlimited: cfg.IsUnlimitedTag,
		Categories:  Categories(cfg),
	}
}

func Categories(cfg *config.Config) []query.Category {
	if len(cfg.TagCategories) == 0 {
		return query.DefaultCategories()
	}
	out := make([]query.Category, len(cfg.TagCategories))
	for i, c := range cfg.TagCategories {
		out[i] = query.Category{Name: c.Name, Short: c.Short}
	}
	return out
}

// ActorFromConfig converts the configured default actor.
func ActorFromConfig(a config.Actor) *query.Actor {
	return &query.Actor{
		ID:               a.ID,
		Name:             a.Name,
		IsAdmin:          a.Admin,
		IsMember:         a.Member || a.Admin,
		IsVoter:          a.Voter,
		SafeMode:         a.SafeMode,
		AdminMode:        a.AdminMode,
		HideDeletedPosts: a.HideDeletedPosts,
	}
}

func (c *Compiler) Parse(q string, actor *query.Actor) (*query.ParsedQuery, error) {
	return c.parser.Parse(q, actor)
}

// Compile parses q for actor and builds its plan.
func (c *Compiler) Compile(q string, actor *query.Actor) (*plan.QueryPlan, error) {
	parsed, err := c.parser.Parse(q, actor)
	if err != nil {
		return nil, err
	}
	p := c.builder.Build(parsed, c.now())
	log.Debugf("compiled %q: %d predicates, order %s", q, len(p.Predicates), p.Sort.Name)
	return p, nil
}

func (c *Compiler) Normalize(q string, aliases, sorted bool) (string, error) {
	return c.parser.Normalize(q, aliases, sorted)
}

// Explain compiles q and returns every intermediate form.
func (c *Compiler) Explain(q string, actor *query.Actor) (*Explanation, error) {
	parsed, err := c.parser.Parse(q, actor)
	if err != nil {
		return nil, err
	}
	normalized, err := c.parser.Normalize(q, true, true)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		Query:      q,
		Tokens:     query.ScanSlice(q, false),
		Normalized: normalized,
		Signature:  Signature(q),
		Parsed:     parsed,
		Plan:       c.builder.Build(parsed, c.now()),
	}, nil
}

// Orders lists every accepted order: value.
func (c *Compiler) Orders() []string {
	return c.builder.Orders().Names()
}

// Metatags lists every recognized metatag name.
func (c *Compiler) Metatags() []string {
	return c.parser.Metatags()
}

// Signature is a cache key for q: equal token sets give equal signatures.
func Signature(q string) string {
	tokens := query.ScanSlice(q, false)
	slices.Sort(tokens)
	return "ps-" + strings.Join(tokens, " ")
}
