package compiler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/catalog"
	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/plan"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"), 6)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	require.NoError(t, cat.PutTag(catalog.Tag{Name: "touhou", Category: "copyright", PostCount: 10}))
	require.NoError(t, cat.PutTag(catalog.Tag{Name: "hakurei_reimu", Category: "character", PostCount: 4}))
	require.NoError(t, cat.PutAlias("reimu", "hakurei_reimu"))
	require.NoError(t, cat.PutUser(query.User{ID: 1, Name: "alice"}))
	require.NoError(t, cat.PutPool(query.Pool{ID: 10, Name: "touhou_comics", Category: "series", PostIDs: []int64{3, 1}}))

	cfg := config.Default()
	opts := Options(cfg)
	opts.Now = func() time.Time { return now }
	return New(cat.Resolvers(), opts)
}

func TestCompile_ScoreRatingOrder(t *testing.T) {
	c := newTestCompiler(t)

	p, err := c.Compile("score:>10 -rating:e order:score", query.Anonymous())
	require.NoError(t, err)

	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldScore, Op: plan.OpGt, Values: []any{int64(10)}})
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldRating, Op: plan.OpNe, Values: []any{"e"}})
	assert.Equal(t, "score", p.Sort.Name)
	assert.Equal(t, []plan.SortKey{
		{Field: plan.FieldScore, Desc: true},
		{Field: plan.FieldID, Desc: true},
	}, p.Sort.Keys)
}

func TestCompile_PoolNone(t *testing.T) {
	c := newTestCompiler(t)

	p, err := c.Compile("pool:none", query.Anonymous())
	require.NoError(t, err)

	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldPoolIDs, Op: plan.OpAbsent})
	assert.Equal(t, plan.DefaultOrder, p.Sort.Name)
}

func TestCompile_DateRewritesOrder(t *testing.T) {
	c := newTestCompiler(t)

	p, err := c.Compile("date:2020-01-01 order:id", query.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "created_at_desc", p.Sort.Name)

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldCreatedAt, Op: plan.OpGte, Values: []any{day}})
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldCreatedAt, Op: plan.OpLt, Values: []any{day.AddDate(0, 0, 1)}})
}

func TestCompile_UnparsedDateKeepsOrder(t *testing.T) {
	c := newTestCompiler(t)

	p, err := c.Compile("date:notadate", query.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, plan.DefaultOrder, p.Sort.Name)
	for _, pred := range p.Predicates {
		assert.NotEqual(t, plan.FieldCreatedAt, pred.Field)
	}
}

func TestCompile_AppealerHidesOwnUploads(t *testing.T) {
	c := newTestCompiler(t)
	viewer := &query.Actor{ID: 7, Name: "viewer", IsMember: true}

	p, err := c.Compile("appealer:alice", viewer)
	require.NoError(t, err)
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldAppealerIDs, Op: plan.OpEq, Values: []any{int64(1)}})
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldUploaderID, Op: plan.OpNe, Values: []any{int64(7)}})

	p, err = c.Compile("-appealer:alice", viewer)
	require.NoError(t, err)
	assert.Contains(t, p.Predicates, plan.Predicate{Op: plan.OpOr, Any: []plan.Predicate{
		{Field: plan.FieldAppealerIDs, Op: plan.OpNotIn, Values: []any{int64(1)}},
		{Field: plan.FieldUploaderID, Op: plan.OpEq, Values: []any{int64(7)}},
	}})

	admin := &query.Actor{ID: 7, Name: "viewer", IsMember: true, IsAdmin: true}
	p, err = c.Compile("appealer:alice", admin)
	require.NoError(t, err)
	assert.NotContains(t, p.Predicates, plan.Predicate{Field: plan.FieldUploaderID, Op: plan.OpNe, Values: []any{int64(7)}})
}

func TestCompile_Tags(t *testing.T) {
	c := newTestCompiler(t)

	p, err := c.Compile("reimu -zzz*", query.Anonymous())
	require.NoError(t, err)
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldTags, Op: plan.OpAll, Values: []any{"hakurei_reimu"}})
	for _, pred := range p.Predicates {
		assert.NotEqual(t, plan.OpNotIn, pred.Op, "exclude wildcard without matches is dropped")
	}

	p, err = c.Compile("zzz*", query.Anonymous())
	require.NoError(t, err)
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldTags, Op: plan.OpIn, Values: []any{query.NoMatchesTag}})
}

func TestCompile_Errors(t *testing.T) {
	c := newTestCompiler(t)

	_, err := c.Compile("a b c d e f g", query.Anonymous())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrTagLimitExceeded))

	// Unlimited tags do not count against the limit.
	_, err = c.Compile("a b c d e f rating:s status:deleted limit:5", query.Anonymous())
	assert.NoError(t, err)

	_, err = c.Compile("pool:missing", query.Anonymous())
	require.Error(t, err)
	assert.True(t, errdefs.IsType(err, errdefs.ErrTypeUnresolvableEntity))

	p, err := c.Compile("user:nobody", query.Anonymous())
	require.NoError(t, err)
	assert.Contains(t, p.Predicates, plan.Predicate{Field: plan.FieldUploaderID, Op: plan.OpNone})
}

func TestCompile_OrdPool(t *testing.T) {
	c := newTestCompiler(t)

	p, err := c.Compile("ordpool:touhou_comics", query.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, p.Sort.PoolPostIDs)
	assert.Contains(t, p.Sort.Joins, plan.JoinPoolPosts)
}

func TestCompiler_Normalize(t *testing.T) {
	c := newTestCompiler(t)

	got, err := c.Normalize("Touhou reimu touhou", true, true)
	require.NoError(t, err)
	assert.Equal(t, "hakurei_reimu touhou", got)

	got, err = c.Normalize("Touhou reimu", false, false)
	require.NoError(t, err)
	assert.Equal(t, "touhou reimu", got)
}

func TestCompiler_Explain(t *testing.T) {
	c := newTestCompiler(t)

	e, err := c.Explain("touhou score:>1", query.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, []string{"touhou", "score:>1"}, e.Tokens)
	assert.Equal(t, "ps-score:>1 touhou", e.Signature)
	assert.Equal(t, []string{"touhou"}, e.Parsed.Tags.Related)
	assert.NotEmpty(t, e.Plan.Predicates)
}

func TestSignature(t *testing.T) {
	assert.Equal(t, Signature("b a"), Signature("a  b a"))
	assert.Equal(t, "ps-", Signature(""))
}

func TestActorFromConfig(t *testing.T) {
	a := ActorFromConfig(config.Actor{ID: 3, Name: "mod", Admin: true, SafeMode: true})
	assert.Equal(t, int64(3), a.ID)
	assert.True(t, a.IsAdmin)
	assert.True(t, a.IsMember)
	assert.True(t, a.SafeMode)
}

func TestCategories(t *testing.T) {
	cfg := config.Default()
	cfg.TagCategories = []config.TagCategory{{Name: "species", Short: "spec"}}
	assert.Equal(t, []query.Category{{Name: "species", Short: "spec"}}, Categories(cfg))

	cfg.TagCategories = nil
	assert.Equal(t, query.DefaultCategories(), Categories(cfg))
}
