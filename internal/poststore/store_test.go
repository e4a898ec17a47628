package poststore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/plan"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFavorites map[int64][]int64

func (f fakeFavorites) FavoritePostIDs(userID int64) ([]int64, error) {
	return f[userID], nil
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func int64p(v int64) *int64 { return &v }

func testPosts() []*Post {
	commented := base.Add(-time.Hour)
	return []*Post{
		{
			ID: 1, Tags: []string{"touhou", "hakurei_reimu"}, Rating: "s", Score: 5,
			Width: 1920, Height: 1080, FileSize: 2048, FileExt: "png", MD5: "AAA",
			CreatedAt: base.Add(-72 * time.Hour), UploaderID: 1, PoolIDs: []int64{10},
			PoolCategories: []string{"series"}, LastCommentedAt: &commented,
			Source: "https://Example.com/1",
		},
		{
			ID: 2, Tags: []string{"touhou", "kirisame_marisa"}, Rating: "q", Score: 20,
			Width: 800, Height: 1200, FileSize: 4096, FileExt: "jpg", MD5: "bbb",
			CreatedAt: base.Add(-24 * time.Hour), UploaderID: 2, ParentID: int64p(1),
			FavoritedBy: []int64{1},
		},
		{
			ID: 3, Tags: []string{"landscape"}, Rating: "e", Score: 15,
			FileExt: "gif", MD5: "ccc", CreatedAt: base.Add(-time.Hour), UploaderID: 1,
			IsDeleted: true, PoolIDs: []int64{10}, PoolCategories: []string{"series"},
			FlaggerIDs: []int64{3}, FavoritedBy: []int64{1},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "posts.bleve"), fakeFavorites{1: {2, 3}})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Put(testPosts()...))
	return s
}

func searchIDs(t *testing.T, s *Store, q *query.ParsedQuery) []int64 {
	t.Helper()
	p := plan.NewBuilder(query.DefaultCategories()).Build(q, base)
	res, err := s.Search(context.Background(), p, SearchOptions{Limit: 10})
	require.NoError(t, err)
	return res.IDs()
}

func TestStore_GetAndStats(t *testing.T) {
	s := openTestStore(t)

	p, err := s.Get(2)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "kirisame_marisa", p.Tags[1])
	assert.Equal(t, int64(1), *p.ParentID)

	p, err = s.Get(404)
	require.NoError(t, err)
	assert.Nil(t, p)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Posts)
}

func TestStore_SearchAll(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, []int64{3, 2, 1}, searchIDs(t, s, &query.ParsedQuery{}))
	assert.Equal(t, []int64{1, 2, 3}, searchIDs(t, s, &query.ParsedQuery{Order: "id_asc"}))
}

func TestStore_SearchTags(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []int64{2, 1}, searchIDs(t, s, &query.ParsedQuery{
		Tags: query.TagSet{Related: []string{"touhou"}},
	}))
	assert.Equal(t, []int64{2}, searchIDs(t, s, &query.ParsedQuery{
		Tags: query.TagSet{Related: []string{"touhou"}, Exclude: []string{"hakurei_reimu"}},
	}))
	assert.Equal(t, []int64{3, 1}, searchIDs(t, s, &query.ParsedQuery{
		Tags: query.TagSet{Include: []string{"hakurei_reimu", "landscape"}},
	}))
	assert.Empty(t, searchIDs(t, s, &query.ParsedQuery{
		Tags: query.TagSet{Include: []string{query.NoMatchesTag}},
	}))
	assert.Equal(t, []int64{3, 2}, searchIDs(t, s, &query.ParsedQuery{
		Tags: query.TagSet{Related: []string{query.FavoriteTag(1)}},
	}))
}

func TestStore_SearchRanges(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []int64{3, 2}, searchIDs(t, s, &query.ParsedQuery{
		Score: &query.Range{Op: query.RangeGt, Values: []any{int64(10)}},
	}))
	assert.Equal(t, []int64{2, 1}, searchIDs(t, s, &query.ParsedQuery{
		FileSize: &query.Range{Op: query.RangeBetween, Values: []any{int64(2000), int64(5000)}},
	}))
	assert.Equal(t, []int64{3, 2}, searchIDs(t, s, &query.ParsedQuery{
		Age: &query.Range{Op: query.RangeGt, Values: []any{base.Add(-48 * time.Hour)}},
	}))
	assert.Equal(t, []int64{1}, searchIDs(t, s, &query.ParsedQuery{
		Ratio: &query.Range{Op: query.RangeEq, Values: []any{1.78}},
	}))
}

func TestStore_SearchScoreOrder(t *testing.T) {
	s := openTestStore(t)

	got := searchIDs(t, s, &query.ParsedQuery{
		Score:     &query.Range{Op: query.RangeGt, Values: []any{int64(1)}},
		RatingNeg: "e",
		Order:     "score",
	})
	assert.Equal(t, []int64{2, 1}, got)
}

func TestStore_SearchStatusAndFlags(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []int64{2, 1}, searchIDs(t, s, &query.ParsedQuery{HideDeleted: true}))
	assert.Equal(t, []int64{3}, searchIDs(t, s, &query.ParsedQuery{Status: "deleted"}))
	assert.Equal(t, []int64{3}, searchIDs(t, s, &query.ParsedQuery{
		Flaggers:      []query.Ref{{Kind: query.RefAny}},
		ViewerIsAdmin: true,
	}))
}

func TestStore_SearchPresence(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []int64{3}, searchIDs(t, s, &query.ParsedQuery{
		Pools: []query.PoolFilter{{Kind: query.PoolIDs, IDs: []int64{10}}},
		Tags:  query.TagSet{Exclude: []string{"touhou"}},
	}))
	assert.Equal(t, []int64{2}, searchIDs(t, s, &query.ParsedQuery{
		Pools: []query.PoolFilter{{Kind: query.PoolNone}},
	}))
	assert.Equal(t, []int64{2, 1}, searchIDs(t, s, &query.ParsedQuery{
		Parent: &query.Ref{Kind: query.RefID, ID: 1},
	}))
	assert.Equal(t, []int64{1}, searchIDs(t, s, &query.ParsedQuery{
		Commenters: []query.Ref{{Kind: query.RefAny}},
	}))
	assert.Empty(t, searchIDs(t, s, &query.ParsedQuery{
		Uploader: &query.Ref{Kind: query.RefNoMatch},
	}))
}

func TestStore_SearchListOrders(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []int64{2, 3, 1}, searchIDs(t, s, &query.ParsedQuery{
		PostID: &query.Range{Op: query.RangeIn, Values: []any{int64(2), int64(3), int64(1)}},
		Order:  "custom",
	}))
	assert.Equal(t, []int64{3, 1}, searchIDs(t, s, &query.ParsedQuery{
		Pools:   []query.PoolFilter{{Kind: query.PoolIDs, IDs: []int64{10}}},
		OrdPool: &query.Pool{ID: 10, Name: "touhou", PostIDs: []int64{3, 1}},
	}))

	favOf := int64(1)
	assert.Equal(t, []int64{2, 3}, searchIDs(t, s, &query.ParsedQuery{
		Tags:   query.TagSet{Related: []string{query.FavoriteTag(1)}},
		OrdFav: &favOf,
	}))
}

func TestStore_SearchWindow(t *testing.T) {
	s := openTestStore(t)
	b := plan.NewBuilder(query.DefaultCategories())

	res, err := s.Search(context.Background(), b.Build(&query.ParsedQuery{}, base), SearchOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, res.IDs())
	assert.Equal(t, uint64(3), res.Total)

	p := b.Build(&query.ParsedQuery{
		PostID: &query.Range{Op: query.RangeIn, Values: []any{int64(1), int64(3), int64(2)}},
		Order:  "custom",
	}, base)
	res, err = s.Search(context.Background(), p, SearchOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, res.IDs())

	res, err = s.Search(context.Background(), p, SearchOptions{Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, res.IDs())
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Delete(2))
	assert.Equal(t, []int64{3, 1}, searchIDs(t, s, &query.ParsedQuery{}))
}
