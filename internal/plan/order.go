package plan

import (
	"slices"
	"strings"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/query"
)

// Missing controls where posts without a value for a sort field go.
type Missing int

const (
	MissingDefault Missing = iota
	MissingFirst
	MissingLast
)

type SortKey struct {
	Field   string  `json:"field"`
	Desc    bool    `json:"desc"`
	Missing Missing `json:"missing,omitempty"`
}

// Join names data outside the post document that an ordering depends on.
type Join string

const (
	JoinArtistCommentaries   Join = "artist_commentaries"
	JoinContributorFavorites Join = "contributor_favorites"
	JoinFlags                Join = "flags"
	JoinPoolPosts            Join = "pool_posts"
	JoinFavorites            Join = "favorites"
)

// SortDirective is a resolved ordering. Keys apply in order. Restrict holds
// the filters the ordering implies; Build copies them into the plan's
// predicates. CustomIDs, PoolPostIDs and FavoritesOf order ahead of Keys.
type SortDirective struct {
	Name        string      `json:"name"`
	Keys        []SortKey   `json:"keys,omitempty"`
	Joins       []Join      `json:"joins,omitempty"`
	Restrict    []Predicate `json:"restrict,omitempty"`
	Random      bool        `json:"random,omitempty"`
	CustomIDs   []int64     `json:"custom_ids,omitempty"`
	PoolPostIDs []int64     `json:"pool_post_ids,omitempty"`
	FavoritesOf *int64      `json:"favorites_of,omitempty"`
}

// DefaultOrder is used for empty and unrecognized order keys.
const DefaultOrder = "id_desc"

// RankWindow bounds order:rank to recent posts.
const RankWindow = 48 * time.Hour

// OrderTable maps order: values to sort directives.
type OrderTable struct {
	entries map[string]SortDirective
}

func keys(desc bool, fields ...string) []SortKey {
	out := make([]SortKey, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, SortKey{Field: f, Desc: desc})
	}
	return append(out, SortKey{Field: FieldID, Desc: desc})
}

func NewOrderTable(categories []query.Category) *OrderTable {
	t := &OrderTable{entries: make(map[string]SortDirective)}

	t.add(SortDirective{Keys: []SortKey{{Field: FieldID, Desc: true}}}, "id", "id_desc")
	t.add(SortDirective{Keys: []SortKey{{Field: FieldID}}}, "id_asc")

	// Plain column orderings: "<name>" and "<name>_desc" descend, "<name>_asc"
	// ascends, each with an id tie-break in the same direction.
	columns := []struct {
		name  string
		field string
	}{
		{"score", FieldScore},
		{"favcount", FieldFavCount},
		{"created_at", FieldCreatedAt},
		{"change", FieldUpdatedAt},
		{"filesize", FieldFileSize},
		{"tagcount", FieldTagCount},
	}
	for _, cat := range categories {
		columns = append(columns, struct {
			name  string
			field string
		}{cat.Short + "tags", CategoryTagCountField(cat.Name)})
	}
	for _, column := range query.CountMetatags {
		columns = append(columns, struct {
			name  string
			field string
		}{column, column})
	}
	for _, c := range columns {
		t.add(SortDirective{Keys: keys(true, c.field)}, c.name, c.name+"_desc")
		t.add(SortDirective{Keys: keys(false, c.field)}, c.name+"_asc")
	}

	commented := []SortKey{{Field: FieldLastCommentedAt, Desc: true, Missing: MissingLast}, {Field: FieldID, Desc: true}}
	t.add(SortDirective{Keys: commented}, "comment", "comm", "comment_desc", "comm_desc")
	t.add(SortDirective{Keys: []SortKey{{Field: FieldLastCommentedAt, Missing: MissingLast}, {Field: FieldID}}}, "comment_asc", "comm_asc")

	t.add(SortDirective{Keys: []SortKey{{Field: FieldLastCommentBumpedAt, Desc: true, Missing: MissingLast}, {Field: FieldID, Desc: true}}}, "comment_bumped", "comment_bumped_desc")
	t.add(SortDirective{Keys: []SortKey{{Field: FieldLastCommentBumpedAt, Missing: MissingFirst}, {Field: FieldID}}}, "comment_bumped_asc")

	t.add(SortDirective{Keys: []SortKey{{Field: FieldLastNotedAt, Desc: true, Missing: MissingLast}, {Field: FieldID, Desc: true}}}, "note", "note_desc")
	t.add(SortDirective{Keys: []SortKey{{Field: FieldLastNotedAt, Missing: MissingFirst}, {Field: FieldID}}}, "note_asc")

	artcomm := []Predicate{present(FieldArtcommUpdatedAt)}
	t.add(SortDirective{Keys: keys(true, FieldArtcommUpdatedAt), Joins: []Join{JoinArtistCommentaries}, Restrict: artcomm}, "artcomm", "artcomm_desc")
	t.add(SortDirective{Keys: keys(false, FieldArtcommUpdatedAt), Joins: []Join{JoinArtistCommentaries}, Restrict: artcomm}, "artcomm_asc")

	dimensions := []Predicate{present(FieldWidth), present(FieldHeight)}
	t.add(SortDirective{Keys: keys(true, FieldMPixels), Restrict: dimensions}, "mpixels", "mpixels_desc")
	t.add(SortDirective{Keys: keys(false, FieldMPixels), Restrict: dimensions}, "mpixels_asc")
	t.add(SortDirective{Keys: []SortKey{{Field: FieldRatio}, {Field: FieldID, Desc: true}}, Restrict: dimensions}, "portrait")
	t.add(SortDirective{Keys: keys(true, FieldRatio), Restrict: dimensions}, "landscape")

	t.add(SortDirective{Keys: keys(true, FieldRankScore)}, "rank")
	t.add(SortDirective{
		Keys:     keys(true, FieldContributorFavCount, FieldFavCount),
		Joins:    []Join{JoinContributorFavorites},
		Restrict: []Predicate{gt(FieldContributorFavCount, int64(0))},
	}, "curated")

	t.add(SortDirective{Keys: keys(true, FieldModqueueAt), Joins: []Join{JoinFlags}}, "modqueue", "modqueue_desc")
	t.add(SortDirective{Keys: keys(false, FieldModqueueAt), Joins: []Join{JoinFlags}}, "modqueue_asc")

	t.add(SortDirective{Random: true}, "random")
	t.add(SortDirective{Keys: []SortKey{{Field: FieldID, Desc: true}}}, "custom")

	return t
}

func (t *OrderTable) add(d SortDirective, names ...string) {
	for _, name := range names {
		d.Name = name
		t.entries[name] = d
	}
}

// Names returns every recognized order key, sorted.
func (t *OrderTable) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Resolve returns the directive for an order key. Unknown keys resolve to
// the identity descending order. now anchors the order:rank window.
func (t *OrderTable) Resolve(key string, now time.Time) SortDirective {
	key = query.CanonicalOrder(strings.TrimSpace(key))

	d, ok := t.entries[key]
	if !ok {
		d = t.entries[DefaultOrder]
	}

	out := SortDirective{
		Name:     d.Name,
		Keys:     slices.Clone(d.Keys),
		Joins:    slices.Clone(d.Joins),
		Restrict: slices.Clone(d.Restrict),
		Random:   d.Random,
	}
	if key == "rank" {
		out.Restrict = []Predicate{
			gt(FieldScore, int64(0)),
			gte(FieldCreatedAt, now.Add(-RankWindow)),
		}
	}
	return out
}
