package plan

import (
	"testing"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestOrderTable_Resolve(t *testing.T) {
	table := NewOrderTable(query.DefaultCategories())

	tests := []struct {
		key  string
		name string
		keys []SortKey
	}{
		{"", "id_desc", []SortKey{{Field: FieldID, Desc: true}}},
		{"id", "id", []SortKey{{Field: FieldID, Desc: true}}},
		{"id_asc", "id_asc", []SortKey{{Field: FieldID}}},
		{"score", "score", []SortKey{{Field: FieldScore, Desc: true}, {Field: FieldID, Desc: true}}},
		{"score_asc", "score_asc", []SortKey{{Field: FieldScore}, {Field: FieldID}}},
		{"SCORE_DESC", "score_desc", []SortKey{{Field: FieldScore, Desc: true}, {Field: FieldID, Desc: true}}},
		{"change", "change", []SortKey{{Field: FieldUpdatedAt, Desc: true}, {Field: FieldID, Desc: true}}},
		{"arttags_asc", "arttags_asc", []SortKey{{Field: "tag_count_artist"}, {Field: FieldID}}},
		{"children", "child_count", []SortKey{{Field: "child_count", Desc: true}, {Field: FieldID, Desc: true}}},
		{"deleted_notes_asc", "deleted_note_count_asc", []SortKey{{Field: "deleted_note_count"}, {Field: FieldID}}},
		{"portrait", "portrait", []SortKey{{Field: FieldRatio}, {Field: FieldID, Desc: true}}},
		{"landscape", "landscape", []SortKey{{Field: FieldRatio, Desc: true}, {Field: FieldID, Desc: true}}},
		{"comm", "comm", []SortKey{{Field: FieldLastCommentedAt, Desc: true, Missing: MissingLast}, {Field: FieldID, Desc: true}}},
		{"note_asc", "note_asc", []SortKey{{Field: FieldLastNotedAt, Missing: MissingFirst}, {Field: FieldID}}},
		{"nonsense", "id_desc", []SortKey{{Field: FieldID, Desc: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			d := table.Resolve(tt.key, now)
			assert.Equal(t, tt.name, d.Name)
			assert.Equal(t, tt.keys, d.Keys)
		})
	}
}

func TestOrderTable_Joins(t *testing.T) {
	table := NewOrderTable(query.DefaultCategories())

	artcomm := table.Resolve("artcomm", now)
	assert.Equal(t, []Join{JoinArtistCommentaries}, artcomm.Joins)
	assert.Equal(t, []Predicate{present(FieldArtcommUpdatedAt)}, artcomm.Restrict)

	curated := table.Resolve("curated", now)
	assert.Equal(t, []Join{JoinContributorFavorites}, curated.Joins)
	assert.Equal(t, []SortKey{
		{Field: FieldContributorFavCount, Desc: true},
		{Field: FieldFavCount, Desc: true},
		{Field: FieldID, Desc: true},
	}, curated.Keys)

	modqueue := table.Resolve("modqueue", now)
	assert.Equal(t, []Join{JoinFlags}, modqueue.Joins)

	assert.Empty(t, table.Resolve("score", now).Joins)
}

func TestOrderTable_Rank(t *testing.T) {
	table := NewOrderTable(query.DefaultCategories())

	d := table.Resolve("rank", now)
	require.Len(t, d.Restrict, 2)
	assert.Equal(t, gt(FieldScore, int64(0)), d.Restrict[0])
	assert.Equal(t, gte(FieldCreatedAt, now.Add(-48*time.Hour)), d.Restrict[1])
}

func TestOrderTable_RandomAndCustom(t *testing.T) {
	table := NewOrderTable(query.DefaultCategories())

	assert.True(t, table.Resolve("random", now).Random)
	assert.Equal(t, []SortKey{{Field: FieldID, Desc: true}}, table.Resolve("custom", now).Keys)
}

func TestOrderTable_ResolveReturnsCopies(t *testing.T) {
	table := NewOrderTable(query.DefaultCategories())

	d := table.Resolve("mpixels", now)
	d.Keys[0].Field = "mutated"
	d.Restrict[0].Field = "mutated"

	again := table.Resolve("mpixels", now)
	assert.Equal(t, FieldMPixels, again.Keys[0].Field)
	assert.Equal(t, FieldWidth, again.Restrict[0].Field)
}

func TestOrderTable_Names(t *testing.T) {
	names := NewOrderTable(query.DefaultCategories()).Names()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "gentags_asc")
	assert.Contains(t, names, "replacement_count_desc")
	assert.Contains(t, names, "comment_bumped_asc")
}
