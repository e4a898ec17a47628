package poststore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/plan"
	"github.com/AvengeMedia/dankbooru/internal/query"
)

// Post is one searchable item. Optional relations are pointers; a nil
// pointer is an absent field.
type Post struct {
	ID        int64     `json:"id"`
	Tags      []string  `json:"tags"`
	Rating    string    `json:"rating"`
	Score     int64     `json:"score"`
	FavCount  int64     `json:"fav_count"`
	Width     int64     `json:"width,omitempty"`
	Height    int64     `json:"height,omitempty"`
	FileSize  int64     `json:"file_size"`
	FileExt   string    `json:"file_ext"`
	MD5       string    `json:"md5"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// CategoryTags maps a tag category name to the post's tags in it.
	CategoryTags map[string][]string `json:"category_tags,omitempty"`
	// Counts holds the count metatag columns, e.g. "note_count".
	Counts map[string]int64 `json:"counts,omitempty"`

	UploaderID  int64  `json:"uploader_id"`
	ApproverID  *int64 `json:"approver_id,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	HasChildren bool   `json:"has_children,omitempty"`
	PixivID     *int64 `json:"pixiv_id,omitempty"`

	IsPending        bool `json:"is_pending,omitempty"`
	IsFlagged        bool `json:"is_flagged,omitempty"`
	IsDeleted        bool `json:"is_deleted,omitempty"`
	IsBanned         bool `json:"is_banned,omitempty"`
	IsRatingLocked   bool `json:"is_rating_locked,omitempty"`
	IsNoteLocked     bool `json:"is_note_locked,omitempty"`
	IsStatusLocked   bool `json:"is_status_locked,omitempty"`
	HasEmbeddedNotes bool `json:"has_embedded_notes,omitempty"`

	PoolIDs            []int64  `json:"pool_ids,omitempty"`
	PoolCategories     []string `json:"pool_categories,omitempty"`
	FavGroupIDs        []int64  `json:"favgroup_ids,omitempty"`
	FavoritedBy        []int64  `json:"favorited_by,omitempty"`
	FlaggerIDs         []int64  `json:"flagger_ids,omitempty"`
	AppealerIDs        []int64  `json:"appealer_ids,omitempty"`
	CommenterIDs       []int64  `json:"commenter_ids,omitempty"`
	NoterIDs           []int64  `json:"noter_ids,omitempty"`
	NoteUpdaterIDs     []int64  `json:"note_updater_ids,omitempty"`
	ArtcommUpdaterIDs  []int64  `json:"artcomm_updater_ids,omitempty"`
	UpvoterIDs         []int64  `json:"upvoter_ids,omitempty"`
	DownvoterIDs       []int64  `json:"downvoter_ids,omitempty"`
	DisapproverIDs     []int64  `json:"disapprover_ids,omitempty"`
	DisapprovalReasons []string `json:"disapproval_reasons,omitempty"`

	LastCommentedAt     *time.Time `json:"last_commented_at,omitempty"`
	LastCommentBumpedAt *time.Time `json:"last_comment_bumped_at,omitempty"`
	LastNotedAt         *time.Time `json:"last_noted_at,omitempty"`
	ArtcommUpdatedAt    *time.Time `json:"artcomm_updated_at,omitempty"`
	LastFlaggedAt       *time.Time `json:"last_flagged_at,omitempty"`

	ContributorFavCount int64 `json:"contributor_fav_count,omitempty"`
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// AllTags returns the general tag list plus every category tag and the
// fav:<user> tags, normalized and deduplicated.
func (p *Post) AllTags() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tag string) {
		tag = query.NormalizeTagName(tag)
		if tag != "" && !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}

	for _, tag := range p.Tags {
		add(tag)
	}
	for _, tags := range p.CategoryTags {
		for _, tag := range tags {
			add(tag)
		}
	}
	for _, uid := range p.FavoritedBy {
		add(query.FavoriteTag(uid))
	}
	return out
}

// rankScore is a time-decayed score: each order of magnitude of score is
// worth roughly a day of age.
func rankScore(score int64, created time.Time) float64 {
	return math.Log(math.Max(float64(score), 1))/math.Ln10 + float64(created.Unix()-1136073600)/86400
}

// document flattens the post into the indexed field map. Field names match
// the plan package's field constants.
func (p *Post) document() (map[string]any, error) {
	src, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var present []string
	doc := map[string]any{
		fieldSource:                string(src),
		plan.FieldID:               float64(p.ID),
		plan.FieldRating:           strings.ToLower(p.Rating),
		plan.FieldScore:            float64(p.Score),
		plan.FieldFavCount:         float64(p.FavCount),
		plan.FieldFileSize:         float64(p.FileSize),
		plan.FieldFileExt:          strings.ToLower(p.FileExt),
		plan.FieldMD5:              strings.ToLower(p.MD5),
		plan.FieldCreatedAt:        p.CreatedAt,
		plan.FieldUpdatedAt:        p.UpdatedAt,
		plan.FieldUploaderID:       float64(p.UploaderID),
		plan.FieldHasChildren:      p.HasChildren,
		plan.FieldIsPending:        p.IsPending,
		plan.FieldIsFlagged:        p.IsFlagged,
		plan.FieldIsDeleted:        p.IsDeleted,
		plan.FieldIsBanned:         p.IsBanned,
		plan.FieldIsRatingLocked:   p.IsRatingLocked,
		plan.FieldIsNoteLocked:     p.IsNoteLocked,
		plan.FieldIsStatusLocked:   p.IsStatusLocked,
		plan.FieldHasEmbeddedNotes: p.HasEmbeddedNotes,
	}
	doc[plan.FieldContributorFavCount] = float64(p.ContributorFavCount)
	doc[plan.FieldRankScore] = rankScore(p.Score, p.CreatedAt)

	if p.Source != "" {
		doc[plan.FieldSource] = strings.ToLower(p.Source)
		present = append(present, plan.FieldSource)
	}

	tags := p.AllTags()
	doc[plan.FieldTags] = tags
	counted := 0
	for _, tag := range tags {
		if !strings.HasPrefix(tag, "fav:") {
			counted++
		}
	}
	doc[plan.FieldTagCount] = float64(counted)

	if p.Width > 0 && p.Height > 0 {
		doc[plan.FieldWidth] = float64(p.Width)
		doc[plan.FieldHeight] = float64(p.Height)
		doc[plan.FieldMPixels] = float64(p.Width*p.Height) / 1e6
		doc[plan.FieldRatio] = math.Round(float64(p.Width)/float64(max(p.Height, 1))*100) / 100
		present = append(present, plan.FieldWidth, plan.FieldHeight)
	}

	for category, catTags := range p.CategoryTags {
		doc[plan.CategoryTagCountField(category)] = float64(len(catTags))
	}
	for name, n := range p.Counts {
		doc[name] = float64(n)
	}

	optionalIDs := []struct {
		field string
		value *int64
	}{
		{plan.FieldApproverID, p.ApproverID},
		{plan.FieldParentID, p.ParentID},
		{plan.FieldPixivID, p.PixivID},
	}
	for _, o := range optionalIDs {
		if o.value != nil {
			doc[o.field] = float64(*o.value)
			present = append(present, o.field)
		}
	}

	idLists := []struct {
		field  string
		values []int64
	}{
		{plan.FieldPoolIDs, p.PoolIDs},
		{plan.FieldFavGroupIDs, p.FavGroupIDs},
		{plan.FieldFlaggerIDs, p.FlaggerIDs},
		{plan.FieldAppealerIDs, p.AppealerIDs},
		{plan.FieldCommenterIDs, p.CommenterIDs},
		{plan.FieldNoterIDs, p.NoterIDs},
		{plan.FieldNoteUpdaterIDs, p.NoteUpdaterIDs},
		{plan.FieldArtcommUpdaterIDs, p.ArtcommUpdaterIDs},
		{plan.FieldUpvoterIDs, p.UpvoterIDs},
		{plan.FieldDownvoterIDs, p.DownvoterIDs},
		{plan.FieldDisapproverIDs, p.DisapproverIDs},
	}
	for _, l := range idLists {
		if len(l.values) == 0 {
			continue
		}
		values := make([]float64, len(l.values))
		for i, v := range l.values {
			values[i] = float64(v)
		}
		doc[l.field] = values
		present = append(present, l.field)
	}

	if len(p.PoolCategories) > 0 {
		doc[plan.FieldPoolCategories] = p.PoolCategories
	}
	if len(p.DisapprovalReasons) > 0 {
		reasons := make([]string, len(p.DisapprovalReasons))
		for i, r := range p.DisapprovalReasons {
			reasons[i] = strings.ToLower(r)
		}
		doc[plan.FieldDisapprovalReasons] = reasons
	}

	optionalTimes := []struct {
		field string
		value *time.Time
	}{
		{plan.FieldLastCommentedAt, p.LastCommentedAt},
		{plan.FieldLastCommentBumpedAt, p.LastCommentBumpedAt},
		{plan.FieldLastNotedAt, p.LastNotedAt},
		{plan.FieldArtcommUpdatedAt, p.ArtcommUpdatedAt},
	}
	for _, o := range optionalTimes {
		if o.value != nil {
			doc[o.field] = *o.value
			present = append(present, o.field)
		}
	}

	// modqueue orders by the later of creation and the latest flag.
	modqueue := p.CreatedAt
	if p.LastFlaggedAt != nil && p.LastFlaggedAt.After(modqueue) {
		modqueue = *p.LastFlaggedAt
	}
	doc[plan.FieldModqueueAt] = modqueue

	doc[fieldPresent] = present
	return doc, nil
}
