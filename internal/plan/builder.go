package plan

import (
	"slices"
	"strings"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/query"
)

// QueryPlan is the storage-independent output of a compile: every predicate
// must match, and Sort orders the matches.
type QueryPlan struct {
	Predicates []Predicate   `json:"predicates"`
	Sort       SortDirective `json:"sort"`
	TagCount   int           `json:"tag_count"`
}

// Builder folds parsed queries into plans. It holds only the order table and
// is safe for concurrent use.
type Builder struct {
	orders *OrderTable
}

func NewBuilder(categories []query.Category) *Builder {
	return &Builder{orders: NewOrderTable(categories)}
}

func (b *Builder) Orders() *OrderTable {
	return b.orders
}

var rangeOps = map[query.RangeOp]Op{
	query.RangeEq:      OpEq,
	query.RangeGt:      OpGt,
	query.RangeGte:     OpGte,
	query.RangeLt:      OpLt,
	query.RangeLte:     OpLte,
	query.RangeBetween: OpBetween,
	query.RangeIn:      OpIn,
}

type planWriter struct {
	q     *query.ParsedQuery
	preds []Predicate
}

func (w *planWriter) add(preds ...Predicate) {
	w.preds = append(w.preds, preds...)
}

// addRange appends the predicate for r. Nil operands drop the predicate,
// except inside a one-of list where only the nil items are dropped.
func (w *planWriter) addRange(field string, r *query.Range) {
	if r == nil {
		return
	}
	if r.Op == query.RangeIn {
		values := make([]any, 0, len(r.Values))
		for _, v := range r.Values {
			if v != nil {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			w.add(Predicate{Field: field, Op: OpIn, Values: values})
		}
		return
	}
	if !r.Valid() {
		return
	}
	w.add(Predicate{Field: field, Op: rangeOps[r.Op], Values: slices.Clone(r.Values)})
}

// addDate is addRange for created_at, except that an exact date matches the
// whole calendar day.
func (w *planWriter) addDate(r *query.Range) {
	if r == nil || r.Op != query.RangeEq || !r.Valid() {
		w.addRange(FieldCreatedAt, r)
		return
	}
	t, ok := r.Values[0].(time.Time)
	if !ok {
		w.addRange(FieldCreatedAt, r)
		return
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	w.add(
		gte(FieldCreatedAt, start),
		Predicate{Field: FieldCreatedAt, Op: OpLt, Values: []any{start.AddDate(0, 0, 1)}},
	)
}

// addRef appends a predicate for a user or entity reference on field. any
// and none test the presence of presenceField.
func (w *planWriter) addRef(field, presenceField string, ref query.Ref) {
	switch ref.Kind {
	case query.RefAny:
		w.add(present(presenceField))
	case query.RefNone:
		w.add(absent(presenceField))
	case query.RefNoMatch:
		w.add(none(field))
	default:
		w.add(eq(field, ref.ID))
	}
}

// Build turns q into a plan. It performs no I/O; now only anchors the
// order:rank window.
func (b *Builder) Build(q *query.ParsedQuery, now time.Time) *QueryPlan {
	w := &planWriter{q: q}

	if q.SafeMode {
		w.add(eq(FieldRating, "s"))
	}

	w.addRange(FieldID, q.PostID)
	w.addRange(FieldMPixels, q.MPixels)
	w.addRange(FieldRatio, q.Ratio)
	w.addRange(FieldWidth, q.Width)
	w.addRange(FieldHeight, q.Height)
	w.addRange(FieldScore, q.Score)
	w.addRange(FieldFavCount, q.FavCount)
	w.addRange(FieldFileSize, q.FileSize)
	w.addDate(q.Date)
	w.addRange(FieldCreatedAt, q.Age)
	for _, cat := range b.categoryNames(q) {
		w.addRange(CategoryTagCountField(cat), q.CategoryTagCounts[cat])
	}
	w.addRange(FieldTagCount, q.PostTagCount)
	for _, column := range query.CountMetatags {
		w.addRange(column, q.CountRanges[column])
	}

	if len(q.MD5) > 0 {
		w.add(in(FieldMD5, q.MD5))
	}

	w.writeStatus()

	if q.HideDeleted {
		w.add(eq(FieldIsDeleted, false))
	}
	if q.Filetype != "" {
		w.add(eq(FieldFileExt, q.Filetype))
	}
	if q.FiletypeNeg != "" {
		w.add(ne(FieldFileExt, q.FiletypeNeg))
	}
	if q.Source != nil {
		if strings.EqualFold(*q.Source, "none") {
			w.add(eq(FieldSource, ""))
		} else {
			w.add(Predicate{Field: FieldSource, Op: OpLike, Values: []any{strings.ToLower(*q.Source) + "*"}})
		}
	}
	if q.SourceNeg != nil {
		if strings.EqualFold(*q.SourceNeg, "none") {
			w.add(ne(FieldSource, ""))
		} else {
			w.add(Predicate{Field: FieldSource, Op: OpNotLike, Values: []any{strings.ToLower(*q.SourceNeg) + "*"}})
		}
	}

	w.writePools()

	for _, ids := range q.SavedSearches {
		w.add(in(FieldID, ids))
	}

	w.writeUsers()

	if q.PostIDNeg != nil {
		w.add(ne(FieldID, *q.PostIDNeg))
	}
	w.writeRelations()
	w.writeFlags()
	w.writeTags()

	if q.OrdPool != nil {
		w.add(eq(FieldPoolIDs, q.OrdPool.ID))
	}
	if len(q.FavGroupsNeg) > 0 {
		w.add(notIn(FieldFavGroupIDs, q.FavGroupsNeg))
	}
	for _, id := range q.FavGroups {
		w.add(eq(FieldFavGroupIDs, id))
	}
	if q.Upvoter != nil {
		w.addRef(FieldUpvoterIDs, FieldUpvoterIDs, *q.Upvoter)
	}
	if q.Downvoter != nil {
		w.addRef(FieldDownvoterIDs, FieldDownvoterIDs, *q.Downvoter)
	}

	sort := b.orders.Resolve(q.Order, now)
	w.add(sort.Restrict...)

	if sort.Name == "custom" && q.PostID != nil && q.PostID.Op == query.RangeIn {
		for _, v := range q.PostID.Values {
			if id, ok := v.(int64); ok {
				sort.CustomIDs = append(sort.CustomIDs, id)
			}
		}
	}
	if q.OrdPool != nil {
		sort.PoolPostIDs = slices.Clone(q.OrdPool.PostIDs)
		sort.Joins = append(sort.Joins, JoinPoolPosts)
	}
	if q.OrdFav != nil {
		id := *q.OrdFav
		sort.FavoritesOf = &id
		sort.Joins = append(sort.Joins, JoinFavorites)
	}

	preds := w.preds
	if preds == nil {
		preds = []Predicate{}
	}
	return &QueryPlan{Predicates: preds, Sort: sort, TagCount: q.TagCount}
}

// categoryNames returns the category keys of q in a stable order.
func (b *Builder) categoryNames(q *query.ParsedQuery) []string {
	names := make([]string, 0, len(q.CategoryTagCounts))
	for name := range q.CategoryTagCounts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (w *planWriter) writeStatus() {
	q := w.q
	pendingOrFlagged := or(eq(FieldIsPending, true), eq(FieldIsFlagged, true))

	switch q.Status {
	case "pending":
		w.add(eq(FieldIsPending, true))
		return
	case "flagged":
		w.add(eq(FieldIsFlagged, true))
		return
	case "modqueue":
		w.add(pendingOrFlagged)
		return
	case "deleted":
		w.add(eq(FieldIsDeleted, true))
		return
	case "banned":
		w.add(eq(FieldIsBanned, true))
		return
	case "active":
		w.add(
			eq(FieldIsPending, false),
			eq(FieldIsDeleted, false),
			eq(FieldIsBanned, false),
			eq(FieldIsFlagged, false),
		)
		return
	case "unmoderated":
		w.add(
			pendingOrFlagged,
			ne(FieldUploaderID, q.ViewerID),
			notIn(FieldDisapproverIDs, []int64{q.ViewerID}),
		)
		return
	case "all", "any":
		return
	}

	switch q.StatusNeg {
	case "pending":
		w.add(eq(FieldIsPending, false))
	case "flagged":
		w.add(eq(FieldIsFlagged, false))
	case "modqueue":
		w.add(eq(FieldIsPending, false), eq(FieldIsFlagged, false))
	case "deleted":
		w.add(eq(FieldIsDeleted, false))
	case "banned":
		w.add(eq(FieldIsBanned, false))
	case "active":
		w.add(or(
			eq(FieldIsPending, true),
			eq(FieldIsDeleted, true),
			eq(FieldIsBanned, true),
			eq(FieldIsFlagged, true),
		))
	}
}

func (w *planWriter) writePools() {
	for _, p := range w.q.Pools {
		switch p.Kind {
		case query.PoolNone:
			w.add(absent(FieldPoolIDs))
		case query.PoolAny:
			w.add(present(FieldPoolIDs))
		case query.PoolSeries:
			w.add(eq(FieldPoolCategories, "series"))
		case query.PoolCollection:
			w.add(eq(FieldPoolCategories, "collection"))
		default:
			if len(p.IDs) == 0 {
				w.add(none(FieldPoolIDs))
			} else {
				w.add(in(FieldPoolIDs, p.IDs))
			}
		}
	}

	for _, p := range w.q.PoolsNeg {
		switch p.Kind {
		case query.PoolNone:
			w.add(present(FieldPoolIDs))
		case query.PoolAny:
			w.add(absent(FieldPoolIDs))
		case query.PoolSeries:
			w.add(ne(FieldPoolCategories, "series"))
		case query.PoolCollection:
			w.add(ne(FieldPoolCategories, "collection"))
		default:
			if len(p.IDs) > 0 {
				w.add(notIn(FieldPoolIDs, p.IDs))
			}
		}
	}
}

func (w *planWriter) writeUsers() {
	q := w.q

	if len(q.UploaderNeg) > 0 {
		w.add(notIn(FieldUploaderID, q.UploaderNeg))
	}
	if q.Uploader != nil {
		w.addRef(FieldUploaderID, FieldUploaderID, *q.Uploader)
	}
	if len(q.ApproverNeg) > 0 {
		w.add(notIn(FieldApproverID, q.ApproverNeg))
	}
	if q.Approver != nil {
		w.addRef(FieldApproverID, FieldApproverID, *q.Approver)
	}

	for _, d := range q.Disapproved {
		if d.UserID != 0 {
			w.add(eq(FieldDisapproverIDs, d.UserID))
		} else {
			w.add(eq(FieldDisapprovalReasons, d.Reason))
		}
	}
	for _, d := range q.DisapprovedNeg {
		if d.UserID != 0 {
			w.add(notIn(FieldDisapproverIDs, []int64{d.UserID}))
		} else {
			w.add(notIn(FieldDisapprovalReasons, []string{d.Reason}))
		}
	}
}

// writeFlags covers flaggers, appealers and the comment, note and
// commentary contributors. Flags and appeals on the viewer's own uploads
// stay hidden from non-admins.
func (w *planWriter) writeFlags() {
	q := w.q

	for _, id := range q.FlaggersNeg {
		if q.ViewerIsAdmin {
			w.add(notIn(FieldFlaggerIDs, []int64{id}))
		} else {
			w.add(or(notIn(FieldFlaggerIDs, []int64{id}), eq(FieldUploaderID, q.ViewerID)))
		}
	}
	for _, ref := range q.Flaggers {
		w.addRef(FieldFlaggerIDs, FieldFlaggerIDs, ref)
		if ref.Kind == query.RefID && !q.ViewerIsAdmin {
			w.add(ne(FieldUploaderID, q.ViewerID))
		}
	}

	for _, id := range q.AppealersNeg {
		if q.ViewerIsAdmin {
			w.add(notIn(FieldAppealerIDs, []int64{id}))
		} else {
			w.add(or(notIn(FieldAppealerIDs, []int64{id}), eq(FieldUploaderID, q.ViewerID)))
		}
	}
	for _, ref := range q.Appealers {
		w.addRef(FieldAppealerIDs, FieldAppealerIDs, ref)
		if ref.Kind == query.RefID && !q.ViewerIsAdmin {
			w.add(ne(FieldUploaderID, q.ViewerID))
		}
	}
	for _, ref := range q.Commenters {
		w.addRef(FieldCommenterIDs, FieldLastCommentedAt, ref)
	}
	for _, ref := range q.Noters {
		w.addRef(FieldNoterIDs, FieldLastNotedAt, ref)
	}
	for _, ref := range q.NoteUpdaters {
		w.addRef(FieldNoteUpdaterIDs, FieldNoteUpdaterIDs, ref)
	}
	for _, ref := range q.ArtcommUpdaters {
		w.addRef(FieldArtcommUpdaterIDs, FieldArtcommUpdaterIDs, ref)
	}
}

func (w *planWriter) writeRelations() {
	q := w.q

	if q.Parent != nil {
		switch q.Parent.Kind {
		case query.RefNone:
			w.add(absent(FieldParentID))
		case query.RefAny:
			w.add(present(FieldParentID))
		case query.RefNoMatch:
			w.add(none(FieldParentID))
		default:
			w.add(or(eq(FieldID, q.Parent.ID), eq(FieldParentID, q.Parent.ID)))
		}
	}
	if len(q.ParentNegIDs) > 0 {
		w.add(
			notIn(FieldID, q.ParentNegIDs),
			or(absent(FieldParentID), notIn(FieldParentID, q.ParentNegIDs)),
		)
	}

	switch q.Child {
	case "none":
		w.add(eq(FieldHasChildren, false))
	case "any":
		w.add(eq(FieldHasChildren, true))
	}

	if q.Pixiv != nil {
		w.addRef(FieldPixivID, FieldPixivID, *q.Pixiv)
	}
	w.addRange(FieldPixivID, q.PixivID)

	if r := ratingLetter(q.Rating); r != "" {
		w.add(eq(FieldRating, r))
	}
	if r := ratingLetter(q.RatingNeg); r != "" {
		w.add(ne(FieldRating, r))
	}

	if field := lockField(q.Locked); field != "" {
		w.add(eq(field, true))
	}
	if field := lockField(q.LockedNeg); field != "" {
		w.add(eq(field, false))
	}

	if q.Embedded != nil {
		w.add(eq(FieldHasEmbeddedNotes, *q.Embedded))
	}
}

func (w *planWriter) writeTags() {
	tags := w.q.Tags
	if len(tags.Related) > 0 {
		w.add(Predicate{Field: FieldTags, Op: OpAll, Values: anySlice(tags.Related)})
	}
	if len(tags.Include) > 0 {
		w.add(in(FieldTags, tags.Include))
	}
	if len(tags.Exclude) > 0 {
		w.add(notIn(FieldTags, tags.Exclude))
	}
}

// ratingLetter maps rating values by their first letter, so "safe" and "s"
// are the same rating.
func ratingLetter(value string) string {
	if value == "" {
		return ""
	}
	switch value[0] {
	case 'q', 's', 'e':
		return value[:1]
	}
	return ""
}

func lockField(value string) string {
	switch value {
	case "rating":
		return FieldIsRatingLocked
	case "note", "notes":
		return FieldIsNoteLocked
	case "status":
		return FieldIsStatusLocked
	}
	return ""
}
