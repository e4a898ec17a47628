package plan

// Op is a predicate operator. On multi-valued fields (tags, pool_ids and
// the *_ids user lists) eq means "contains", in "contains any", all
// "contains every" and not_in "contains none".
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpBetween Op = "between"
	OpIn      Op = "in"
	OpNotIn   Op = "not_in"
	OpAll     Op = "all"
	OpPresent Op = "present"
	OpAbsent  Op = "absent"
	// OpLike matches a lowercase prefix pattern ending in '*'.
	OpLike    Op = "like"
	OpNotLike Op = "not_like"
	// OpOr matches when any predicate in Any matches.
	OpOr Op = "or"
	// OpNone matches nothing.
	OpNone Op = "none"
)

// Predicate is one filter node. Field names are the post document fields
// listed below.
type Predicate struct {
	Field  string      `json:"field,omitempty"`
	Op     Op          `json:"op"`
	Values []any       `json:"values,omitempty"`
	Any    []Predicate `json:"any,omitempty"`
}

const (
	FieldID                  = "id"
	FieldTags                = "tags"
	FieldRating              = "rating"
	FieldScore               = "score"
	FieldFavCount            = "fav_count"
	FieldWidth               = "width"
	FieldHeight              = "height"
	FieldMPixels             = "mpixels"
	FieldRatio               = "ratio"
	FieldFileSize            = "file_size"
	FieldFileExt             = "file_ext"
	FieldMD5                 = "md5"
	FieldSource              = "source"
	FieldCreatedAt           = "created_at"
	FieldUpdatedAt           = "updated_at"
	FieldTagCount            = "tag_count"
	FieldUploaderID          = "uploader_id"
	FieldApproverID          = "approver_id"
	FieldParentID            = "parent_id"
	FieldHasChildren         = "has_children"
	FieldPixivID             = "pixiv_id"
	FieldIsPending           = "is_pending"
	FieldIsFlagged           = "is_flagged"
	FieldIsDeleted           = "is_deleted"
	FieldIsBanned            = "is_banned"
	FieldIsRatingLocked      = "is_rating_locked"
	FieldIsNoteLocked        = "is_note_locked"
	FieldIsStatusLocked      = "is_status_locked"
	FieldHasEmbeddedNotes    = "has_embedded_notes"
	FieldPoolIDs             = "pool_ids"
	FieldPoolCategories      = "pool_categories"
	FieldFavGroupIDs         = "favgroup_ids"
	FieldFlaggerIDs          = "flagger_ids"
	FieldAppealerIDs         = "appealer_ids"
	FieldCommenterIDs        = "commenter_ids"
	FieldNoterIDs            = "noter_ids"
	FieldNoteUpdaterIDs      = "note_updater_ids"
	FieldArtcommUpdaterIDs   = "artcomm_updater_ids"
	FieldUpvoterIDs          = "upvoter_ids"
	FieldDownvoterIDs        = "downvoter_ids"
	FieldDisapproverIDs      = "disapprover_ids"
	FieldDisapprovalReasons  = "disapproval_reasons"
	FieldLastCommentedAt     = "last_commented_at"
	FieldLastCommentBumpedAt = "last_comment_bumped_at"
	FieldLastNotedAt         = "last_noted_at"
	FieldArtcommUpdatedAt    = "artcomm_updated_at"
	FieldRankScore           = "rank_score"
	FieldModqueueAt          = "modqueue_at"
	FieldContributorFavCount = "contributor_fav_count"
)

// CategoryTagCountField is the per-category tag count field.
func CategoryTagCountField(category string) string {
	return "tag_count_" + category
}

func eq(field string, v any) Predicate {
	return Predicate{Field: field, Op: OpEq, Values: []any{v}}
}

func ne(field string, v any) Predicate {
	return Predicate{Field: field, Op: OpNe, Values: []any{v}}
}

func gt(field string, v any) Predicate {
	return Predicate{Field: field, Op: OpGt, Values: []any{v}}
}

func gte(field string, v any) Predicate {
	return Predicate{Field: field, Op: OpGte, Values: []any{v}}
}

func present(field string) Predicate {
	return Predicate{Field: field, Op: OpPresent}
}

func absent(field string) Predicate {
	return Predicate{Field: field, Op: OpAbsent}
}

func none(field string) Predicate {
	return Predicate{Field: field, Op: OpNone}
}

func or(preds ...Predicate) Predicate {
	return Predicate{Op: OpOr, Any: preds}
}

func in[T any](field string, values []T) Predicate {
	return Predicate{Field: field, Op: OpIn, Values: anySlice(values)}
}

func notIn[T any](field string, values []T) Predicate {
	return Predicate{Field: field, Op: OpNotIn, Values: anySlice(values)}
}

func anySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
