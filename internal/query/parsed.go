package query

// RefKind says what a user or entity reference resolved to.
type RefKind int

const (
	RefID RefKind = iota
	RefAny
	RefNone
	// RefNoMatch is a reference to something that does not exist; it
	// filters out everything.
	RefNoMatch
)

func (k RefKind) String() string {
	switch k {
	case RefID:
		return "id"
	case RefAny:
		return "any"
	case RefNone:
		return "none"
	case RefNoMatch:
		return "no_match"
	default:
		return "?"
	}
}

func (k RefKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Ref is a resolved reference to a user or post.
type Ref struct {
	Kind RefKind `json:"kind"`
	ID   int64   `json:"id,omitempty"`
}

// PoolKind classifies a pool: reference.
type PoolKind int

const (
	PoolIDs PoolKind = iota
	PoolAny
	PoolNone
	PoolSeries
	PoolCollection
)

func (k PoolKind) String() string {
	switch k {
	case PoolIDs:
		return "ids"
	case PoolAny:
		return "any"
	case PoolNone:
		return "none"
	case PoolSeries:
		return "series"
	case PoolCollection:
		return "collection"
	default:
		return "?"
	}
}

func (k PoolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PoolFilter is a resolved pool reference. IDs holds the matching pool ids
// when Kind is PoolIDs and may be empty for a wildcard that matched nothing.
type PoolFilter struct {
	Kind PoolKind `json:"kind"`
	IDs  []int64  `json:"ids,omitempty"`
}

// Disapproval matches posts disapproved by a user or for a reason.
type Disapproval struct {
	UserID int64  `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// TagSet holds the normalized bare tags of a query. Include is OR-matched,
// Related is AND-matched and Exclude must not match.
type TagSet struct {
	Include []string `json:"include"`
	Related []string `json:"related"`
	Exclude []string `json:"exclude"`
}

func (t TagSet) Empty() bool {
	return len(t.Include) == 0 && len(t.Related) == 0 && len(t.Exclude) == 0
}

// ParsedQuery is the assembled result of parsing one query. Nil and empty
// fields were not present in the query.
type ParsedQuery struct {
	Tags     TagSet `json:"tags"`
	TagCount int    `json:"tag_count"`
	Order    string `json:"order"`

	SafeMode    bool `json:"safe_mode,omitempty"`
	HideDeleted bool `json:"hide_deleted,omitempty"`

	PostID       *Range `json:"post_id,omitempty"`
	PostIDNeg    *int64 `json:"post_id_neg,omitempty"`
	Width        *Range `json:"width,omitempty"`
	Height       *Range `json:"height,omitempty"`
	MPixels      *Range `json:"mpixels,omitempty"`
	Ratio        *Range `json:"ratio,omitempty"`
	Score        *Range `json:"score,omitempty"`
	FavCount     *Range `json:"fav_count,omitempty"`
	FileSize     *Range `json:"file_size,omitempty"`
	Date         *Range `json:"date,omitempty"`
	Age          *Range `json:"age,omitempty"`
	PostTagCount *Range `json:"post_tag_count,omitempty"`
	// CategoryTagCounts is keyed by category name, CountRanges by count
	// metatag.
	CategoryTagCounts map[string]*Range `json:"category_tag_counts,omitempty"`
	CountRanges       map[string]*Range `json:"count_ranges,omitempty"`

	MD5         []string `json:"md5,omitempty"`
	Rating      string   `json:"rating,omitempty"`
	RatingNeg   string   `json:"rating_neg,omitempty"`
	Locked      string   `json:"locked,omitempty"`
	LockedNeg   string   `json:"locked_neg,omitempty"`
	Status      string   `json:"status,omitempty"`
	StatusNeg   string   `json:"status_neg,omitempty"`
	Filetype    string   `json:"filetype,omitempty"`
	FiletypeNeg string   `json:"filetype_neg,omitempty"`
	Source      *string  `json:"source,omitempty"`
	SourceNeg   *string  `json:"source_neg,omitempty"`
	Embedded    *bool    `json:"embedded,omitempty"`

	Parent       *Ref    `json:"parent,omitempty"`
	ParentNegIDs []int64 `json:"parent_neg_ids,omitempty"`
	Child        string  `json:"child,omitempty"`
	Pixiv        *Ref    `json:"pixiv,omitempty"`
	PixivID      *Range  `json:"pixiv_id,omitempty"`

	Uploader        *Ref    `json:"uploader,omitempty"`
	UploaderNeg     []int64 `json:"uploader_neg,omitempty"`
	Approver        *Ref    `json:"approver,omitempty"`
	ApproverNeg     []int64 `json:"approver_neg,omitempty"`
	Flaggers        []Ref   `json:"flaggers,omitempty"`
	FlaggersNeg     []int64 `json:"flaggers_neg,omitempty"`
	Appealers       []Ref   `json:"appealers,omitempty"`
	AppealersNeg    []int64 `json:"appealers_neg,omitempty"`
	Commenters      []Ref   `json:"commenters,omitempty"`
	Noters          []Ref   `json:"noters,omitempty"`
	NoteUpdaters    []Ref   `json:"note_updaters,omitempty"`
	ArtcommUpdaters []Ref   `json:"artcomm_updaters,omitempty"`
	Upvoter         *Ref    `json:"upvoter,omitempty"`
	Downvoter       *Ref    `json:"downvoter,omitempty"`

	Disapproved    []Disapproval `json:"disapproved,omitempty"`
	DisapprovedNeg []Disapproval `json:"disapproved_neg,omitempty"`

	Pools        []PoolFilter `json:"pools,omitempty"`
	PoolsNeg     []PoolFilter `json:"pools_neg,omitempty"`
	OrdPool      *Pool        `json:"ord_pool,omitempty"`
	FavGroups    []int64      `json:"fav_groups,omitempty"`
	FavGroupsNeg []int64      `json:"fav_groups_neg,omitempty"`
	OrdFav       *int64       `json:"ord_fav,omitempty"`

	// SavedSearches holds one post id set per search: token. An empty set is
	// stored as [0] so it matches nothing.
	SavedSearches [][]int64 `json:"saved_searches,omitempty"`

	// ViewerID is the actor the query was parsed for; some predicates
	// (status:unmoderated, flagger:) depend on it.
	ViewerID      int64 `json:"viewer_id,omitempty"`
	ViewerIsAdmin bool  `json:"viewer_is_admin,omitempty"`
}

// HasDateFilter reports whether a usable date: or age: range is present.
// Ranges whose operands failed to parse do not count.
func (q *ParsedQuery) HasDateFilter() bool {
	return (q.Date != nil && q.Date.Valid()) || (q.Age != nil && q.Age.Valid())
}
