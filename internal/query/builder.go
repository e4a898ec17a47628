package query

import (
	"strconv"
	"strings"

	"github.com/AvengeMedia/dankbooru/internal/errdefs"
)

// builder accumulates one query. It is owned by a single Parse call and
// finalized exactly once.
type builder struct {
	p     *Parser
	actor *Actor
	q     *ParsedQuery
	tags  tagAccumulator
}

func newBuilder(p *Parser, actor *Actor) *builder {
	return &builder{
		p:     p,
		actor: actor,
		q: &ParsedQuery{
			CategoryTagCounts: make(map[string]*Range),
			CountRanges:       make(map[string]*Range),
			ViewerID:          actor.ID,
			ViewerIsAdmin:     actor.IsAdmin,
		},
		tags: tagAccumulator{resolver: p.resolvers.Tags},
	}
}

func (b *builder) finish() (*ParsedQuery, error) {
	if err := b.tags.resolveAliases(); err != nil {
		return nil, err
	}
	b.q.Tags = b.tags.set

	b.q.SafeMode = b.actor.SafeMode
	b.q.HideDeleted = b.hideDeleted()

	if b.q.HasDateFilter() {
		switch b.q.Order {
		case "", "id", "id_desc":
			b.q.Order = "created_at_desc"
		case "id_asc":
			b.q.Order = "created_at_asc"
		}
	}

	q := b.q
	b.q = nil
	return q, nil
}

func (b *builder) hideDeleted() bool {
	if b.actor.AdminMode {
		return false
	}
	for _, s := range []string{b.q.Status, b.q.StatusNeg} {
		switch s {
		case "deleted", "active", "any", "all":
			return false
		}
	}
	return b.actor.HideDeletedPosts
}

func (b *builder) parseRange(value string, kind Kind) *Range {
	r := parseRange(value, kind, b.p.opts.Now())
	return &r
}

func notAuthorized(msg string) error {
	return errdefs.NewCustomError(errdefs.ErrTypeNotAuthorized, msg, nil)
}

func unresolvable(msg string) error {
	return errdefs.NewCustomError(errdefs.ErrTypeUnresolvableEntity, msg, nil)
}

func (b *builder) findUser(name string) (*User, error) {
	if b.p.resolvers.Users == nil {
		return nil, nil
	}
	return b.p.resolvers.Users.FindUserByName(name)
}

// userRef resolves a user name. Unknown users become RefNoMatch.
func (b *builder) userRef(name string) (Ref, error) {
	u, err := b.findUser(name)
	if err != nil {
		return Ref{}, err
	}
	if u == nil {
		return Ref{Kind: RefNoMatch}, nil
	}
	return Ref{Kind: RefID, ID: u.ID}, nil
}

// userRefAnyNone is userRef with the literal values "any" and "none".
func (b *builder) userRefAnyNone(value string) (Ref, error) {
	switch strings.ToLower(value) {
	case "any":
		return Ref{Kind: RefAny}, nil
	case "none":
		return Ref{Kind: RefNone}, nil
	}
	return b.userRef(value)
}

// userID resolves a user for a negated reference; unknown users are dropped.
func (b *builder) userID(name string) (int64, bool, error) {
	u, err := b.findUser(name)
	if err != nil || u == nil {
		return 0, false, err
	}
	return u.ID, true, nil
}

func (b *builder) uploader(value string) error {
	ref, err := b.userRef(value)
	if err != nil {
		return err
	}
	b.q.Uploader = &ref
	return nil
}

func (b *builder) uploaderNeg(value string) error {
	id, ok, err := b.userID(value)
	if ok {
		b.q.UploaderNeg = append(b.q.UploaderNeg, id)
	}
	return err
}

func (b *builder) approver(value string) error {
	ref, err := b.userRefAnyNone(value)
	if err != nil {
		return err
	}
	b.q.Approver = &ref
	return nil
}

func (b *builder) approverNeg(value string) error {
	switch strings.ToLower(value) {
	case "none":
		b.q.Approver = &Ref{Kind: RefAny}
		return nil
	case "any":
		b.q.Approver = &Ref{Kind: RefNone}
		return nil
	}
	id, ok, err := b.userID(value)
	if ok {
		b.q.ApproverNeg = append(b.q.ApproverNeg, id)
	}
	return err
}

func (b *builder) checkFlagger(id int64) error {
	if !b.actor.CanViewFlagger(id) {
		return notAuthorized("you cannot search for posts flagged by another user")
	}
	return nil
}

func (b *builder) flagger(value string) error {
	ref, err := b.userRefAnyNone(value)
	if err != nil {
		return err
	}
	if ref.Kind == RefID {
		if err := b.checkFlagger(ref.ID); err != nil {
			return err
		}
	}
	b.q.Flaggers = append(b.q.Flaggers, ref)
	return nil
}

func (b *builder) flaggerNeg(value string) error {
	switch strings.ToLower(value) {
	case "none":
		b.q.Flaggers = append(b.q.Flaggers, Ref{Kind: RefAny})
		return nil
	case "any":
		b.q.Flaggers = append(b.q.Flaggers, Ref{Kind: RefNone})
		return nil
	}
	id, ok, err := b.userID(value)
	if err != nil || !ok {
		return err
	}
	if err := b.checkFlagger(id); err != nil {
		return err
	}
	b.q.FlaggersNeg = append(b.q.FlaggersNeg, id)
	return nil
}

func (b *builder) appealer(value string) error {
	ref, err := b.userRefAnyNone(value)
	if err != nil {
		return err
	}
	b.q.Appealers = append(b.q.Appealers, ref)
	return nil
}

func (b *builder) appealerNeg(value string) error {
	switch strings.ToLower(value) {
	case "none":
		b.q.Appealers = append(b.q.Appealers, Ref{Kind: RefAny})
		return nil
	case "any":
		b.q.Appealers = append(b.q.Appealers, Ref{Kind: RefNone})
		return nil
	}
	id, ok, err := b.userID(value)
	if ok {
		b.q.AppealersNeg = append(b.q.AppealersNeg, id)
	}
	return err
}

func (b *builder) commenter(value string) error {
	ref, err := b.userRefAnyNone(value)
	if err != nil {
		return err
	}
	b.q.Commenters = append(b.q.Commenters, ref)
	return nil
}

func (b *builder) noter(value string) error {
	ref, err := b.userRefAnyNone(value)
	if err != nil {
		return err
	}
	b.q.Noters = append(b.q.Noters, ref)
	return nil
}

func (b *builder) noteUpdater(value string) error {
	ref, err := b.userRef(value)
	if err != nil {
		return err
	}
	b.q.NoteUpdaters = append(b.q.NoteUpdaters, ref)
	return nil
}

func (b *builder) artcomm(value string) error {
	ref, err := b.userRef(value)
	if err != nil {
		return err
	}
	b.q.ArtcommUpdaters = append(b.q.ArtcommUpdaters, ref)
	return nil
}

// voter resolves upvote:/downvote:. Admins may name anyone, voters always
// search their own votes and everyone else is ignored.
func (b *builder) voter(value string) (*Ref, error) {
	switch {
	case b.actor.IsAdmin:
		ref, err := b.userRef(value)
		if err != nil {
			return nil, err
		}
		return &ref, nil
	case b.actor.IsVoter:
		return &Ref{Kind: RefID, ID: b.actor.ID}, nil
	}
	return nil, nil
}

func (b *builder) upvote(value string) error {
	ref, err := b.voter(value)
	if ref != nil {
		b.q.Upvoter = ref
	}
	return err
}

func (b *builder) downvote(value string) error {
	ref, err := b.voter(value)
	if ref != nil {
		b.q.Downvoter = ref
	}
	return err
}

func (b *builder) disapproval(value string) Disapproval {
	if b.actor.ID != 0 && strings.EqualFold(value, b.actor.Name) {
		return Disapproval{UserID: b.actor.ID}
	}
	return Disapproval{Reason: strings.ToLower(value)}
}

func (b *builder) disapproved(value string) error {
	b.q.Disapproved = append(b.q.Disapproved, b.disapproval(value))
	return nil
}

func (b *builder) disapprovedNeg(value string) error {
	b.q.DisapprovedNeg = append(b.q.DisapprovedNeg, b.disapproval(value))
	return nil
}

func (b *builder) poolFilter(value string) (PoolFilter, error) {
	switch strings.ToLower(value) {
	case "any":
		return PoolFilter{Kind: PoolAny}, nil
	case "none":
		return PoolFilter{Kind: PoolNone}, nil
	case "series":
		return PoolFilter{Kind: PoolSeries}, nil
	case "collection":
		return PoolFilter{Kind: PoolCollection}, nil
	}

	resolver := b.p.resolvers.Pools
	if strings.Contains(value, "*") {
		var pools []Pool
		if resolver != nil {
			var err error
			if pools, err = resolver.PoolsMatching(value); err != nil {
				return PoolFilter{}, err
			}
		}
		ids := make([]int64, 0, len(pools))
		for _, pool := range pools {
			ids = append(ids, pool.ID)
		}
		return PoolFilter{Kind: PoolIDs, IDs: ids}, nil
	}

	pool, err := b.findPool(value)
	if err != nil {
		return PoolFilter{}, err
	}
	return PoolFilter{Kind: PoolIDs, IDs: []int64{pool.ID}}, nil
}

func (b *builder) findPool(name string) (*Pool, error) {
	var pool *Pool
	if resolver := b.p.resolvers.Pools; resolver != nil {
		var err error
		if pool, err = resolver.FindPool(name); err != nil {
			return nil, err
		}
	}
	if pool == nil {
		return nil, unresolvable("pool not found: " + name)
	}
	return pool, nil
}

func (b *builder) pool(value string) error {
	f, err := b.poolFilter(value)
	if err != nil {
		return err
	}
	b.q.Pools = append(b.q.Pools, f)
	return nil
}

func (b *builder) poolNeg(value string) error {
	f, err := b.poolFilter(value)
	if err != nil {
		return err
	}
	b.q.PoolsNeg = append(b.q.PoolsNeg, f)
	return nil
}

func (b *builder) ordPool(value string) error {
	pool, err := b.findPool(value)
	if err != nil {
		return err
	}
	b.q.OrdPool = pool
	return nil
}

func (b *builder) findFavoriteGroup(value string) (*FavoriteGroup, error) {
	var group *FavoriteGroup
	if resolver := b.p.resolvers.FavoriteGroups; resolver != nil {
		var err error
		if group, err = resolver.FindFavoriteGroup(value, b.actor.ID); err != nil {
			return nil, err
		}
	}
	if group == nil {
		return nil, unresolvable("favorite group not found: " + value)
	}
	if !b.actor.canViewFavoriteGroup(group) {
		return nil, notAuthorized("you cannot view this favorite group")
	}
	return group, nil
}

func (b *builder) favGroup(value string) error {
	group, err := b.findFavoriteGroup(value)
	if err != nil {
		return err
	}
	b.q.FavGroups = append(b.q.FavGroups, group.ID)
	return nil
}

func (b *builder) favGroupNeg(value string) error {
	group, err := b.findFavoriteGroup(value)
	if err != nil {
		return err
	}
	b.q.FavGroupsNeg = append(b.q.FavGroupsNeg, group.ID)
	return nil
}

// favoriter resolves the user of fav:, -fav: and ordfav:, enforcing
// favorite privacy. A missing user is (nil, nil).
func (b *builder) favoriter(name string) (*User, error) {
	u, err := b.findUser(name)
	if err != nil || u == nil {
		return nil, err
	}
	if !b.actor.canViewFavorites(u) {
		return nil, notAuthorized(u.Name + " hides their favorites")
	}
	return u, nil
}

func (b *builder) fav(value string) error {
	u, err := b.favoriter(value)
	if err != nil {
		return err
	}
	if u == nil {
		b.tags.set.Related = append(b.tags.set.Related, NoMatchesTag)
		return nil
	}
	b.tags.set.Related = append(b.tags.set.Related, FavoriteTag(u.ID))
	return nil
}

func (b *builder) favNeg(value string) error {
	u, err := b.favoriter(value)
	if err != nil || u == nil {
		return err
	}
	b.tags.set.Exclude = append(b.tags.set.Exclude, FavoriteTag(u.ID))
	return nil
}

func (b *builder) ordFav(value string) error {
	u, err := b.favoriter(value)
	if err != nil {
		return err
	}
	if u == nil {
		b.tags.set.Related = append(b.tags.set.Related, NoMatchesTag)
		return nil
	}
	b.tags.set.Related = append(b.tags.set.Related, FavoriteTag(u.ID))
	id := u.ID
	b.q.OrdFav = &id
	return nil
}

func (b *builder) savedSearch(value string) error {
	label := strings.ToLower(value)
	if label == "all" {
		label = ""
	}

	var ids []int64
	if resolver := b.p.resolvers.SavedSearches; resolver != nil && b.actor.ID != 0 {
		var err error
		if ids, err = resolver.SavedSearchPostIDs(b.actor.ID, label); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		ids = []int64{0}
	}
	b.q.SavedSearches = append(b.q.SavedSearches, ids)
	return nil
}

func (b *builder) md5(value string) error {
	b.q.MD5 = strings.Split(strings.ToLower(value), ",")
	return nil
}

func (b *builder) rating(value string) error {
	b.q.Rating = strings.ToLower(value)
	return nil
}

func (b *builder) ratingNeg(value string) error {
	b.q.RatingNeg = strings.ToLower(value)
	return nil
}

func (b *builder) locked(value string) error {
	b.q.Locked = strings.ToLower(value)
	return nil
}

func (b *builder) lockedNeg(value string) error {
	b.q.LockedNeg = strings.ToLower(value)
	return nil
}

func (b *builder) status(value string) error {
	b.q.Status = strings.ToLower(value)
	return nil
}

func (b *builder) statusNeg(value string) error {
	b.q.StatusNeg = strings.ToLower(value)
	return nil
}

func (b *builder) filetype(value string) error {
	b.q.Filetype = strings.ToLower(value)
	return nil
}

func (b *builder) filetypeNeg(value string) error {
	b.q.FiletypeNeg = strings.ToLower(value)
	return nil
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}

func (b *builder) source(value string) error {
	s := unquote(value)
	b.q.Source = &s
	return nil
}

func (b *builder) sourceNeg(value string) error {
	s := unquote(value)
	b.q.SourceNeg = &s
	return nil
}

func (b *builder) embedded(value string) error {
	switch {
	case isTruthy(value):
		v := true
		b.q.Embedded = &v
	case isFalsy(value):
		v := false
		b.q.Embedded = &v
	default:
		b.q.Embedded = nil
	}
	return nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "on", "1":
		return true
	}
	return false
}

func isFalsy(s string) bool {
	switch strings.ToLower(s) {
	case "false", "f", "no", "n", "off", "0":
		return true
	}
	return false
}

func (b *builder) postID(value string) error {
	b.q.PostID = b.parseRange(value, KindInteger)
	return nil
}

func (b *builder) postIDNeg(value string) error {
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		b.q.PostIDNeg = &id
	}
	return nil
}

func (b *builder) mpixels(value string) error {
	r := parseFudged(value, KindFloat, b.p.opts.Now())
	b.q.MPixels = &r
	return nil
}

func (b *builder) filesize(value string) error {
	r := parseFudged(value, KindFilesize, b.p.opts.Now())
	b.q.FileSize = &r
	return nil
}

func (b *builder) age(value string) error {
	r := b.parseRange(value, KindAge).Reverse()
	b.q.Age = &r
	return nil
}

func (b *builder) pixiv(value string) error {
	switch strings.ToLower(value) {
	case "any":
		b.q.Pixiv, b.q.PixivID = &Ref{Kind: RefAny}, nil
	case "none":
		b.q.Pixiv, b.q.PixivID = &Ref{Kind: RefNone}, nil
	default:
		b.q.Pixiv, b.q.PixivID = nil, b.parseRange(value, KindInteger)
	}
	return nil
}

func (b *builder) parent(value string) error {
	switch strings.ToLower(value) {
	case "any":
		b.q.Parent = &Ref{Kind: RefAny}
	case "none":
		b.q.Parent = &Ref{Kind: RefNone}
	default:
		if id, err := strconv.ParseInt(value, 10, 64); err == nil {
			b.q.Parent = &Ref{Kind: RefID, ID: id}
		} else {
			b.q.Parent = &Ref{Kind: RefNoMatch}
		}
	}
	return nil
}

func (b *builder) parentNeg(value string) error {
	switch strings.ToLower(value) {
	case "any":
		b.q.Parent = &Ref{Kind: RefNone}
	case "none":
		b.q.Parent = &Ref{Kind: RefAny}
	default:
		if id, err := strconv.ParseInt(value, 10, 64); err == nil && id != 0 {
			b.q.ParentNegIDs = append(b.q.ParentNegIDs, id)
		}
	}
	return nil
}

func (b *builder) child(value string) error {
	b.q.Child = strings.ToLower(value)
	return nil
}

func (b *builder) order(value string) error {
	b.q.Order = CanonicalOrder(value)
	return nil
}
