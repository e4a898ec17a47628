package poststore

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/plan"
	bleve "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	fieldSource  = "doc"
	fieldPresent = "present"

	// DefaultLimit is the page size used when a search asks for none.
	DefaultLimit = 20
	// MaxWindow bounds how many matches are pulled into memory for orders
	// applied after retrieval.
	MaxWindow = 10000
)

// FavoritesLookup returns a user's favorited posts, newest first.
type FavoritesLookup interface {
	FavoritePostIDs(userID int64) ([]int64, error)
}

type Store struct {
	index     bleve.Index
	favorites FavoritesLookup
	mu        sync.RWMutex
}

type SearchOptions struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type Result struct {
	Posts []*Post       `json:"posts"`
	Total uint64        `json:"total"`
	Took  time.Duration `json:"took"`
}

type Stats struct {
	Posts uint64 `json:"posts"`
}

func Open(path string, favorites FavoritesLookup) (*Store, error) {
	idx, err := openOrCreateIndex(path)
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeIndexingFailed, "failed to open post index", err)
	}
	return &Store{index: idx, favorites: favorites}, nil
}

func openOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.NewUsing(path, buildIndexMapping(), "scorch", "scorch", getIndexConfig())
		if err != nil {
			return nil, err
		}
		log.Infof("created new post index at %s", path)
		return idx, nil
	}
	if err != nil {
		return nil, err
	}
	log.Infof("opened existing post index at %s", path)
	return idx, nil
}

func getIndexConfig() map[string]interface{} {
	return map[string]interface{}{
		"create_if_missing": true,
		"error_if_exists":   false,
		"unsafe_batch":      false,
	}
}

// buildIndexMapping indexes every string as a single keyword term. Numbers,
// booleans and times are mapped dynamically.
func buildIndexMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = keyword.Name
	m.StoreDynamic = false

	docMapping := bleve.NewDocumentMapping()

	sourceField := bleve.NewTextFieldMapping()
	sourceField.Index = false
	sourceField.Store = true
	sourceField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldSource, sourceField)

	for _, name := range []string{plan.FieldCreatedAt, plan.FieldUpdatedAt, plan.FieldModqueueAt} {
		dateField := bleve.NewDateTimeFieldMapping()
		dateField.IncludeInAll = false
		docMapping.AddFieldMappingsAt(name, dateField)
	}

	m.DefaultMapping = docMapping
	return m
}

// Put indexes or replaces posts in one batch.
func (s *Store) Put(posts ...*Post) error {
	if len(posts) == 0 {
		return nil
	}

	batch := s.index.NewBatch()
	for _, p := range posts {
		doc, err := p.document()
		if err != nil {
			return errdefs.NewCustomError(errdefs.ErrTypeIndexingFailed, "post "+docID(p.ID), err)
		}
		if err := batch.Index(docID(p.ID), doc); err != nil {
			return errdefs.NewCustomError(errdefs.ErrTypeIndexingFailed, "post "+docID(p.ID), err)
		}
	}

	s.mu.Lock()
	err := s.index.Batch(batch)
	s.mu.Unlock()

	if err != nil {
		return errdefs.NewCustomError(errdefs.ErrTypeIndexingFailed, "batch failed", err)
	}
	log.Debugf("indexed %d posts", len(posts))
	return nil
}

func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Delete(docID(id)); err != nil {
		return errdefs.NewCustomError(errdefs.ErrTypeIndexingFailed, "delete failed", err)
	}
	log.Debugf("deleted post %d", id)
	return nil
}

// Get returns a post by id, or nil when it is not indexed.
func (s *Store) Get(id int64) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docID(id)}))
	req.Fields = []string{fieldSource}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "get failed", err)
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}
	return decodeHit(result.Hits[0].Fields)
}

func decodeHit(fields map[string]interface{}) (*Post, error) {
	src, ok := fields[fieldSource].(string)
	if !ok {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "hit has no stored document", nil)
	}
	var p Post
	if err := json.Unmarshal([]byte(src), &p); err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "corrupt stored document", err)
	}
	return &p, nil
}

// postOrderedByList reports whether the directive orders by an external id
// list, which bleve cannot sort by.
func postOrderedByList(d plan.SortDirective) bool {
	return len(d.CustomIDs) > 0 || len(d.PoolPostIDs) > 0 || d.FavoritesOf != nil || d.Random
}

// Search executes a compiled plan.
func (s *Store) Search(ctx context.Context, p *plan.QueryPlan, opts SearchOptions) (*Result, error) {
	start := time.Now()

	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	q, err := translate(p.Predicates)
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "untranslatable plan", err)
	}

	req := bleve.NewSearchRequest(q)
	req.Fields = []string{fieldSource}

	keys := p.Sort.Keys
	if len(keys) == 0 {
		keys = []plan.SortKey{{Field: plan.FieldID, Desc: true}}
	}
	req.SortByCustom(sortOrder(keys))

	// List orders are applied over the whole window, with the sort keys as
	// the order among posts at the same position.
	listOrdered := postOrderedByList(p.Sort)
	if listOrdered {
		req.Size = MaxWindow
	} else {
		req.Size = opts.Limit
		req.From = opts.Offset
	}
	if len(p.Sort.Joins) > 0 {
		log.Debugf("sort %s joins %v", p.Sort.Name, p.Sort.Joins)
	}

	s.mu.RLock()
	result, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "search failed", err)
	}

	posts := make([]*Post, 0, len(result.Hits))
	for _, hit := range result.Hits {
		post, err := decodeHit(hit.Fields)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	if listOrdered {
		if posts, err = s.orderByList(posts, p.Sort); err != nil {
			return nil, err
		}
		posts = window(posts, opts.Offset, opts.Limit)
	}

	return &Result{Posts: posts, Total: result.Total, Took: time.Since(start)}, nil
}

// orderByList applies the orders that depend on data outside the index:
// caller supplied ids, pool position, favorite recency and random.
func (s *Store) orderByList(posts []*Post, d plan.SortDirective) ([]*Post, error) {
	var ids []int64
	switch {
	case len(d.CustomIDs) > 0:
		ids = d.CustomIDs
	case len(d.PoolPostIDs) > 0:
		ids = d.PoolPostIDs
	case d.FavoritesOf != nil:
		if s.favorites == nil {
			return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "no favorites lookup configured", nil)
		}
		favs, err := s.favorites.FavoritePostIDs(*d.FavoritesOf)
		if err != nil {
			return nil, errdefs.NewCustomError(errdefs.ErrTypeSearchFailed, "favorites lookup failed", err)
		}
		ids = favs
	case d.Random:
		rand.Shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
		return posts, nil
	}

	position := make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, ok := position[id]; !ok {
			position[id] = i
		}
	}
	rank := func(p *Post) int {
		if i, ok := position[p.ID]; ok {
			return i
		}
		return len(ids)
	}
	slices.SortStableFunc(posts, func(a, b *Post) int {
		return rank(a) - rank(b)
	})
	return posts, nil
}

func window(posts []*Post, offset, limit int) []*Post {
	if offset >= len(posts) {
		return []*Post{}
	}
	end := min(offset+limit, len(posts))
	return posts[offset:end]
}

// IDs returns the ids of posts in a result, in order.
func (r *Result) IDs() []int64 {
	ids := make([]int64, len(r.Posts))
	for i, p := range r.Posts {
		ids[i] = p.ID
	}
	return ids
}

func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.index.DocCount()
	if err != nil {
		return Stats{}, errdefs.NewCustomError(errdefs.ErrTypeIndexNotFound, "doc count failed", err)
	}
	return Stats{Posts: count}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
