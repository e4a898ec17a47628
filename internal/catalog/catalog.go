package catalog

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/bits-and-blooms/bloom/v3"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTags      = []byte("tags")
	bucketAliases   = []byte("aliases")
	bucketUsers     = []byte("users")
	bucketPools     = []byte("pools")
	bucketFavGroups = []byte("favgroups")
	bucketSearches  = []byte("searches")
	bucketFavorites = []byte("favorites")
	bucketFiles     = []byte("files")
	bucketMeta      = []byte("meta")

	allBuckets = [][]byte{
		bucketTags, bucketAliases, bucketUsers, bucketPools,
		bucketFavGroups, bucketSearches, bucketFavorites, bucketFiles,
		bucketMeta,
	}

	keyMaxPostID = []byte("max_post_id")
)

// DefaultWildcardLimit caps wildcard expansion when no limit is configured.
const DefaultWildcardLimit = 6

// Catalog is the bbolt-backed store for everything a query may need to
// resolve: tags and aliases, users, pools, favorite groups, saved searches
// and favorites. It also remembers which files have been ingested.
type Catalog struct {
	db            *bolt.DB
	wildcardLimit int

	mu          sync.RWMutex
	antecedents *bloom.BloomFilter
}

type Tag struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	PostCount int64  `json:"post_count"`
}

// FileMeta records the state of an ingested file. PostID is set for files
// ingested as a single post.
type FileMeta struct {
	ModTime time.Time
	Size    int64
	PostID  int64
}

type Stats struct {
	Tags           int `json:"tags"`
	Aliases        int `json:"aliases"`
	Users          int `json:"users"`
	Pools          int `json:"pools"`
	FavoriteGroups int `json:"favorite_groups"`
	SavedSearches  int `json:"saved_searches"`
	Favorites      int `json:"favorites"`
	Files          int `json:"files"`
}

func Open(path string, wildcardLimit int) (*Catalog, error) {
	if wildcardLimit <= 0 {
		wildcardLimit = DefaultWildcardLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "failed to create catalog directory", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "failed to open catalog", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "failed to create catalog buckets", err)
	}

	c := &Catalog{db: db, wildcardLimit: wildcardLimit}
	if err := c.loadAntecedents(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// loadAntecedents fills the alias bloom filter so unaliased names skip the
// bucket read in ToAliased.
func (c *Catalog) loadAntecedents() error {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAliases).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "failed to read aliases", err)
	}

	filter := bloom.NewWithEstimates(uint(max(len(names)*2, 10000)), 0.01)
	for _, name := range names {
		filter.AddString(name)
	}

	c.mu.Lock()
	c.antecedents = filter
	c.mu.Unlock()

	log.Debugf("catalog: loaded %d aliases", len(names))
	return nil
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func idKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// PutTag stores or replaces a tag.
func (c *Catalog) PutTag(tag Tag) error {
	tag.Name = normalizeName(tag.Name)
	return c.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTags), []byte(tag.Name), tag)
	})
}

func (c *Catalog) Tag(name string) (Tag, bool, error) {
	var tag Tag
	var found bool

	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTags).Get([]byte(normalizeName(name)))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &tag)
	})

	return tag, found, err
}

// AddPostTags increments the post count of every tag, creating unknown tags
// in the given default category.
func (c *Catalog) AddPostTags(tags []string, category string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTags)
		for _, name := range tags {
			name = normalizeName(name)
			if name == "" {
				continue
			}
			tag := Tag{Name: name, Category: category}
			if v := b.Get([]byte(name)); v != nil {
				if err := json.Unmarshal(v, &tag); err != nil {
					return err
				}
			}
			tag.PostCount++
			if err := putJSON(b, []byte(name), tag); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutAlias maps antecedent to consequent.
func (c *Catalog) PutAlias(antecedent, consequent string) error {
	antecedent = normalizeName(antecedent)
	consequent = normalizeName(consequent)

	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAliases).Put([]byte(antecedent), []byte(consequent))
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.antecedents.AddString(antecedent)
	c.mu.Unlock()
	return nil
}

func (c *Catalog) mayBeAliased(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.antecedents.TestString(name)
}

// ToAliased implements query.TagResolver.
func (c *Catalog) ToAliased(names []string) ([]string, error) {
	out := slices.Clone(names)
	if out == nil {
		out = []string{}
	}

	var lookups []int
	for i, name := range names {
		if c.mayBeAliased(name) {
			lookups = append(lookups, i)
		}
	}
	if len(lookups) == 0 {
		return out, nil
	}

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAliases)
		for _, i := range lookups {
			if v := b.Get([]byte(names[i])); v != nil {
				out[i] = string(v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "failed to resolve aliases", err)
	}
	return out, nil
}

// WildcardMatches implements query.TagResolver. Only tags with posts match;
// the most used come first, up to the wildcard limit.
func (c *Catalog) WildcardMatches(pattern string) ([]string, error) {
	pattern = normalizeName(pattern)
	prefix, _, _ := strings.Cut(pattern, "*")

	var matches []Tag
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketTags).Cursor()
		pfx := []byte(prefix)
		for k, v := cur.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = cur.Next() {
			if !MatchWildcard(pattern, string(k)) {
				continue
			}
			var tag Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return err
			}
			if tag.PostCount > 0 {
				matches = append(matches, tag)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "failed to expand wildcard", err)
	}

	slices.SortStableFunc(matches, func(a, b Tag) int {
		if n := cmp.Compare(b.PostCount, a.PostCount); n != 0 {
			return n
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(matches) > c.wildcardLimit {
		log.Debugf("catalog: wildcard %q matched %d tags, keeping %d", pattern, len(matches), c.wildcardLimit)
		matches = matches[:c.wildcardLimit]
	}

	names := make([]string, len(matches))
	for i, tag := range matches {
		names[i] = tag.Name
	}
	return names, nil
}

// MatchWildcard reports whether name matches pattern, where '*' matches any
// run of characters and everything else is literal.
func MatchWildcard(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(name, part)
		if i < 0 {
			return false
		}
		name = name[i+len(part):]
	}
	return len(name) >= len(last) && strings.HasSuffix(name, last)
}

func (c *Catalog) PutUser(u query.User) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketUsers), []byte(strings.ToLower(u.Name)), u)
	})
}

// FindUserByName implements query.UserResolver.
func (c *Catalog) FindUserByName(name string) (*query.User, error) {
	var user *query.User
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUsers).Get([]byte(strings.ToLower(name)))
		if v == nil {
			return nil
		}
		user = &query.User{}
		return json.Unmarshal(v, user)
	})
	return user, err
}

func (c *Catalog) PutPool(p query.Pool) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketPools), []byte(normalizeName(p.Name)), p)
	})
}

// FindPool implements query.PoolResolver.
func (c *Catalog) FindPool(name string) (*query.Pool, error) {
	var pool *query.Pool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPools).Get([]byte(normalizeName(name)))
		if v == nil {
			return nil
		}
		pool = &query.Pool{}
		return json.Unmarshal(v, pool)
	})
	return pool, err
}

// PoolsMatching implements query.PoolResolver. Results are ordered by id.
func (c *Catalog) PoolsMatching(pattern string) ([]query.Pool, error) {
	pattern = normalizeName(pattern)

	var pools []query.Pool
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(k, v []byte) error {
			if !MatchWildcard(pattern, string(k)) {
				return nil
			}
			var p query.Pool
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			pools = append(pools, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(pools, func(a, b query.Pool) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return pools, nil
}

func (c *Catalog) PutFavoriteGroup(g query.FavoriteGroup) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketFavGroups), idKey(g.ID), g)
	})
}

// FindFavoriteGroup implements query.FavoriteGroupResolver.
func (c *Catalog) FindFavoriteGroup(nameOrID string, creatorID int64) (*query.FavoriteGroup, error) {
	var group *query.FavoriteGroup

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFavGroups)
		if id, err := strconv.ParseInt(nameOrID, 10, 64); err == nil {
			v := b.Get(idKey(id))
			if v == nil {
				return nil
			}
			group = &query.FavoriteGroup{}
			return json.Unmarshal(v, group)
		}

		name := normalizeName(nameOrID)
		return b.ForEach(func(_, v []byte) error {
			if group != nil {
				return nil
			}
			var g query.FavoriteGroup
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			if g.CreatorID == creatorID && normalizeName(g.Name) == name {
				group = &g
			}
			return nil
		})
	})

	return group, err
}

func searchKey(userID int64, label string) []byte {
	return []byte(strconv.FormatInt(userID, 10) + "/" + strings.ToLower(label))
}

// PutSavedSearch stores the posts matched by one of a user's saved searches.
func (c *Catalog) PutSavedSearch(userID int64, label string, postIDs []int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSearches), searchKey(userID, label), postIDs)
	})
}

// SavedSearchPostIDs implements query.SavedSearchResolver.
func (c *Catalog) SavedSearchPostIDs(userID int64, label string) ([]int64, error) {
	var ids []int64

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSearches)
		if label != "" {
			v := b.Get(searchKey(userID, label))
			if v == nil {
				return nil
			}
			return json.Unmarshal(v, &ids)
		}

		cur := b.Cursor()
		pfx := searchKey(userID, "")
		for k, v := cur.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = cur.Next() {
			var labelIDs []int64
			if err := json.Unmarshal(v, &labelIDs); err != nil {
				return err
			}
			ids = append(ids, labelIDs...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// AddFavorite records that userID favorited postID. Favorites keep the
// order they were added in.
func (c *Catalog) AddFavorite(userID, postID int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFavorites)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := append(idKey(userID), idKey(int64(seq))...)
		return b.Put(key, idKey(postID))
	})
}

// FavoritePostIDs returns the posts userID favorited, newest first.
func (c *Catalog) FavoritePostIDs(userID int64) ([]int64, error) {
	var ids []int64

	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketFavorites).Cursor()
		pfx := idKey(userID)
		for k, v := cur.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = cur.Next() {
			ids = append(ids, int64(binary.BigEndian.Uint64(v)))
		}
		return nil
	})

	slices.Reverse(ids)
	return ids, err
}

func (c *Catalog) PutFile(path string, meta FileMeta) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(path), encodeMeta(meta))
	})
}

func (c *Catalog) File(path string) (FileMeta, bool, error) {
	var meta FileMeta
	var found bool

	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get([]byte(path))
		if v != nil {
			meta = decodeMeta(v)
			found = true
		}
		return nil
	})

	return meta, found, err
}

func (c *Catalog) DeleteFile(path string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(path))
	})
}

func maxPostID(b *bolt.Bucket) int64 {
	if v := b.Get(keyMaxPostID); len(v) == 8 {
		return int64(binary.BigEndian.Uint64(v))
	}
	return 0
}

// ObservePostID records that a post with the given id exists, so NextPostID
// never hands it out.
func (c *Catalog) ObservePostID(id int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if id <= maxPostID(b) {
			return nil
		}
		return b.Put(keyMaxPostID, idKey(id))
	})
}

// NextPostID allocates an id above every id seen so far.
func (c *Catalog) NextPostID() (int64, error) {
	var id int64
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		id = maxPostID(b) + 1
		return b.Put(keyMaxPostID, idKey(id))
	})
	return id, err
}

func (c *Catalog) Stats() (Stats, error) {
	var s Stats
	err := c.db.View(func(tx *bolt.Tx) error {
		n := func(name []byte) int {
			return tx.Bucket(name).Stats().KeyN
		}
		s = Stats{
			Tags:           n(bucketTags),
			Aliases:        n(bucketAliases),
			Users:          n(bucketUsers),
			Pools:          n(bucketPools),
			FavoriteGroups: n(bucketFavGroups),
			SavedSearches:  n(bucketSearches),
			Favorites:      n(bucketFavorites),
			Files:          n(bucketFiles),
		}
		return nil
	})
	return s, err
}

// Resolvers bundles the catalog as every lookup a parse needs.
func (c *Catalog) Resolvers() query.Resolvers {
	return query.Resolvers{
		Tags:           c,
		Users:          c,
		Pools:          c,
		FavoriteGroups: c,
		SavedSearches:  c,
	}
}

func encodeMeta(m FileMeta) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.ModTime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Size))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.PostID))
	return buf
}

func decodeMeta(b []byte) FileMeta {
	if len(b) < 16 {
		return FileMeta{}
	}
	m := FileMeta{
		ModTime: time.Unix(0, int64(binary.LittleEndian.Uint64(b[0:8]))),
		Size:    int64(binary.LittleEndian.Uint64(b[8:16])),
	}
	if len(b) >= 24 {
		m.PostID = int64(binary.LittleEndian.Uint64(b[16:24]))
	}
	return m
}
