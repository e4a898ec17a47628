package query

// TagResolver expands wildcards and maps tag names to their canonical alias.
type TagResolver interface {
	// WildcardMatches returns existing tags matching a '*' pattern.
	WildcardMatches(pattern string) ([]string, error)
	// ToAliased maps every name to its alias consequent, or itself when
	// unaliased. The result has the same length and order as names.
	ToAliased(names []string) ([]string, error)
}

type User struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	PrivateFavorites bool   `json:"private_favorites,omitempty"`
}

// UserResolver looks users up by name. A missing user is (nil, nil).
type UserResolver interface {
	FindUserByName(name string) (*User, error)
}

type Pool struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	PostIDs  []int64 `json:"post_ids"`
}

// PoolResolver looks pools up by name. A missing pool is (nil, nil).
type PoolResolver interface {
	FindPool(name string) (*Pool, error)
	PoolsMatching(pattern string) ([]Pool, error)
}

type FavoriteGroup struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	CreatorID int64   `json:"creator_id"`
	IsPublic  bool    `json:"is_public"`
	PostIDs   []int64 `json:"post_ids"`
}

// FavoriteGroupResolver finds a favorite group by numeric id, or by name
// among the groups created by creatorID. A missing group is (nil, nil).
type FavoriteGroupResolver interface {
	FindFavoriteGroup(nameOrID string, creatorID int64) (*FavoriteGroup, error)
}

// SavedSearchResolver returns the posts matched by a user's saved searches
// with the given label, or by all of them when label is empty.
type SavedSearchResolver interface {
	SavedSearchPostIDs(userID int64, label string) ([]int64, error)
}

// Resolvers bundles the lookups a parse may need.
type Resolvers struct {
	Tags           TagResolver
	Users          UserResolver
	Pools          PoolResolver
	FavoriteGroups FavoriteGroupResolver
	SavedSearches  SavedSearchResolver
}
