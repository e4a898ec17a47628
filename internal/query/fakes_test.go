package query

import (
	"path"
	"strconv"
	"strings"
	"time"
)

type fakeTags struct {
	vocabulary []string
	aliases    map[string]string
	aliasCalls int
}

func (f *fakeTags) WildcardMatches(pattern string) ([]string, error) {
	var out []string
	for _, tag := range f.vocabulary {
		if ok, _ := path.Match(pattern, tag); ok {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (f *fakeTags) ToAliased(names []string) ([]string, error) {
	f.aliasCalls++
	out := make([]string, len(names))
	for i, name := range names {
		if consequent, ok := f.aliases[name]; ok {
			out[i] = consequent
		} else {
			out[i] = name
		}
	}
	return out, nil
}

type fakeUsers map[string]*User

func (f fakeUsers) FindUserByName(name string) (*User, error) {
	return f[strings.ToLower(name)], nil
}

type fakeEntities struct {
	pools    []Pool
	groups   []FavoriteGroup
	searches map[string][]int64
}

func (f *fakeEntities) FindPool(name string) (*Pool, error) {
	for i := range f.pools {
		if strings.EqualFold(f.pools[i].Name, name) {
			return &f.pools[i], nil
		}
	}
	return nil, nil
}

func (f *fakeEntities) PoolsMatching(pattern string) ([]Pool, error) {
	var out []Pool
	for _, p := range f.pools {
		if ok, _ := path.Match(strings.ToLower(pattern), strings.ToLower(p.Name)); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeEntities) FindFavoriteGroup(nameOrID string, creatorID int64) (*FavoriteGroup, error) {
	if id, err := strconv.ParseInt(nameOrID, 10, 64); err == nil {
		for i := range f.groups {
			if f.groups[i].ID == id {
				return &f.groups[i], nil
			}
		}
		return nil, nil
	}
	for i := range f.groups {
		if f.groups[i].CreatorID == creatorID && strings.EqualFold(f.groups[i].Name, nameOrID) {
			return &f.groups[i], nil
		}
	}
	return nil, nil
}

func (f *fakeEntities) SavedSearchPostIDs(userID int64, label string) ([]int64, error) {
	return f.searches[strconv.FormatInt(userID, 10)+"/"+label], nil
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestParser() (*Parser, *fakeTags) {
	tags := &fakeTags{
		vocabulary: []string{"touhou", "touken_ranbu", "hakurei_reimu", "kirisame_marisa"},
		aliases:    map[string]string{"reimu": "hakurei_reimu", "marisa": "kirisame_marisa"},
	}
	users := fakeUsers{
		"alice":   {ID: 1, Name: "alice"},
		"bob":     {ID: 2, Name: "bob", PrivateFavorites: true},
		"charlie": {ID: 3, Name: "charlie"},
	}
	entities := &fakeEntities{
		pools: []Pool{
			{ID: 10, Name: "touhou_comics", Category: "series", PostIDs: []int64{5, 3, 9}},
			{ID: 11, Name: "touhou_art", Category: "collection", PostIDs: []int64{1}},
			{ID: 12, Name: "landscapes", Category: "collection"},
		},
		groups: []FavoriteGroup{
			{ID: 20, Name: "best", CreatorID: 1, IsPublic: true},
			{ID: 21, Name: "secret", CreatorID: 2},
		},
		searches: map[string][]int64{
			"1/":      {4, 5, 6},
			"1/cats":  {4},
			"1/empty": nil,
		},
	}

	p := NewParser(Resolvers{
		Tags:           tags,
		Users:          users,
		Pools:          entities,
		FavoriteGroups: entities,
		SavedSearches:  entities,
	}, Options{
		IsUnlimited: func(tok string) bool {
			return tok == "status:deleted" || tok == "-status:deleted" ||
				strings.HasPrefix(tok, "rating:s") || strings.HasPrefix(tok, "limit:")
		},
		Now: func() time.Time { return fixedNow },
	})
	return p, tags
}
