package ingest

import (
	"encoding/json"
	"io"

	"github.com/AvengeMedia/dankbooru/internal/catalog"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/AvengeMedia/dankbooru/internal/query"
)

// Batch is the JSON import format. Every section is optional.
type Batch struct {
	Tags           []catalog.Tag         `json:"tags,omitempty"`
	Aliases        map[string]string     `json:"aliases,omitempty"`
	Users          []query.User          `json:"users,omitempty"`
	Pools          []query.Pool          `json:"pools,omitempty"`
	FavoriteGroups []query.FavoriteGroup `json:"favorite_groups,omitempty"`
	SavedSearches  []SavedSearch         `json:"saved_searches,omitempty"`
	Posts          []*poststore.Post     `json:"posts,omitempty"`
}

type SavedSearch struct {
	UserID  int64   `json:"user_id"`
	Label   string  `json:"label"`
	PostIDs []int64 `json:"post_ids"`
}

func DecodeBatch(r io.Reader) (*Batch, error) {
	var b Batch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Size is the number of records in the batch.
func (b *Batch) Size() int {
	return len(b.Tags) + len(b.Aliases) + len(b.Users) + len(b.Pools) +
		len(b.FavoriteGroups) + len(b.SavedSearches) + len(b.Posts)
}

// applyCatalog writes the non-post sections.
func (b *Batch) applyCatalog(c *catalog.Catalog) error {
	for _, tag := range b.Tags {
		if err := c.PutTag(tag); err != nil {
			return err
		}
	}
	for antecedent, consequent := range b.Aliases {
		if err := c.PutAlias(antecedent, consequent); err != nil {
			return err
		}
	}
	for _, u := range b.Users {
		if err := c.PutUser(u); err != nil {
			return err
		}
	}
	for _, p := range b.Pools {
		if err := c.PutPool(p); err != nil {
			return err
		}
	}
	for _, g := range b.FavoriteGroups {
		if err := c.PutFavoriteGroup(g); err != nil {
			return err
		}
	}
	for _, s := range b.SavedSearches {
		if err := c.PutSavedSearch(s.UserID, s.Label, s.PostIDs); err != nil {
			return err
		}
	}
	return nil
}
