package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AvengeMedia/dankbooru/internal/errdefs"
)

// NoMatchesTag is a tag no post can carry. It stands in for an include
// wildcard that expanded to nothing so the query matches no posts.
const NoMatchesTag = "~no_matches~"

// NormalizeTagName lowercases a tag, trims it and replaces spaces with
// underscores.
func NormalizeTagName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// FavoriteTag is the pseudo-tag carried by every post favorited by userID.
func FavoriteTag(userID int64) string {
	return "fav:" + strconv.FormatInt(userID, 10)
}

type tagAccumulator struct {
	resolver TagResolver
	set      TagSet
}

func (a *tagAccumulator) add(token string) error {
	tag := NormalizeTagName(token)

	var op byte
	if strings.HasPrefix(tag, "-") || strings.HasPrefix(tag, "~") {
		op, tag = tag[0], tag[1:]
	}

	if strings.Contains(tag, "*") {
		matches, err := a.wildcard(tag)
		if err != nil {
			return err
		}
		if op == '-' {
			a.set.Exclude = append(a.set.Exclude, matches...)
			return nil
		}
		if len(matches) == 0 {
			matches = []string{NoMatchesTag}
		}
		a.set.Include = append(a.set.Include, matches...)
		return nil
	}

	switch op {
	case '-':
		a.set.Exclude = append(a.set.Exclude, tag)
	case '~':
		a.set.Include = append(a.set.Include, tag)
	default:
		a.set.Related = append(a.set.Related, tag)
	}
	return nil
}

func (a *tagAccumulator) wildcard(pattern string) ([]string, error) {
	if a.resolver == nil {
		return nil, nil
	}
	return a.resolver.WildcardMatches(pattern)
}

// resolveAliases maps all three sets through one batched alias lookup.
func (a *tagAccumulator) resolveAliases() error {
	if a.resolver == nil || a.set.Empty() {
		return nil
	}

	sets := []*[]string{&a.set.Include, &a.set.Related, &a.set.Exclude}
	var names []string
	for _, set := range sets {
		names = append(names, *set...)
	}

	aliased, err := a.resolver.ToAliased(names)
	if err != nil {
		return err
	}
	if len(aliased) != len(names) {
		return errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed,
			fmt.Sprintf("alias lookup returned %d names for %d tags", len(aliased), len(names)), nil)
	}

	for _, set := range sets {
		n := len(*set)
		*set, aliased = aliased[:n:n], aliased[n:]
	}
	return nil
}
