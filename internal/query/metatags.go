package query

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// CountMetatags are the per-post counter columns that can be searched and
// ordered by.
var CountMetatags = []string{
	"comment_count", "deleted_comment_count", "active_comment_count",
	"note_count", "deleted_note_count", "active_note_count",
	"flag_count", "resolved_flag_count", "unresolved_flag_count",
	"child_count", "deleted_child_count", "active_child_count",
	"pool_count", "deleted_pool_count", "active_pool_count", "series_pool_count", "collection_pool_count",
	"appeal_count", "approval_count", "replacement_count",
}

// countSynonyms maps the plural form of each count metatag, e.g.
// "deleted_children", to the count metatag itself.
var countSynonyms = buildCountSynonyms()

func buildCountSynonyms() map[string]string {
	m := make(map[string]string, len(CountMetatags))
	for _, name := range CountMetatags {
		m[inflection.Plural(strings.TrimSuffix(name, "_count"))] = name
	}
	return m
}

// CanonicalCountMetatag resolves a plural synonym to its count metatag.
func CanonicalCountMetatag(name string) (string, bool) {
	name = strings.ToLower(name)
	if canonical, ok := countSynonyms[name]; ok {
		return canonical, true
	}
	for _, c := range CountMetatags {
		if c == name {
			return c, true
		}
	}
	return "", false
}

// ValueKind describes the grammar of a metatag's value.
type ValueKind int

const (
	ValueUser ValueKind = iota
	ValueEntity
	ValueRange
	ValueEnum
	ValueString
	ValueBool
	ValueOrder
	ValueIgnored
)

type handlerFunc func(b *builder, value string) error

// Metatag is one entry of the metatag table. Negated forms are separate
// entries whose Name starts with '-'.
type Metatag struct {
	Name  string
	Value ValueKind
	// Negatable is set on the positive form when a '-name:' form exists.
	Negatable bool

	handle handlerFunc
}

type registry map[string]*Metatag

func (r registry) add(name string, kind ValueKind, h handlerFunc) {
	r[name] = &Metatag{Name: name, Value: kind, handle: h}
	if negated, ok := strings.CutPrefix(name, "-"); ok {
		if m, ok := r[negated]; ok {
			m.Negatable = true
		}
	} else if _, ok := r["-"+name]; ok {
		r[name].Negatable = true
	}
}

func newRegistry(categories []Category) registry {
	r := make(registry)

	r.add("user", ValueUser, (*builder).uploader)
	r.add("-user", ValueUser, (*builder).uploaderNeg)
	r.add("approver", ValueUser, (*builder).approver)
	r.add("-approver", ValueUser, (*builder).approverNeg)
	r.add("flagger", ValueUser, (*builder).flagger)
	r.add("-flagger", ValueUser, (*builder).flaggerNeg)
	r.add("appealer", ValueUser, (*builder).appealer)
	r.add("-appealer", ValueUser, (*builder).appealerNeg)
	r.add("commenter", ValueUser, (*builder).commenter)
	r.add("comm", ValueUser, (*builder).commenter)
	r.add("noter", ValueUser, (*builder).noter)
	r.add("noteupdater", ValueUser, (*builder).noteUpdater)
	r.add("artcomm", ValueUser, (*builder).artcomm)
	r.add("upvote", ValueUser, (*builder).upvote)
	r.add("downvote", ValueUser, (*builder).downvote)
	r.add("disapproved", ValueString, (*builder).disapproved)
	r.add("-disapproved", ValueString, (*builder).disapprovedNeg)

	r.add("pool", ValueEntity, (*builder).pool)
	r.add("-pool", ValueEntity, (*builder).poolNeg)
	r.add("ordpool", ValueEntity, (*builder).ordPool)
	r.add("favgroup", ValueEntity, (*builder).favGroup)
	r.add("-favgroup", ValueEntity, (*builder).favGroupNeg)
	r.add("fav", ValueUser, (*builder).fav)
	r.add("-fav", ValueUser, (*builder).favNeg)
	r.add("ordfav", ValueUser, (*builder).ordFav)
	r.add("search", ValueEntity, (*builder).savedSearch)

	r.add("md5", ValueString, (*builder).md5)
	r.add("rating", ValueEnum, (*builder).rating)
	r.add("-rating", ValueEnum, (*builder).ratingNeg)
	r.add("locked", ValueEnum, (*builder).locked)
	r.add("-locked", ValueEnum, (*builder).lockedNeg)
	r.add("status", ValueEnum, (*builder).status)
	r.add("-status", ValueEnum, (*builder).statusNeg)
	r.add("filetype", ValueEnum, (*builder).filetype)
	r.add("-filetype", ValueEnum, (*builder).filetypeNeg)
	r.add("source", ValueString, (*builder).source)
	r.add("-source", ValueString, (*builder).sourceNeg)
	r.add("embedded", ValueBool, (*builder).embedded)

	r.add("id", ValueRange, (*builder).postID)
	r.add("-id", ValueRange, (*builder).postIDNeg)
	r.add("width", ValueRange, rangeSetter(KindInteger, func(q *ParsedQuery, v *Range) { q.Width = v }))
	r.add("height", ValueRange, rangeSetter(KindInteger, func(q *ParsedQuery, v *Range) { q.Height = v }))
	r.add("score", ValueRange, rangeSetter(KindInteger, func(q *ParsedQuery, v *Range) { q.Score = v }))
	r.add("favcount", ValueRange, rangeSetter(KindInteger, func(q *ParsedQuery, v *Range) { q.FavCount = v }))
	r.add("tagcount", ValueRange, rangeSetter(KindInteger, func(q *ParsedQuery, v *Range) { q.PostTagCount = v }))
	r.add("ratio", ValueRange, rangeSetter(KindRatio, func(q *ParsedQuery, v *Range) { q.Ratio = v }))
	r.add("date", ValueRange, rangeSetter(KindDate, func(q *ParsedQuery, v *Range) { q.Date = v }))
	r.add("mpixels", ValueRange, (*builder).mpixels)
	r.add("filesize", ValueRange, (*builder).filesize)
	r.add("age", ValueRange, (*builder).age)
	r.add("pixiv_id", ValueRange, (*builder).pixiv)
	r.add("pixiv", ValueRange, (*builder).pixiv)

	r.add("parent", ValueRange, (*builder).parent)
	r.add("-parent", ValueRange, (*builder).parentNeg)
	r.add("child", ValueEnum, (*builder).child)

	r.add("order", ValueOrder, (*builder).order)
	r.add("limit", ValueIgnored, func(*builder, string) error { return nil })

	for _, cat := range categories {
		name := cat.Name
		r.add(cat.Short+"tags", ValueRange, func(b *builder, value string) error {
			b.q.CategoryTagCounts[name] = b.parseRange(value, KindInteger)
			return nil
		})
	}

	for _, column := range CountMetatags {
		r.add(column, ValueRange, countSetter(column))
	}
	for synonym, column := range countSynonyms {
		r.add(synonym, ValueRange, countSetter(column))
	}

	return r
}

func rangeSetter(kind Kind, set func(q *ParsedQuery, v *Range)) handlerFunc {
	return func(b *builder, value string) error {
		set(b.q, b.parseRange(value, kind))
		return nil
	}
}

func countSetter(column string) handlerFunc {
	return func(b *builder, value string) error {
		b.q.CountRanges[column] = b.parseRange(value, KindInteger)
		return nil
	}
}

// Names returns every recognized metatag name, sorted.
func (r registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookup splits a token of the form name:value. The name is matched
// case-insensitively and the value must be non-empty.
func (r registry) lookup(token string) (*Metatag, string, bool) {
	name, value, ok := strings.Cut(token, ":")
	if !ok || value == "" {
		return nil, "", false
	}
	m, ok := r[strings.ToLower(name)]
	if !ok {
		return nil, "", false
	}
	return m, value, true
}
