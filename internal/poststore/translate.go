package poststore

import (
	"fmt"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/plan"
	bleve "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	bq "github.com/blevesearch/bleve/v2/search/query"
)

// translate turns plan predicates into one bleve query. An empty predicate
// list matches everything.
func translate(preds []plan.Predicate) (bq.Query, error) {
	if len(preds) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}

	queries := make([]bq.Query, 0, len(preds))
	for _, p := range preds {
		q, err := translatePredicate(p)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return bleve.NewConjunctionQuery(queries...), nil
}

func not(q bq.Query) bq.Query {
	b := bleve.NewBooleanQuery()
	b.AddMustNot(q)
	return b
}

func presence(field string) bq.Query {
	q := bleve.NewTermQuery(field)
	q.SetField(fieldPresent)
	return q
}

func translatePredicate(p plan.Predicate) (bq.Query, error) {
	switch p.Op {
	case plan.OpNone:
		return bleve.NewMatchNoneQuery(), nil
	case plan.OpPresent:
		return presence(p.Field), nil
	case plan.OpAbsent:
		return not(presence(p.Field)), nil
	case plan.OpOr:
		if len(p.Any) == 0 {
			return bleve.NewMatchNoneQuery(), nil
		}
		queries := make([]bq.Query, 0, len(p.Any))
		for _, sub := range p.Any {
			q, err := translatePredicate(sub)
			if err != nil {
				return nil, err
			}
			queries = append(queries, q)
		}
		return bleve.NewDisjunctionQuery(queries...), nil
	}

	if len(p.Values) == 0 {
		return nil, fmt.Errorf("predicate %s %s has no operands", p.Field, p.Op)
	}

	switch p.Op {
	case plan.OpEq:
		return equal(p.Field, p.Values[0])
	case plan.OpNe:
		q, err := equal(p.Field, p.Values[0])
		if err != nil {
			return nil, err
		}
		return not(q), nil
	case plan.OpGt, plan.OpGte, plan.OpLt, plan.OpLte:
		return compare(p.Field, p.Op, p.Values[0])
	case plan.OpBetween:
		if len(p.Values) != 2 {
			return nil, fmt.Errorf("between on %s needs two operands", p.Field)
		}
		return between(p.Field, p.Values[0], p.Values[1])
	case plan.OpIn, plan.OpNotIn, plan.OpAll:
		queries := make([]bq.Query, 0, len(p.Values))
		for _, v := range p.Values {
			q, err := equal(p.Field, v)
			if err != nil {
				return nil, err
			}
			queries = append(queries, q)
		}
		switch p.Op {
		case plan.OpIn:
			return bleve.NewDisjunctionQuery(queries...), nil
		case plan.OpNotIn:
			return not(bleve.NewDisjunctionQuery(queries...)), nil
		default:
			return bleve.NewConjunctionQuery(queries...), nil
		}
	case plan.OpLike, plan.OpNotLike:
		pattern, ok := p.Values[0].(string)
		if !ok {
			return nil, fmt.Errorf("like on %s needs a string pattern", p.Field)
		}
		q := bleve.NewWildcardQuery(pattern)
		q.SetField(p.Field)
		if p.Op == plan.OpNotLike {
			return not(q), nil
		}
		return q, nil
	}

	return nil, fmt.Errorf("unsupported operator %q", p.Op)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func ptr[T any](v T) *T {
	return &v
}

func equal(field string, v any) (bq.Query, error) {
	switch val := v.(type) {
	case bool:
		q := bleve.NewBoolFieldQuery(val)
		q.SetField(field)
		return q, nil
	case string:
		// Empty strings are not indexed; equality with "" is absence.
		if val == "" {
			return not(presence(field)), nil
		}
		q := bleve.NewTermQuery(val)
		q.SetField(field)
		return q, nil
	case time.Time:
		q := bleve.NewDateRangeInclusiveQuery(val, val, ptr(true), ptr(true))
		q.SetField(field)
		return q, nil
	}
	if n, ok := numeric(v); ok {
		q := bleve.NewNumericRangeInclusiveQuery(&n, &n, ptr(true), ptr(true))
		q.SetField(field)
		return q, nil
	}
	return nil, fmt.Errorf("unsupported operand %T for %s", v, field)
}

func compare(field string, op plan.Op, v any) (bq.Query, error) {
	inclusive := op == plan.OpGte || op == plan.OpLte
	lower := op == plan.OpGt || op == plan.OpGte

	if t, ok := v.(time.Time); ok {
		var q *bq.DateRangeQuery
		if lower {
			q = bleve.NewDateRangeInclusiveQuery(t, time.Time{}, ptr(inclusive), nil)
		} else {
			q = bleve.NewDateRangeInclusiveQuery(time.Time{}, t, nil, ptr(inclusive))
		}
		q.SetField(field)
		return q, nil
	}

	n, ok := numeric(v)
	if !ok {
		return nil, fmt.Errorf("unsupported operand %T for %s", v, field)
	}
	var q *bq.NumericRangeQuery
	if lower {
		q = bleve.NewNumericRangeInclusiveQuery(&n, nil, ptr(inclusive), nil)
	} else {
		q = bleve.NewNumericRangeInclusiveQuery(nil, &n, nil, ptr(inclusive))
	}
	q.SetField(field)
	return q, nil
}

func between(field string, lo, hi any) (bq.Query, error) {
	if a, ok := lo.(time.Time); ok {
		b, ok := hi.(time.Time)
		if !ok {
			return nil, fmt.Errorf("mixed operands for %s", field)
		}
		q := bleve.NewDateRangeInclusiveQuery(a, b, ptr(true), ptr(true))
		q.SetField(field)
		return q, nil
	}

	a, aok := numeric(lo)
	b, bok := numeric(hi)
	if !aok || !bok {
		return nil, fmt.Errorf("unsupported operands for %s", field)
	}
	q := bleve.NewNumericRangeInclusiveQuery(&a, &b, ptr(true), ptr(true))
	q.SetField(field)
	return q, nil
}

var dateFields = map[string]bool{
	plan.FieldCreatedAt:           true,
	plan.FieldUpdatedAt:           true,
	plan.FieldLastCommentedAt:     true,
	plan.FieldLastCommentBumpedAt: true,
	plan.FieldLastNotedAt:         true,
	plan.FieldArtcommUpdatedAt:    true,
	plan.FieldModqueueAt:          true,
}

// sortOrder maps sort keys to bleve sort fields. Directives ordered by an
// external id list or at random are sorted after retrieval instead.
func sortOrder(keys []plan.SortKey) search.SortOrder {
	order := make(search.SortOrder, 0, len(keys))
	for _, k := range keys {
		sf := &search.SortField{
			Field: k.Field,
			Desc:  k.Desc,
			Type:  search.SortFieldAsNumber,
		}
		if dateFields[k.Field] {
			sf.Type = search.SortFieldAsDate
		}
		switch k.Missing {
		case plan.MissingFirst:
			sf.Missing = search.SortFieldMissingFirst
		default:
			sf.Missing = search.SortFieldMissingLast
		}
		order = append(order, sf)
	}
	return order
}
