package recordstore

import (
	"fmt"
	"sort"
	"strconv"
)

// EvalQuery applies a query's filters, sort, and cursor to a candidate set
// of records already narrowed to the right type. It backs the in-memory
// store and any backend that has to evaluate queries client-side.
func EvalQuery(candidates []Record, q Query) ([]Record, string, error) {
	matched := make([]Record, 0, len(candidates))
	for _, rec := range candidates {
		if rec.Type == q.Type && matchesFilters(rec, q.Filters) {
			matched = append(matched, rec)
		}
	}

	// Stable order even without an explicit sort so cursors are meaningful
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Key < matched[j].Key
	})
	if q.Sort != nil {
		field, desc := q.Sort.Field, q.Sort.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			cmp := compareAttr(matched[i].Attrs[field], matched[j].Attrs[field])
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	return paginate(matched, q.Limit, q.Cursor)
}

// matchesFilters applies every equality filter to the record's attribute bag.
func matchesFilters(rec Record, filters []Filter) bool {
	for _, f := range filters {
		v, ok := rec.Attrs[f.Field]
		if !ok {
			return false
		}
		if compareAttr(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

// compareAttr orders two attribute values. Numbers compare numerically,
// everything else compares by its string form (RFC 3339 timestamps order
// correctly as strings).
func compareAttr(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func paginate(records []Record, limit int, cursor string) ([]Record, string, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("%w: bad cursor %q", ErrInvalid, cursor)
		}
		offset = n
	}

	if offset >= len(records) {
		return []Record{}, "", nil
	}
	records = records[offset:]

	next := ""
	if limit > 0 && len(records) > limit {
		records = records[:limit]
		next = strconv.Itoa(offset + limit)
	}
	return records, next, nil
}
