package memstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/courier-analytics/api/internal/store"
)

func matchAll(row store.Row, filters []store.Filter) (bool, error) {
	for _, f := range filters {
		ok, err := match(row, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func match(row store.Row, f store.Filter) (bool, error) {
	got := row[f.Column]
	switch f.Op {
	case store.OpIsNull:
		return got == nil, nil
	case store.OpNotNull:
		return got != nil, nil
	case store.OpIn:
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false, fmt.Errorf("memstore: filter %s: %w", f.Column, err)
		}
		values, _ := want.([]any)
		for _, v := range values {
			if cmp, ok := compare(got, v); ok && cmp == 0 {
				return true, nil
			}
		}
		return false, nil
	case store.OpILike:
		s, ok := got.(string)
		pattern, pok := f.Value.(string)
		if !ok || !pok {
			return false, nil
		}
		return likeRegexp(pattern).MatchString(s), nil
	}

	if got == nil {
		return false, nil
	}
	want, err := normalizeValue(f.Value)
	if err != nil {
		return false, fmt.Errorf("memstore: filter %s: %w", f.Column, err)
	}
	cmp, ok := compare(got, want)
	if !ok {
		return false, nil
	}
	switch f.Op {
	case store.OpEq:
		return cmp == 0, nil
	case store.OpNeq:
		return cmp != 0, nil
	case store.OpGt:
		return cmp > 0, nil
	case store.OpGte:
		return cmp >= 0, nil
	case store.OpLt:
		return cmp < 0, nil
	case store.OpLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("memstore: unsupported operator %q", f.Op)
	}
}

// compare orders two normalized values of the same JSON kind.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
