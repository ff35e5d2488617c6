package filter

import (
	"sort"
	"strings"
)

// SortSpec is a parsed `sort` query parameter: attribute[=asc|=desc].
type SortSpec struct {
	Attribute  string
	Descending bool
}

// ParseSort parses a `sort` query parameter value. An empty value yields a
// zero SortSpec (no explicit sort key; tie-break by xid still applies).
func ParseSort(value string) (SortSpec, error) {
	if value == "" {
		return SortSpec{}, nil
	}

	attr, dir, hasDir := strings.Cut(value, "=")
	attr = strings.TrimSpace(attr)

	if attr == "" {
		return SortSpec{}, &ParseError{Token: value, Msg: "missing sort attribute"}
	}

	spec := SortSpec{Attribute: attr}

	if hasDir {
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "asc", "":
			spec.Descending = false
		case "desc":
			spec.Descending = true
		default:
			return SortSpec{}, &ParseError{Token: value, Msg: "unrecognized sort direction"}
		}
	}

	return spec, nil
}

// SortItems orders items in place by spec, comparing via get (resolving
// attribute to a string value) and breaking ties by xidOf ascending. Sort is
// applied after filtering and before pagination, per spec.
func SortItems[T any](items []T, spec SortSpec, get func(item T, attribute string) (string, bool), xidOf func(item T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		if spec.Attribute != "" {
			vi, iok := get(items[i], spec.Attribute)
			vj, jok := get(items[j], spec.Attribute)

			switch {
			case iok && jok && vi != vj:
				less := compareLess(vi, vj)
				if spec.Descending {
					return !less
				}

				return less
			case iok != jok:
				// Present sorts before absent, regardless of direction.
				return iok
			}
		}

		return xidOf(items[i]) < xidOf(items[j])
	})
}

// compareLess applies the shared numeric-if-both-parse, else
// case-insensitive string comparison rule for a strict less-than test.
func compareLess(a, b string) bool {
	return compare(a, b, OpLess)
}
