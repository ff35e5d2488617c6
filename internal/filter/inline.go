package filter

import (
	"strconv"
	"strings"
)

// InlineSpec is the parsed `inline` query parameter: either a concrete list
// of attribute names, the wildcard "*" (all nested collections), or an
// integer depth override of the default.
type InlineSpec struct {
	Names []string
	All   bool
	Depth int
}

// DefaultInlineDepth is used when inline is requested but no depth is given.
const DefaultInlineDepth = 1

// ParseInline parses the `inline` query parameter value.
func ParseInline(value string) InlineSpec {
	if value == "" {
		return InlineSpec{}
	}

	if value == "*" {
		return InlineSpec{All: true, Depth: DefaultInlineDepth}
	}

	if depth, err := strconv.Atoi(value); err == nil && depth >= 0 {
		return InlineSpec{All: true, Depth: depth}
	}

	names := make([]string, 0)

	for _, n := range strings.Split(value, ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			names = append(names, n)
		}
	}

	return InlineSpec{Names: names, Depth: DefaultInlineDepth}
}

// Wants reports whether name should be inlined per this spec. Unrecognized
// inline names are silently ignored by the caller — Wants simply returns
// false for anything not requested.
func (s InlineSpec) Wants(name string) bool {
	if s.All {
		return true
	}

	for _, n := range s.Names {
		if n == name {
			return true
		}
	}

	return false
}

// Nested returns the InlineSpec to apply one level deeper, decrementing
// depth; once depth reaches zero, nested expansion stops.
func (s InlineSpec) Nested() InlineSpec {
	if s.Depth <= 0 {
		return InlineSpec{}
	}

	return InlineSpec{Names: s.Names, All: s.All, Depth: s.Depth - 1}
}

// Active reports whether any inlining was requested at all.
func (s InlineSpec) Active() bool {
	return s.All || len(s.Names) > 0
}
