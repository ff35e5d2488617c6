/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ecosystem

import (
	"strings"

	"github.com/xregistry-bridge/bridge/internal/filter"
	"github.com/xregistry-bridge/bridge/internal/nameindex"
)

// NameCandidates resolves the name-index phase of spec.md §4.3's two-phase
// evaluation: given the request's filter expressions, it returns the union,
// across every OR-branch's name predicate, of raw upstream names the index
// phase resolves for it. An = predicate resolves cheaply (exact match, or
// trigram/substring search when it carries a wildcard); any other operator
// on name can't narrow the index, so that branch contributes every indexed
// name. The attribute phase (evaluating
// whatever predicates remain once each candidate's full entity is loaded)
// happens afterward in filter.ApplyCollection.
//
// Callers MUST call filter.AnyConstrainsName first — NameCandidates assumes
// at least one name predicate exists and returns nil for request surfaces
// with none.
func NameCandidates(idx *nameindex.Index, exprs []filter.Expression) []string {
	seen := make(map[string]struct{})

	var names []string

	add := func(raw string) {
		if _, ok := seen[raw]; ok {
			return
		}

		seen[raw] = struct{}{}
		names = append(names, raw)
	}

	for _, expr := range exprs {
		for _, p := range expr {
			if p.Attribute != "name" || p.IsNull {
				continue
			}

			hasWildcard := strings.Contains(p.Literal, "*")

			switch {
			case p.Op == filter.OpEqual && !hasWildcard:
				if raw, ok := idx.RawName(nameindex.Normalize(p.Literal)); ok {
					add(raw)
				}
			case p.Op == filter.OpEqual && hasWildcard:
				for _, m := range idx.Search(strings.Trim(p.Literal, "*")) {
					add(m.RawName)
				}
			default:
				// !=, <> (with or without a wildcard) and <, <=, >, >= can't
				// narrow the index phase (they describe everything the literal isn't,
				// or an ordering the index doesn't keep) — every name is a
				// candidate for this branch, filtered out in the attribute
				// phase instead.
				for _, raw := range idx.All() {
					add(raw)
				}
			}
		}
	}

	return names
}
