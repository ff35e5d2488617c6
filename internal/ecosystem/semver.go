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

// Package ecosystem holds the pieces every per-ecosystem adapter
// (internal/ecosystem/{node,python,maven,nuget,oci,mcp}) shares: default-
// version selection by semver (spec.md §4.5) and name-candidate resolution
// against a name index (spec.md §4.3's two-phase evaluation).
package ecosystem

import (
	"strconv"
	"strings"
)

// HighestSemver returns the highest version in versions by semver precedence
// (numeric major.minor.patch, pre-release segments sort before a release of
// the same numeric triple); a dotted segment that isn't a number counts as 0.
// Used as the default-version rule for ecosystems with no adapter-native
// "latest" pointer (Maven, NuGet); Node and Python use it only when their
// registry's own latest marker is absent.
func HighestSemver(versions []string) string {
	if len(versions) == 0 {
		return ""
	}

	best := versions[0]

	for _, v := range versions[1:] {
		if compareSemver(v, best) > 0 {
			best = v
		}
	}

	return best
}

// compareSemver returns -1, 0, or 1 for a compared to b.
func compareSemver(a, b string) int {
	aCore, aPre := splitPrerelease(a)
	bCore, bPre := splitPrerelease(b)

	aParts := strings.Split(aCore, ".")
	bParts := strings.Split(bCore, ".")

	for i := 0; i < len(aParts) || i < len(bParts); i++ {
		var an, bn int

		if i < len(aParts) {
			an, _ = strconv.Atoi(aParts[i])
		}

		if i < len(bParts) {
			bn, _ = strconv.Atoi(bParts[i])
		}

		if an != bn {
			if an < bn {
				return -1
			}

			return 1
		}
	}

	// Equal numeric core: a pre-release (e.g. "-rc1") sorts below the
	// release it precedes; between two pre-releases, compare lexically.
	switch {
	case aPre == "" && bPre == "":
		return 0
	case aPre == "":
		return 1
	case bPre == "":
		return -1
	default:
		return strings.Compare(aPre, bPre)
	}
}

func splitPrerelease(v string) (core, pre string) {
	v = strings.TrimPrefix(v, "v")

	if i := strings.IndexAny(v, "-+"); i >= 0 {
		return v[:i], v[i+1:]
	}

	return v, ""
}
