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

// Package nameindex maintains an in-memory, trigram-searchable index of an
// adapter's upstream name catalog (npm _all, PyPI simple index, Maven
// Central search, NuGet catalog, OCI _catalog, MCP provider list). Refresh
// builds a new snapshot in the background and replaces the live one with a
// single atomic pointer swap.
package nameindex

import (
	"sort"
	"strings"
	"sync/atomic"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/xregistry-bridge/bridge/pkg/logger"
)

// largeCatalogThreshold is the entry count above which a cuckoo-filter
// existence pre-check is built ahead of the trigram scan (spec §4.8).
const largeCatalogThreshold = 100000

// Match is a scored hit returned by Search, carrying the raw (non-
// normalized) name alongside the match strength.
type Match struct {
	RawName string
	Score   int
}

// snapshot is the immutable point-in-time index; Index swaps an atomic
// pointer to one of these on refresh.
type snapshot struct {
	trigramMap map[string]map[string]struct{} // trigram -> normalized names
	rawByNorm  map[string]string              // normalized name -> raw name
	sortedNorm []string                       // normalized names, sorted, for O(log n) pagination iteration
	exists     *cuckoo.Filter                 // nil for small catalogs
}

func emptySnapshot() *snapshot {
	return &snapshot{
		trigramMap: make(map[string]map[string]struct{}),
		rawByNorm:  make(map[string]string),
	}
}

// Index is the adapter-owned name index. The background refresher is the
// sole writer; readers only ever load the current snapshot pointer.
type Index struct {
	current atomic.Pointer[snapshot]
	log     logger.Logger
}

// New constructs an empty Index.
func New(log logger.Logger) *Index {
	if log == nil {
		log = logger.NewTestLogger()
	}

	idx := &Index{log: log}
	idx.current.Store(emptySnapshot())

	return idx
}

// Builder accumulates names for one refresh cycle; call Add for every name
// streamed from the upstream bulk catalog, then Build to produce the
// snapshot and Replace to swap it in.
type Builder struct {
	names []string
}

// NewBuilder starts a fresh refresh cycle.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add stages a raw upstream name for inclusion in the next snapshot.
func (b *Builder) Add(rawName string) {
	raw := strings.TrimSpace(rawName)
	if raw == "" {
		return
	}

	b.names = append(b.names, raw)
}

// Build compiles the staged names into an immutable snapshot: a trigram
// postings map, a sorted normalized-name slice for lexicographic pagination,
// and — for catalogs over largeCatalogThreshold — a cuckoo filter so a
// negative existence check never pays for a trigram scan.
func (b *Builder) Build() *snapshot {
	s := emptySnapshot()

	for _, raw := range b.names {
		norm := normalize(raw)
		if norm == "" {
			continue
		}

		if _, dup := s.rawByNorm[norm]; dup {
			continue
		}

		s.rawByNorm[norm] = raw

		for trigram := range generateTrigrams(norm) {
			set := s.trigramMap[trigram]
			if set == nil {
				set = make(map[string]struct{})
				s.trigramMap[trigram] = set
			}

			set[norm] = struct{}{}
		}
	}

	s.sortedNorm = make([]string, 0, len(s.rawByNorm))
	for norm := range s.rawByNorm {
		s.sortedNorm = append(s.sortedNorm, norm)
	}

	sort.Strings(s.sortedNorm)

	if len(s.sortedNorm) > largeCatalogThreshold {
		cf := cuckoo.NewFilter(uint(nextPowerOfTwo(len(s.sortedNorm) * 2)))
		for _, norm := range s.sortedNorm {
			cf.Insert([]byte(norm))
		}

		s.exists = cf
	}

	return s
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}

	return p
}

// Replace atomically swaps in a newly built snapshot; the previous snapshot
// remains valid for any reader that already loaded it (value semantics, no
// in-place mutation).
func (idx *Index) Replace(s *snapshot) {
	idx.current.Store(s)
}

// Refresh builds a snapshot from builder and swaps it in with one atomic
// pointer store; the index being refreshed continues serving the old
// snapshot to in-flight requests until the swap completes.
func (idx *Index) Refresh(builder *Builder) {
	idx.Replace(builder.Build())
}

// Exists reports whether name is present in the current snapshot, consulting
// the cuckoo filter first when one was built (large catalogs) to short-
// circuit negative lookups before touching the trigram map.
func (idx *Index) Exists(name string) bool {
	s := idx.current.Load()
	norm := normalize(name)

	if s.exists != nil && !s.exists.Lookup([]byte(norm)) {
		return false
	}

	_, ok := s.rawByNorm[norm]

	return ok
}

// RawName returns the raw (original-casing) upstream name for a normalized
// name, if present.
func (idx *Index) RawName(normalizedName string) (string, bool) {
	s := idx.current.Load()
	raw, ok := s.rawByNorm[normalizedName]

	return raw, ok
}

// Search performs a trigram similarity search with a substring fallback for
// short queries, mirroring the teacher's trigram index behavior.
func (idx *Index) Search(query string) []Match {
	s := idx.current.Load()

	normalized := normalize(query)
	if normalized == "" {
		return nil
	}

	score := make(map[string]int, len(s.rawByNorm))

	for trigram := range generateTrigrams(normalized) {
		for norm := range s.trigramMap[trigram] {
			score[norm]++
		}
	}

	for norm := range s.rawByNorm {
		if strings.Contains(norm, normalized) {
			score[norm]++
		}
	}

	if len(score) == 0 {
		return nil
	}

	type ranked struct {
		norm  string
		score int
	}

	results := make([]ranked, 0, len(score))
	for norm, sc := range score {
		results = append(results, ranked{norm: norm, score: sc})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return results[i].norm < results[j].norm
		}

		return results[i].score > results[j].score
	})

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{RawName: s.rawByNorm[r.norm], Score: r.score})
	}

	return matches
}

// Prefix returns, in lexicographic order, every raw name whose normalized
// form begins with prefix — an O(log n) binary search into the sorted
// index followed by a linear scan of the matching range.
func (idx *Index) Prefix(prefix string) []string {
	s := idx.current.Load()
	norm := normalize(prefix)

	start := sort.SearchStrings(s.sortedNorm, norm)

	names := make([]string, 0)

	for i := start; i < len(s.sortedNorm); i++ {
		if !strings.HasPrefix(s.sortedNorm[i], norm) {
			break
		}

		names = append(names, s.rawByNorm[s.sortedNorm[i]])
	}

	return names
}

// All returns every raw name in lexicographic (normalized-name) order, for
// unconstrained iteration once a request has already passed the mandatory
// name-constraint check.
func (idx *Index) All() []string {
	s := idx.current.Load()

	names := make([]string, 0, len(s.sortedNorm))
	for _, norm := range s.sortedNorm {
		names = append(names, s.rawByNorm[norm])
	}

	return names
}

// Size reports the number of distinct names in the current snapshot.
func (idx *Index) Size() int {
	return len(idx.current.Load().sortedNorm)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize exposes the exact normalization the index applies to every
// inserted and looked-up name, so a caller resolving a filter predicate's
// literal (e.g. an ecosystem adapter turning `name=left-pad` into a RawName
// lookup) matches the index's own keying without reimplementing it.
func Normalize(name string) string {
	return normalize(name)
}

func generateTrigrams(text string) map[string]struct{} {
	trigrams := make(map[string]struct{})

	if text == "" {
		return trigrams
	}

	if len(text) < 3 {
		trigrams[text] = struct{}{}
		return trigrams
	}

	for i := 0; i <= len(text)-3; i++ {
		trigrams[text[i:i+3]] = struct{}{}
	}

	for _, token := range strings.Fields(text) {
		if len(token) < 3 {
			trigrams[token] = struct{}{}
			continue
		}

		for i := 0; i <= len(token)-3; i++ {
			trigrams[token[i:i+3]] = struct{}{}
		}
	}

	return trigrams
}
