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

package bridge

import (
	"sort"

	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/internal/xrid"
)

// Model returns the union of every adapter's /model contribution. Each
// adapter declares exactly one group-type (enforced at Handshake); the
// merge is therefore a plain union with no key collisions possible, since a
// collision there is exactly the duplicate-group-type condition Handshake
// already rejected at startup.
func (b *Bridge) Model() xregistry.ModelDocument {
	b.mu.RLock()
	defer b.mu.RUnlock()

	merged := xregistry.ModelDocument{GroupTypes: map[string]xregistry.GroupTypeModel{}}

	for gt, reg := range b.routes {
		merged.GroupTypes[gt] = reg.model.GroupTypes[gt]
	}

	return merged
}

// Capabilities returns the bridge's own composite capability document: a
// boolean flag holds across the bridge only if every adapter holds it
// (Pagination/Filtering/Sort/Inline/Mutable all AND across adapters — a
// client can't rely on a capability that only some adapters honor), while
// SpecVersions/APIs/Flags are unioned (any value any adapter supports is a
// value the bridge can pass through to the adapter that owns it).
func (b *Bridge) Capabilities() xregistry.Capabilities {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.adapters) == 0 {
		return xregistry.Capabilities{}
	}

	merged := xregistry.Capabilities{
		Pagination: true,
		Filtering:  true,
		Sort:       true,
		Inline:     true,
		Mutable:    true,
	}

	specVersions := map[string]struct{}{}
	apis := map[string]struct{}{}
	flags := map[string]struct{}{}

	for _, reg := range b.adapters {
		c := reg.capabilities

		merged.Pagination = merged.Pagination && c.Pagination
		merged.Filtering = merged.Filtering && c.Filtering
		merged.Sort = merged.Sort && c.Sort
		merged.Inline = merged.Inline && c.Inline
		merged.Mutable = merged.Mutable && c.Mutable

		for _, v := range c.SpecVersions {
			specVersions[v] = struct{}{}
		}

		for _, v := range c.APIs {
			apis[v] = struct{}{}
		}

		for _, v := range c.Flags {
			flags[v] = struct{}{}
		}
	}

	merged.SpecVersions = setToSortedSlice(specVersions)
	merged.APIs = setToSortedSlice(apis)
	merged.Flags = setToSortedSlice(flags)

	return merged
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}

	sort.Strings(out)

	return out
}

// Root builds the bridge's own registry root document: its singleton
// registryid plus one GroupRef per routed group-type, pointed at the
// bridge's own base URL rather than any adapter's.
func (b *Bridge) Root(baseURL string) (*xrid.Registry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	reg, err := xrid.NewRegistry(xrid.Config{ID: b.registryID, BaseURL: baseURL})
	if err != nil {
		return nil, err
	}

	for gt := range b.routes {
		reg.GroupTypes[gt] = xrid.GroupRef{URL: baseURL + "/" + gt, Count: 1}
	}

	return reg, nil
}
