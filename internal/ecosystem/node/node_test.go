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

package node

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xregistry-bridge/bridge/internal/cache"
	"github.com/xregistry-bridge/bridge/internal/fetch"
	"github.com/xregistry-bridge/bridge/internal/filter"
	"github.com/xregistry-bridge/bridge/internal/nameindex"
	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/internal/xrid"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const leftPadDoc = `{
	"name": "left-pad",
	"description": "String left pad",
	"homepage": "https://github.com/left-pad/left-pad",
	"license": "MIT",
	"dist-tags": {"latest": "1.3.0"},
	"versions": {
		"1.2.0": {"description": "String left pad", "license": "MIT", "dist": {"tarball": "https://registry.npmjs.org/left-pad/-/left-pad-1.2.0.tgz"}},
		"1.3.0": {"description": "String left pad", "license": "MIT", "dist": {"tarball": "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz"}, "dependencies": {"foo": "^1.0.0"}}
	}
}`

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a, err := New(Config{
		RegistryURL: srv.URL,
		Cache:       cache.DefaultConfig(),
		Fetch:       fetch.DefaultConfig(),
		Logger:      logger.NewTestLogger(),
	})
	require.NoError(t, err)

	builder := nameindex.NewBuilder()
	builder.Add("left-pad")
	a.index.Refresh(builder)

	return a
}

func nameFilter(t *testing.T, name string) xregistry.Flags {
	t.Helper()

	exprs, err := filter.ParseFilters([]string{"name=" + name})
	require.NoError(t, err)

	return xregistry.Flags{Request: filter.Request{Filters: exprs}}
}

func TestAdapterResourceReturnsDefaultVersionPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(leftPadDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Resource(context.Background(), groupID, "left-pad", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "left-pad", m["id"])
	assert.Equal(t, "MIT", m["license"])
	assert.Equal(t, "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz", m["downloadurl"])
}

func TestAdapterResourceNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing-pkg", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Resource(context.Background(), groupID, "missing-pkg", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
}

func TestAdapterResourceUnknownGroupIs404(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	_, perr := a.Resource(context.Background(), "not-npmjs.org", "left-pad", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
}

func TestAdapterResourcesRequiresNameCandidate(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	items, perr := a.Resources(context.Background(), groupID, xregistry.Flags{})
	require.Nil(t, perr)
	assert.Empty(t, items)
}

func TestAdapterResourcesWithNameFilter(t *testing.T) {
	var hits int

	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(leftPadDoc))
	})

	a := newTestAdapter(t, mux)

	items, perr := a.Resources(context.Background(), groupID, nameFilter(t, "left-pad"))
	require.Nil(t, perr)
	require.Len(t, items, 1)
	assert.Equal(t, "left-pad", items[0].ItemID())
	assert.Equal(t, 1, hits)
}

func TestAdapterVersionsCollectionMarksDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(leftPadDoc))
	})

	a := newTestAdapter(t, mux)

	items, perr := a.Versions(context.Background(), groupID, "left-pad", xregistry.Flags{})
	require.Nil(t, perr)
	require.Len(t, items, 2)

	found := map[string]bool{}
	for _, item := range items {
		m, ok := item.(xregistry.Entity).Value.(map[string]interface{})
		require.True(t, ok)
		found[item.ItemID()] = m["isdefault"].(bool)
	}

	assert.False(t, found["1.2.0"])
	assert.True(t, found["1.3.0"])
}

func TestAdapterVersionUnknownIs404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(leftPadDoc))
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Version(context.Background(), groupID, "left-pad", "9.9.9", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
}

func TestAdapterMetaPointsToDefaultVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(leftPadDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Meta(context.Background(), groupID, "left-pad", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(*xrid.Meta)
	require.True(t, ok)
	assert.Equal(t, "1.3.0", m.DefaultVersionID)
}

func TestAdapterGroupsSingleton(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	items, perr := a.Groups(context.Background(), xregistry.Flags{})
	require.Nil(t, perr)
	require.Len(t, items, 1)
	assert.Equal(t, groupID, items[0].ItemID())
}

func TestAdapterModelDeclaresSingleGroupType(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	model := a.Model()
	gt, ok := model.GroupTypes[groupType]
	require.True(t, ok)
	assert.Equal(t, resourceType, gt.ResourceTypes[0].Plural)
}
