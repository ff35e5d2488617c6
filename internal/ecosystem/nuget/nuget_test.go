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

package nuget

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

const newtonsoftDoc = `{
	"items": [
		{
			"items": [
				{
					"catalogEntry": {
						"version": "13.0.2",
						"description": "Json.NET is a popular high-performance JSON framework for .NET",
						"authors": "James Newton-King",
						"iconUrl": "https://example.org/icon.png",
						"projectUrl": "https://www.newtonsoft.com/json",
						"listed": true
					}
				},
				{
					"catalogEntry": {
						"version": "13.0.1",
						"description": "previous release",
						"authors": "James Newton-King",
						"projectUrl": "https://www.newtonsoft.com/json",
						"listed": true
					}
				}
			]
		}
	]
}`

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a, err := New(Config{
		RegistrationURL: srv.URL,
		Cache:           cache.DefaultConfig(),
		Fetch:           fetch.DefaultConfig(),
		Logger:          logger.NewTestLogger(),
	})
	require.NoError(t, err)

	builder := nameindex.NewBuilder()
	builder.Add("Newtonsoft.Json")
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
	mux.HandleFunc("/newtonsoft.json/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newtonsoftDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Resource(context.Background(), groupID, "Newtonsoft.Json", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Newtonsoft.Json", m["id"])
	assert.Equal(t, "13.0.2", m["defaultversion"])
	assert.Equal(t, "James Newton-King", m["authors"])
}

func TestAdapterResourceIDIsCaseInsensitiveOnTheWire(t *testing.T) {
	var requestedPath string

	mux := http.NewServeMux()
	mux.HandleFunc("/newtonsoft.json/index.json", func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newtonsoftDoc))
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Resource(context.Background(), groupID, "Newtonsoft.Json", xregistry.Flags{})
	require.Nil(t, perr)
	assert.Equal(t, "/newtonsoft.json/index.json", requestedPath)
}

func TestAdapterResourceNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing.pkg/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Resource(context.Background(), groupID, "missing.pkg", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
}

func TestAdapterResourceUnknownGroupIs404(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	_, perr := a.Resource(context.Background(), "not-nuget.org", "Newtonsoft.Json", xregistry.Flags{})
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
	mux := http.NewServeMux()
	mux.HandleFunc("/newtonsoft.json/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newtonsoftDoc))
	})

	a := newTestAdapter(t, mux)

	items, perr := a.Resources(context.Background(), groupID, nameFilter(t, "Newtonsoft.Json"))
	require.Nil(t, perr)
	require.Len(t, items, 1)
	assert.Equal(t, "Newtonsoft.Json", items[0].ItemID())
}

func TestAdapterVersionsCollectionMarksDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/newtonsoft.json/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newtonsoftDoc))
	})

	a := newTestAdapter(t, mux)

	items, perr := a.Versions(context.Background(), groupID, "Newtonsoft.Json", xregistry.Flags{})
	require.Nil(t, perr)
	require.Len(t, items, 2)

	found := map[string]bool{}
	for _, item := range items {
		m, ok := item.(xregistry.Entity).Value.(map[string]interface{})
		require.True(t, ok)
		found[item.ItemID()] = m["isdefault"].(bool)
	}

	assert.False(t, found["13.0.1"])
	assert.True(t, found["13.0.2"])
}

func TestAdapterVersionUnknownIs404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/newtonsoft.json/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newtonsoftDoc))
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Version(context.Background(), groupID, "Newtonsoft.Json", "9.9.9", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
}

func TestAdapterMetaPointsToDefaultVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/newtonsoft.json/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newtonsoftDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Meta(context.Background(), groupID, "Newtonsoft.Json", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(*xrid.Meta)
	require.True(t, ok)
	assert.Equal(t, "13.0.2", m.DefaultVersionID)
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

func TestAdapterDefaultVersionSkipsUnlistedWhenAListedVersionExists(t *testing.T) {
	unlistedDoc := `{
		"items": [
			{
				"items": [
					{"catalogEntry": {"version": "2.0.0", "listed": false}},
					{"catalogEntry": {"version": "1.0.0", "listed": true}}
				]
			}
		]
	}`

	mux := http.NewServeMux()
	mux.HandleFunc("/pkg.a/index.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(unlistedDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Resource(context.Background(), groupID, "pkg.a", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1.0.0", m["defaultversion"])
}
