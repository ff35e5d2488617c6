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

package maven

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
	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/internal/xrid"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const guavaSearchDoc = `{
	"response": {
		"docs": [
			{"g": "com.google.guava", "a": "guava", "v": "32.1.3-jre", "p": "jar", "timestamp": 1699000000000},
			{"g": "com.google.guava", "a": "guava", "v": "33.0.0-jre", "p": "jar", "timestamp": 1700000000000}
		]
	}
}`

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a, err := New(Config{
		SearchURL: srv.URL,
		Cache:     cache.DefaultConfig(),
		Fetch:     fetch.DefaultConfig(),
		Logger:    logger.NewTestLogger(),
	})
	require.NoError(t, err)

	a.RefreshIndex(context.Background(), []string{"com.google.guava/guava"})

	return a
}

func nameFilter(t *testing.T, name string) xregistry.Flags {
	t.Helper()

	exprs, err := filter.ParseFilters([]string{"name=" + name})
	require.NoError(t, err)

	return xregistry.Flags{Request: filter.Request{Filters: exprs}}
}

func TestParseCoordinateRequiresBothParts(t *testing.T) {
	_, err := parseCoordinate("com.google.guava")
	assert.Error(t, err)

	c, err := parseCoordinate("com.google.guava/guava")
	require.NoError(t, err)
	assert.Equal(t, "com.google.guava", c.GroupID)
	assert.Equal(t, "guava", c.ArtifactID)
}

func TestAdapterResourceReturnsDefaultVersionPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(guavaSearchDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Resource(context.Background(), groupID, "com.google.guava/guava", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "com.google.guava/guava", m["id"])
	assert.Equal(t, "33.0.0-jre", m["defaultversion"])
}

func TestAdapterResourceMalformedIDIsBadRequest(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	_, perr := a.Resource(context.Background(), groupID, "not-a-coordinate", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
}

func TestAdapterResourceNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"docs":[]}}`))
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Resource(context.Background(), groupID, "com.example/missing", xregistry.Flags{})
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
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(guavaSearchDoc))
	})

	a := newTestAdapter(t, mux)

	items, perr := a.Resources(context.Background(), groupID, nameFilter(t, "com.google.guava/guava"))
	require.Nil(t, perr)
	require.Len(t, items, 1)
	assert.Equal(t, "com.google.guava/guava", items[0].ItemID())
}

func TestAdapterVersionsCollectionMarksDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(guavaSearchDoc))
	})

	a := newTestAdapter(t, mux)

	items, perr := a.Versions(context.Background(), groupID, "com.google.guava/guava", xregistry.Flags{})
	require.Nil(t, perr)
	require.Len(t, items, 2)

	found := map[string]bool{}
	for _, item := range items {
		m, ok := item.(xregistry.Entity).Value.(map[string]interface{})
		require.True(t, ok)
		found[item.ItemID()] = m["isdefault"].(bool)
	}

	assert.False(t, found["32.1.3-jre"])
	assert.True(t, found["33.0.0-jre"])
}

func TestAdapterVersionUnknownIs404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(guavaSearchDoc))
	})

	a := newTestAdapter(t, mux)

	_, perr := a.Version(context.Background(), groupID, "com.google.guava/guava", "9.9.9", xregistry.Flags{})
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
}

func TestAdapterMetaPointsToDefaultVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(guavaSearchDoc))
	})

	a := newTestAdapter(t, mux)

	doc, perr := a.Meta(context.Background(), groupID, "com.google.guava/guava", xregistry.Flags{})
	require.Nil(t, perr)

	m, ok := doc.(*xrid.Meta)
	require.True(t, ok)
	assert.Equal(t, "33.0.0-jre", m.DefaultVersionID)
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
