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
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xregistry-bridge/bridge/pkg/logger"
)

// fakeAdapter is a minimal stand-in for an ecosystem adapter's HTTP surface:
// just enough of /model, /capabilities, /health, and one domain route to
// exercise the bridge's handshake, merge, health, and dispatch logic.
func fakeAdapter(t *testing.T, groupType string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"grouptypes":{"` + groupType + `":{"singular":"x","plural":"` + groupType + `","resourcetypes":[]}}}`))
	})

	mux.HandleFunc("/capabilities", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pagination":true,"filtering":true,"sort":true,"inline":true,"mutable":false,"specversions":["1.0-rc2"],"apis":["/` + groupType + `"]}`))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/"+groupType+"/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"singleton"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func newTestBridge(t *testing.T, groupTypes ...string) *Bridge {
	t.Helper()

	var adapters []AdapterDescriptor

	for _, gt := range groupTypes {
		srv := fakeAdapter(t, gt)
		adapters = append(adapters, AdapterDescriptor{Name: gt, BaseURL: srv.URL})
	}

	b, err := New(Config{Adapters: adapters}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, b.Handshake(context.Background()))

	return b
}

func TestHandshakeBuildsRoutingTable(t *testing.T) {
	b := newTestBridge(t, "noderegistries", "pypiregistries")

	assert.True(t, b.Ready())
	assert.Len(t, b.routes, 2)
	assert.Contains(t, b.routes, "noderegistries")
	assert.Contains(t, b.routes, "pypiregistries")
}

func TestHandshakeRejectsDuplicateGroupType(t *testing.T) {
	srv1 := fakeAdapter(t, "noderegistries")
	srv2 := fakeAdapter(t, "noderegistries")

	b, err := New(Config{
		Adapters: []AdapterDescriptor{
			{Name: "a", BaseURL: srv1.URL},
			{Name: "b", BaseURL: srv2.URL},
		},
	}, logger.NewTestLogger())
	require.NoError(t, err)

	err = b.Handshake(context.Background())
	require.Error(t, err)
	assert.False(t, b.Ready())
}

func TestHandshakeRejectsUnreachableAdapter(t *testing.T) {
	b, err := New(Config{
		Adapters: []AdapterDescriptor{
			{Name: "ghost", BaseURL: "http://127.0.0.1:1"},
		},
		HandshakeTimeout: 100 * 1e6, // 100ms, keep the test fast
	}, logger.NewTestLogger())
	require.NoError(t, err)

	require.Error(t, b.Handshake(context.Background()))
	assert.False(t, b.Ready())
}

func TestHandshakeRejectsEmptyConfig(t *testing.T) {
	b, err := New(Config{}, logger.NewTestLogger())
	require.NoError(t, err)

	require.Error(t, b.Handshake(context.Background()))
}

func TestModelIsUnionOfAdapters(t *testing.T) {
	b := newTestBridge(t, "noderegistries", "pypiregistries")

	model := b.Model()
	assert.Contains(t, model.GroupTypes, "noderegistries")
	assert.Contains(t, model.GroupTypes, "pypiregistries")
}

func TestCapabilitiesAndsBooleansUnionsLists(t *testing.T) {
	b := newTestBridge(t, "noderegistries", "pypiregistries")

	caps := b.Capabilities()
	assert.True(t, caps.Pagination)
	assert.False(t, caps.Mutable)
	assert.ElementsMatch(t, []string{"/noderegistries", "/pypiregistries"}, caps.APIs)
}

func TestHealthReportsHealthyWhenAllAdaptersRespond(t *testing.T) {
	b := newTestBridge(t, "noderegistries")

	report := b.Health(context.Background())
	assert.True(t, report.Healthy)
	require.Len(t, report.Adapters, 1)
	assert.True(t, report.Adapters[0].Healthy)
}

func TestHealthReportsUnhealthyWhenAnAdapterFails(t *testing.T) {
	b := newTestBridge(t, "noderegistries")

	// Splice in a second, unreachable adapter directly onto the already
	// handshaken routing table, bypassing Handshake (which would otherwise
	// reject it at startup) to exercise Health's partial-failure path.
	b.mu.Lock()
	b.adapters = append(b.adapters, &registeredAdapter{
		descriptor: AdapterDescriptor{Name: "ghost", BaseURL: "http://127.0.0.1:1"},
		groupType:  "ghostregistries",
	})
	b.mu.Unlock()

	report := b.Health(context.Background())
	assert.False(t, report.Healthy)
	require.Len(t, report.Adapters, 2)
}

func TestRootListsEveryRoutedGroupType(t *testing.T) {
	b := newTestBridge(t, "noderegistries", "pypiregistries")

	reg, err := b.Root("http://bridge.local")
	require.NoError(t, err)
	assert.Len(t, reg.GroupTypes, 2)
	assert.Equal(t, "http://bridge.local/noderegistries", reg.GroupTypes["noderegistries"].URL)
}

func TestServerDispatchForwardsToOwningAdapter(t *testing.T) {
	b := newTestBridge(t, "noderegistries")

	srv := httptest.NewServer(NewServer(b).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/noderegistries/npmjs.org")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerDispatchUnknownGroupTypeIs404(t *testing.T) {
	b := newTestBridge(t, "noderegistries")

	srv := httptest.NewServer(NewServer(b).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/mavenregistries/central")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerModelEndpointMergesAdapters(t *testing.T) {
	b := newTestBridge(t, "noderegistries", "pypiregistries")

	srv := httptest.NewServer(NewServer(b).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/model")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
