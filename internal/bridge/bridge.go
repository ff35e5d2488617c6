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

// Package bridge implements the aggregation bridge (spec.md §4.9): the
// single public entry point that discovers a fixed set of ecosystem
// adapters, merges their /model and /capabilities documents, routes each
// request by its leading group-type path segment to the owning adapter, and
// aggregates adapter health. It never stores domain data itself — every
// read passes through to the adapter that owns the group-type.
package bridge

import (
	"net/http/httputil"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/xregistry-bridge/bridge/internal/fetch"
	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/pkg/http"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

// AdapterDescriptor is one entry in the bridge's adapter-descriptor
// configuration file: where an adapter lives and the credential the bridge
// presents to it. Name is a human label used only in logs and conflict
// messages; the group-type that actually keys the routing table is learned
// from the adapter's own /model document during the handshake.
type AdapterDescriptor struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseurl"`
	// APIKey, if set, is sent as an `Authorization: Bearer` header on every
	// request the bridge forwards to this adapter. It is never derived from,
	// or influenced by, a client's own credential.
	APIKey string `json:"apikey,omitempty"`
}

// Config configures a Bridge.
type Config struct {
	Adapters []AdapterDescriptor `json:"adapters"`
	// ClientAPIKey, if set, is required (as X-API-Key, ?api_key=, or Bearer)
	// on every request a client sends to the bridge itself. Independent of
	// each AdapterDescriptor's own upstream APIKey.
	ClientAPIKey string `json:"clientapikey,omitempty"`
	// HandshakeTimeout bounds each adapter's /model+/capabilities round trip
	// during startup.
	HandshakeTimeout time.Duration `json:"handshaketimeout,omitempty"`
	// HealthTimeout bounds each adapter's /health round trip during a single
	// GET /health aggregation.
	HealthTimeout time.Duration `json:"healthtimeout,omitempty"`
	CORS          http.CORSConfig
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}

	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 3 * time.Second
	}

	return c
}

// registeredAdapter is one adapter's descriptor plus what the handshake
// learned about it.
type registeredAdapter struct {
	descriptor   AdapterDescriptor
	groupType    string
	model        xregistry.ModelDocument
	capabilities xregistry.Capabilities
	proxy        *httputil.ReverseProxy
}

// Bridge is the aggregation bridge: a merged model/capabilities view and a
// group-type routing table over a fixed set of adapters, built once at
// startup by Handshake.
type Bridge struct {
	cfg        Config
	registryID string
	log        logger.Logger
	fetch      *fetch.Client

	mu       sync.RWMutex
	routes   map[string]*registeredAdapter // groupType -> adapter
	adapters []*registeredAdapter
	ready    bool
}

// New constructs a Bridge. Call Handshake before serving any request;
// requests against a Bridge that hasn't completed its handshake are
// rejected as service-unavailable.
func New(cfg Config, log logger.Logger) (*Bridge, error) {
	cfg = cfg.withDefaults()

	if log == nil {
		log = logger.NewTestLogger()
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	return &Bridge{
		cfg:        cfg,
		registryID: id,
		log:        log,
		fetch:      fetch.New(fetch.DefaultConfig()),
		routes:     map[string]*registeredAdapter{},
	}, nil
}

// RegistryID is the bridge's own singleton registry identifier, generated
// once at construction and stable for the process lifetime.
func (b *Bridge) RegistryID() string {
	return b.registryID
}

// Ready reports whether Handshake has completed successfully.
func (b *Bridge) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.ready
}
