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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/xregistry-bridge/bridge/internal/problem"
	"github.com/xregistry-bridge/bridge/internal/xregistry"
)

// State is a point in the bridge startup state machine spec.md §4.9
// describes: INIT -> LOADING_CONFIG -> HANDSHAKING -> READY, with an EXIT
// branch from HANDSHAKING on a duplicate group-type or an unreachable
// adapter.
type State string

const (
	StateInit          State = "INIT"
	StateLoadingConfig State = "LOADING_CONFIG"
	StateHandshaking   State = "HANDSHAKING"
	StateReady         State = "READY"
	StateExit          State = "EXIT"
)

// Handshake performs the startup handshake against every configured
// adapter: GET /model and GET /capabilities, merged into the bridge's own
// composite documents, and the group-type each adapter declares recorded
// into the routing table. A duplicate group-type across two adapters, or a
// handshake failure against any one adapter, aborts the whole startup — the
// bridge never serves a partial routing table.
func (b *Bridge) Handshake(ctx context.Context) error {
	b.logState(StateLoadingConfig, "loading adapter descriptors")

	if len(b.cfg.Adapters) == 0 {
		return problem.Internal("/", "bridge configured with no adapters")
	}

	b.logState(StateHandshaking, fmt.Sprintf("handshaking with %d adapters", len(b.cfg.Adapters)))

	routes := make(map[string]*registeredAdapter, len(b.cfg.Adapters))
	adapters := make([]*registeredAdapter, 0, len(b.cfg.Adapters))

	for _, d := range b.cfg.Adapters {
		reg, err := b.handshakeOne(ctx, d)
		if err != nil {
			b.logState(StateExit, fmt.Sprintf("adapter %s unreachable: %v", d.Name, err))

			return fmt.Errorf("handshake with adapter %q at %s: %w", d.Name, d.BaseURL, err)
		}

		if existing, conflict := routes[reg.groupType]; conflict {
			b.logState(StateExit, fmt.Sprintf("duplicate group-type %q: %s and %s", reg.groupType, existing.descriptor.Name, d.Name))

			return fmt.Errorf("duplicate group-type %q: adapters %q and %q both declare it", reg.groupType, existing.descriptor.Name, d.Name)
		}

		routes[reg.groupType] = reg
		adapters = append(adapters, reg)
	}

	b.mu.Lock()
	b.routes = routes
	b.adapters = adapters
	b.ready = true
	b.mu.Unlock()

	b.logState(StateReady, fmt.Sprintf("routing table built: %d group-types", len(routes)))

	return nil
}

func (b *Bridge) handshakeOne(ctx context.Context, d AdapterDescriptor) (*registeredAdapter, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.HandshakeTimeout)
	defer cancel()

	var model xregistry.ModelDocument

	if err := b.fetchJSON(ctx, d, "/model", &model); err != nil {
		return nil, fmt.Errorf("fetching /model: %w", err)
	}

	if len(model.GroupTypes) != 1 {
		return nil, fmt.Errorf("adapter declared %d group-types, expected exactly 1", len(model.GroupTypes))
	}

	var groupType string
	for gt := range model.GroupTypes {
		groupType = gt
	}

	var caps xregistry.Capabilities

	if err := b.fetchJSON(ctx, d, "/capabilities", &caps); err != nil {
		return nil, fmt.Errorf("fetching /capabilities: %w", err)
	}

	proxy, err := b.newProxy(d)
	if err != nil {
		return nil, fmt.Errorf("building proxy: %w", err)
	}

	return &registeredAdapter{
		descriptor:   d,
		groupType:    groupType,
		model:        model,
		capabilities: caps,
		proxy:        proxy,
	}, nil
}

func (b *Bridge) fetchJSON(ctx context.Context, d AdapterDescriptor, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, http.NoBody)
	if err != nil {
		return err
	}

	if d.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.APIKey)
	}

	resp, err := b.fetch.Do(ctx, req)
	if err != nil {
		return err
	}

	return json.Unmarshal(resp.Body, dst)
}

func (b *Bridge) newProxy(d AdapterDescriptor) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	base := proxy.Director

	proxy.Director = func(r *http.Request) {
		base(r)

		// The client's own credential (if any, validated by this bridge's
		// own optional APIKeyMiddleware) is never forwarded downstream;
		// each adapter gets the bridge's own configured credential for it.
		r.Header.Del("Authorization")
		r.Header.Del("X-Api-Key")

		if d.APIKey != "" {
			r.Header.Set("Authorization", "Bearer "+d.APIKey)
		}
	}

	return proxy, nil
}

func (b *Bridge) logState(s State, msg string) {
	b.log.Info().Str("state", string(s)).Msg(msg)
}
