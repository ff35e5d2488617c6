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

// Package mcp implements the Model Context Protocol server-registry
// ecosystem adapter (spec.md §4.5): group-type mcpproviders, one group per
// configured provider namespace, resource-type servers, a Resource per MCP
// server and a Version per published release, sourced from a provider's
// server-list endpoint. Unlike the other five ecosystems this adapter
// mounts more than one group, since a single MCP registry aggregator
// realistically tracks more than one upstream provider catalog
// (spec.md's own ID table names one namespace per mount; this adapter
// generalizes that to many namespaces under the one group-type it already
// names).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xregistry-bridge/bridge/internal/cache"
	"github.com/xregistry-bridge/bridge/internal/ecosystem"
	"github.com/xregistry-bridge/bridge/internal/fetch"
	"github.com/xregistry-bridge/bridge/internal/nameindex"
	"github.com/xregistry-bridge/bridge/internal/problem"
	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/internal/xrid"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const (
	groupType    = "mcpproviders"
	resourceType = "servers"
)

// disallowed matches any character outside the sanitized-name allowed set
// (lowercase alphanumerics, '-', '_', '.').
var disallowed = regexp.MustCompile(`[^a-z0-9_.-]+`)

// sanitizeName implements spec.md's MCP resource-id derivation: slashes
// become underscores, the result is lowercased, and any character outside
// the allowed set is dropped.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ToLower(name)

	return disallowed.ReplaceAllString(name, "")
}

// ProviderConfig names one upstream MCP server-registry namespace.
type ProviderConfig struct {
	// Namespace is this provider's group id under mcpproviders, e.g.
	// "anthropic" or "community".
	Namespace string
	// ListURL is the upstream endpoint returning this provider's server
	// catalog, e.g. https://registry.example.org/v0/servers.
	ListURL string
}

// Config configures an Adapter.
type Config struct {
	Providers []ProviderConfig
	// BaseURLFallback is used to derive self-links when a request carries no
	// base-URL-deriving headers (tests, direct adapter access).
	BaseURLFallback string
	Cache           cache.Config
	Fetch           fetch.Config
	Logger          logger.Logger
}

func (c Config) withDefaults() Config {
	if c.BaseURLFallback == "" {
		c.BaseURLFallback = "http://localhost"
	}

	if c.Logger == nil {
		c.Logger = logger.NewTestLogger()
	}

	return c
}

// Adapter implements xregistry.DataSource for one or more MCP server-
// registry provider namespaces.
type Adapter struct {
	cfg       Config
	providers map[string]ProviderConfig
	cache     *cache.Cache
	fetch     *fetch.Client
	index     map[string]*nameindex.Index
	log       logger.Logger
	epoch     int64
}

// New constructs an Adapter with one name index per configured provider.
// The returned Adapter serves empty indexes until RefreshIndex populates
// them.
func New(cfg Config) (*Adapter, error) {
	cfg = cfg.withDefaults()

	c, err := cache.New(cfg.Cache, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("constructing metadata cache: %w", err)
	}

	a := &Adapter{
		cfg:       cfg,
		providers: map[string]ProviderConfig{},
		cache:     c,
		fetch:     fetch.New(cfg.Fetch),
		index:     map[string]*nameindex.Index{},
		log:       cfg.Logger,
		epoch:     1,
	}

	for _, p := range cfg.Providers {
		a.providers[p.Namespace] = p
		a.index[p.Namespace] = nameindex.New(cfg.Logger)
	}

	return a, nil
}

// RefreshIndex fetches one provider namespace's server list and swaps it
// into that namespace's name index in one atomic pointer store.
func (a *Adapter) RefreshIndex(ctx context.Context, namespace string) error {
	p, ok := a.providers[namespace]
	if !ok {
		return fmt.Errorf("unknown mcp provider namespace %q", namespace)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ListURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("building provider list request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetching mcp provider list for %s: %w", namespace, err)
	}

	builder := nameindex.NewBuilder()

	gjson.GetBytes(resp.Body, "servers").ForEach(func(_, srv gjson.Result) bool {
		if name := srv.Get("name").String(); name != "" {
			builder.Add(sanitizeName(name))
		}

		return true
	})

	a.index[namespace].Refresh(builder)

	a.log.Info().Str("namespace", namespace).Int("count", a.index[namespace].Size()).
		Msg("mcp server index refreshed")

	return nil
}

// GroupType implements xregistry.DataSource.
func (a *Adapter) GroupType() string { return groupType }

// ResourceType implements xregistry.DataSource.
func (a *Adapter) ResourceType() string { return resourceType }

// Model implements xregistry.DataSource.
func (a *Adapter) Model() xregistry.ModelDocument {
	return xregistry.ModelDocument{
		GroupTypes: map[string]xregistry.GroupTypeModel{
			groupType: {
				Singular: "mcpprovider",
				Plural:   groupType,
				ResourceTypes: []xregistry.ResourceTypeModel{
					{
						Singular: "server",
						Plural:   resourceType,
						Nested:   []xregistry.NestedType{{Singular: "version", Plural: "versions"}},
					},
				},
			},
		},
	}
}

// Capabilities implements xregistry.DataSource.
func (a *Adapter) Capabilities() xregistry.Capabilities {
	return xregistry.DefaultCapabilities()
}

func (a *Adapter) entityConfig(id, parentXID string, rc *xrid.RequestContext) xrid.Config {
	return xrid.Config{
		ID:        id,
		ParentXID: parentXID,
		BaseURL:   a.cfg.BaseURLFallback,
		Epoch:     a.epoch,
		Request:   rc,
	}
}

// Root implements xregistry.DataSource.
func (a *Adapter) Root(_ context.Context, flags xregistry.Flags) (interface{}, *problem.Details) {
	reg, err := xrid.NewRegistry(xrid.Config{
		ID:      "mcp",
		BaseURL: a.cfg.BaseURLFallback,
		Epoch:   a.epoch,
		Request: &flags.RequestContext,
	})
	if err != nil {
		return nil, problem.Internal("/", err.Error())
	}

	base := flags.RequestContext.EffectiveBaseURL()
	reg.GroupTypes[groupType] = xrid.GroupRef{URL: base + "/" + groupType, Count: len(a.providers)}

	return reg, nil
}

// Groups implements xregistry.DataSource: one Group per configured provider
// namespace.
func (a *Adapter) Groups(_ context.Context, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	items := make([]xregistry.CollectionItem, 0, len(a.providers))

	for namespace := range a.providers {
		g, perr := a.buildGroup(namespace, flags.RequestContext)
		if perr != nil {
			return nil, perr
		}

		items = append(items, xregistry.Entity{
			XIDValue: g.XID,
			IDValue:  g.ID,
			Attrs:    map[string]string{"name": g.ID},
			Value:    g,
		})
	}

	return items, nil
}

// Group implements xregistry.DataSource.
func (a *Adapter) Group(_ context.Context, id string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if _, ok := a.providers[id]; !ok {
		return nil, problem.NotFound("/"+groupType+"/"+id, "unknown provider namespace "+id)
	}

	return a.buildGroup(id, flags.RequestContext)
}

func (a *Adapter) buildGroup(namespace string, rc xrid.RequestContext) (*xrid.Group, *problem.Details) {
	g, err := xrid.NewGroup(a.entityConfig(namespace, "/"+groupType, &rc))
	if err != nil {
		return nil, problem.Internal("/"+groupType+"/"+namespace, err.Error())
	}

	g.ResourceType = resourceType
	g.ResourceURL = rc.EffectiveBaseURL() + "/" + groupType + "/" + namespace + "/" + resourceType

	return g, nil
}

// Resources implements xregistry.DataSource. Per spec.md §4.3's mandatory
// name constraint, a request with no name-constraining filter returns no
// candidates at all.
func (a *Adapter) Resources(ctx context.Context, gID string, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	idx, ok := a.index[gID]
	if !ok {
		return nil, nil
	}

	names := ecosystem.NameCandidates(idx, flags.Request.Filters)
	if len(names) == 0 {
		return nil, nil
	}

	items := make([]xregistry.CollectionItem, 0, len(names))

	for _, name := range names {
		srv, err := a.fetchServer(ctx, gID, name)
		if err != nil {
			continue
		}

		item, perr := a.resourceItem(gID, srv, flags.RequestContext)
		if perr != nil {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// Resource implements xregistry.DataSource: the is-latest version payload.
func (a *Adapter) Resource(ctx context.Context, gID, resourceID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if _, ok := a.providers[gID]; !ok {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown provider namespace "+gID)
	}

	srv, err := a.fetchServer(ctx, gID, resourceID)
	if err != nil {
		return nil, problem.NotFound(a.resourcePath(gID, resourceID), "server not found: "+err.Error())
	}

	item, perr := a.resourceItem(gID, srv, flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return item.Value, nil
}

// Meta implements xregistry.DataSource.
func (a *Adapter) Meta(ctx context.Context, gID, resourceID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if _, ok := a.providers[gID]; !ok {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown provider namespace "+gID)
	}

	srv, err := a.fetchServer(ctx, gID, resourceID)
	if err != nil {
		return nil, problem.NotFound(a.resourcePath(gID, resourceID)+"/meta", "server not found: "+err.Error())
	}

	rc := flags.RequestContext
	resXID := a.resourceXID(gID, resourceID)

	m, merr := xrid.NewMeta(a.entityConfig(resourceID, "", &rc), resXID, srv.defaultVersion())
	if merr != nil {
		return nil, problem.Internal(a.resourcePath(gID, resourceID)+"/meta", merr.Error())
	}

	return m, nil
}

// Versions implements xregistry.DataSource.
func (a *Adapter) Versions(ctx context.Context, gID, resourceID string, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	if _, ok := a.providers[gID]; !ok {
		return nil, nil
	}

	srv, err := a.fetchServer(ctx, gID, resourceID)
	if err != nil {
		return nil, nil
	}

	items := make([]xregistry.CollectionItem, 0, len(srv.Versions))

	for _, v := range srv.Versions {
		item, perr := a.versionItem(gID, srv, v, flags.RequestContext)
		if perr != nil {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// Version implements xregistry.DataSource.
func (a *Adapter) Version(ctx context.Context, gID, resourceID, versionID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if _, ok := a.providers[gID]; !ok {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown provider namespace "+gID)
	}

	srv, err := a.fetchServer(ctx, gID, resourceID)
	if err != nil {
		return nil, problem.NotFound(a.resourcePath(gID, resourceID)+"/versions/"+versionID, "server not found: "+err.Error())
	}

	v, ok := srv.version(versionID)
	if !ok {
		return nil, problem.NotFound(a.resourcePath(gID, resourceID)+"/versions/"+versionID, "version not found")
	}

	item, perr := a.versionItem(gID, srv, v, flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return item.Value, nil
}

func (a *Adapter) resourcePath(namespace, id string) string {
	return "/" + groupType + "/" + namespace + "/" + resourceType + "/" + url.PathEscape(id)
}

func (a *Adapter) resourceXID(namespace, id string) string {
	return "/" + groupType + "/" + namespace + "/" + resourceType + "/" + id
}

// fetchServer resolves a sanitized server name's full metadata document
// through the metadata cache, scoped per provider namespace since two
// namespaces may independently mint the same server name.
func (a *Adapter) fetchServer(ctx context.Context, namespace, id string) (*mcpServer, error) {
	key := cache.Key{Adapter: groupType + ":" + namespace, EntityKind: "server", EntityKey: id}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchServerUncached(ctx, namespace, id)
	})
	if err != nil {
		return nil, err
	}

	return v.(*mcpServer), nil
}

func (a *Adapter) fetchServerUncached(ctx context.Context, namespace, id string) (*mcpServer, error) {
	p, ok := a.providers[namespace]
	if !ok {
		return nil, fmt.Errorf("unknown mcp provider namespace %q", namespace)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ListURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building provider list request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	srv := findServer(resp.Body, id)
	if srv == nil {
		return nil, cache.ErrNotFound
	}

	return srv, nil
}

// mcpServer is the subset of an MCP registry server entry this adapter
// projects onto xRegistry Resource/Version fields.
type mcpServer struct {
	Name        string
	Description string
	RepoURL     string
	Versions    []mcpVersionDoc
}

type mcpVersionDoc struct {
	Version     string
	IsLatest    bool
	ReleaseDate string
}

func (s *mcpServer) version(id string) (mcpVersionDoc, bool) {
	for _, v := range s.Versions {
		if v.Version == id {
			return v, true
		}
	}

	return mcpVersionDoc{}, false
}

// defaultVersion honors MCP's own isLatest flag rather than semver
// reasoning, since a provider's latest release is not guaranteed to be the
// highest-sorting version string (pre-release channel promotions, date-
// based version schemes).
func (s *mcpServer) defaultVersion() string {
	for _, v := range s.Versions {
		if v.IsLatest {
			return v.Version
		}
	}

	if len(s.Versions) == 0 {
		return ""
	}

	return s.Versions[len(s.Versions)-1].Version
}

// findServer scans a provider's server-list response for the entry whose
// sanitized name matches id, since the registry's own name and this
// adapter's resource id diverge once spec.md's sanitization rule runs.
func findServer(body []byte, id string) *mcpServer {
	var found *mcpServer

	gjson.GetBytes(body, "servers").ForEach(func(_, srv gjson.Result) bool {
		name := srv.Get("name").String()
		if sanitizeName(name) != id {
			return true
		}

		s := &mcpServer{
			Name:        name,
			Description: srv.Get("description").String(),
			RepoURL:     srv.Get("repository.url").String(),
		}

		srv.Get("versions").ForEach(func(_, v gjson.Result) bool {
			s.Versions = append(s.Versions, mcpVersionDoc{
				Version:     v.Get("version").String(),
				IsLatest:    v.Get("isLatest").Bool(),
				ReleaseDate: v.Get("releaseDate").String(),
			})

			return true
		})

		found = s

		return false
	})

	return found
}

func (a *Adapter) resourceItem(namespace string, srv *mcpServer, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	id := sanitizeName(srv.Name)
	defaultVersion := srv.defaultVersion()

	resourceCfg := a.entityConfig(id, "/"+groupType+"/"+namespace+"/"+resourceType, &rc)
	resourceCfg.Name = srv.Name
	resourceCfg.Description = srv.Description

	r, err := xrid.NewResource(resourceCfg)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(a.resourcePath(namespace, id), err.Error())
	}

	r.VersionsCount = len(srv.Versions)
	r.Extras = map[string]interface{}{
		"repourl":        srv.RepoURL,
		"defaultversion": defaultVersion,
	}

	attrs := map[string]string{
		"name":        srv.Name,
		"description": srv.Description,
		"repourl":      srv.RepoURL,
	}

	return xregistry.Entity{
		XIDValue: r.XID,
		IDValue:  r.ID,
		Attrs:    attrs,
		Value:    withExtras(r),
	}, nil
}

func (a *Adapter) versionItem(namespace string, srv *mcpServer, v mcpVersionDoc, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	id := sanitizeName(srv.Name)

	cfg := a.entityConfig(v.Version, a.resourceXID(namespace, id), &rc)
	cfg.Name = srv.Name

	ver, err := xrid.NewVersion(cfg, v.IsLatest)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(a.resourcePath(namespace, id)+"/versions/"+v.Version, err.Error())
	}

	ver.Extras = map[string]interface{}{
		"islatest":    v.IsLatest,
		"releasedate": v.ReleaseDate,
	}

	attrs := map[string]string{
		"name":      srv.Name,
		"versionid": v.Version,
	}

	return xregistry.Entity{
		XIDValue: ver.XID,
		IDValue:  ver.VersionID,
		Attrs:    attrs,
		Value:    withExtras(ver),
	}, nil
}

// withExtras merges a Resource or Version's Extras map into its JSON view,
// since xrid deliberately excludes Extras from its own MarshalJSON.
func withExtras(v interface{}) interface{} {
	switch t := v.(type) {
	case *xrid.Resource:
		return mergeJSON(t, t.Extras)
	case *xrid.Version:
		return mergeJSON(t, t.Extras)
	default:
		return v
	}
}

func mergeJSON(v interface{}, extras map[string]interface{}) map[string]interface{} {
	base := structToMap(v)

	for k, val := range extras {
		base[k] = val
	}

	return base
}

func structToMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}

	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}

	return out
}
