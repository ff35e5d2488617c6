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

// Package nuget implements the .NET/NuGet ecosystem adapter (spec.md
// §4.5): group-type dotnetregistries, group nuget.org, resource-type
// packages, a Resource per NuGet package id and a Version per published
// release, sourced from the NuGet v3 registration API.
package nuget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
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
	groupType    = "dotnetregistries"
	groupID      = "nuget.org"
	resourceType = "packages"
)

// Config configures an Adapter.
type Config struct {
	// RegistrationURL is the upstream NuGet v3 registration API base, e.g.
	// https://api.nuget.org/v3/registration5-semver1.
	RegistrationURL string
	// CatalogURL is the upstream NuGet v3 catalog endpoint used for name
	// discovery (e.g. https://api.nuget.org/v3/catalog0/index.json), though
	// see RefreshIndex's doc comment for why this is a seed list in practice.
	CatalogURL string
	// BaseURLFallback is used to derive self-links when a request carries no
	// base-URL-deriving headers (tests, direct adapter access).
	BaseURLFallback string
	Cache           cache.Config
	Fetch           fetch.Config
	Logger          logger.Logger
}

func (c Config) withDefaults() Config {
	if c.RegistrationURL == "" {
		c.RegistrationURL = "https://api.nuget.org/v3/registration5-semver1"
	}

	if c.BaseURLFallback == "" {
		c.BaseURLFallback = "http://localhost"
	}

	if c.Logger == nil {
		c.Logger = logger.NewTestLogger()
	}

	return c
}

// Adapter implements xregistry.DataSource for the .NET/NuGet ecosystem.
type Adapter struct {
	cfg   Config
	cache *cache.Cache
	fetch *fetch.Client
	index *nameindex.Index
	log   logger.Logger
	epoch int64
}

// New constructs an Adapter. The returned Adapter serves an empty name
// index until RefreshIndex populates it.
func New(cfg Config) (*Adapter, error) {
	cfg = cfg.withDefaults()

	c, err := cache.New(cfg.Cache, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("constructing metadata cache: %w", err)
	}

	return &Adapter{
		cfg:   cfg,
		cache: c,
		fetch: fetch.New(cfg.Fetch),
		index: nameindex.New(cfg.Logger),
		log:   cfg.Logger,
		epoch: 1,
	}, nil
}

// RefreshIndex populates the name index from a caller-supplied package-id
// list. NuGet's own catalog is a cursor-paginated commit log meant to be
// walked incrementally over time, not fetched whole on a refresh tick; a
// real deployment would walk it out-of-band and call this with the
// accumulated id set, the same seed-list approach internal/ecosystem/maven
// takes for the same reason.
func (a *Adapter) RefreshIndex(_ context.Context, ids []string) {
	builder := nameindex.NewBuilder()

	for _, id := range ids {
		builder.Add(id)
	}

	a.index.Refresh(builder)

	a.log.Info().Int("count", a.index.Size()).Msg("nuget id index refreshed")
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
				Singular: "nugetregistry",
				Plural:   groupType,
				ResourceTypes: []xregistry.ResourceTypeModel{
					{
						Singular: "package",
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
		ID:      groupID,
		BaseURL: a.cfg.BaseURLFallback,
		Epoch:   a.epoch,
		Request: &flags.RequestContext,
	})
	if err != nil {
		return nil, problem.Internal("/", err.Error())
	}

	base := flags.RequestContext.EffectiveBaseURL()
	reg.GroupTypes[groupType] = xrid.GroupRef{URL: base + "/" + groupType, Count: 1}

	return reg, nil
}

// Groups implements xregistry.DataSource: nuget.org is the adapter's sole,
// permanent group.
func (a *Adapter) Groups(_ context.Context, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	g, perr := a.buildGroup(flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return []xregistry.CollectionItem{
		xregistry.Entity{XIDValue: g.XID, IDValue: g.ID, Attrs: map[string]string{"name": g.ID}, Value: g},
	}, nil
}

// Group implements xregistry.DataSource.
func (a *Adapter) Group(_ context.Context, id string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if id != groupID {
		return nil, problem.NotFound("/"+groupType+"/"+id, "unknown group "+id)
	}

	return a.buildGroup(flags.RequestContext)
}

func (a *Adapter) buildGroup(rc xrid.RequestContext) (*xrid.Group, *problem.Details) {
	g, err := xrid.NewGroup(a.entityConfig(groupID, "/"+groupType, &rc))
	if err != nil {
		return nil, problem.Internal("/"+groupType+"/"+groupID, err.Error())
	}

	g.ResourceType = resourceType
	g.ResourceURL = rc.EffectiveBaseURL() + "/" + groupType + "/" + groupID + "/" + resourceType

	return g, nil
}

// Resources implements xregistry.DataSource. Per spec.md §4.3's mandatory
// name constraint, a request with no name-constraining filter returns no
// candidates at all.
func (a *Adapter) Resources(ctx context.Context, gID string, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	if gID != groupID {
		return nil, nil
	}

	names := ecosystem.NameCandidates(a.index, flags.Request.Filters)
	if len(names) == 0 {
		return nil, nil
	}

	items := make([]xregistry.CollectionItem, 0, len(names))

	for _, name := range names {
		pkg, err := a.fetchPackage(ctx, name)
		if err != nil {
			continue
		}

		item, perr := a.resourceItem(pkg, flags.RequestContext)
		if perr != nil {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// Resource implements xregistry.DataSource: the default-version payload.
func (a *Adapter) Resource(ctx context.Context, gID, resourceID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if gID != groupID {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown group "+gID)
	}

	pkg, err := a.fetchPackage(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID), "package not found: "+err.Error())
	}

	item, perr := a.resourceItem(pkg, flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return item.Value, nil
}

// Meta implements xregistry.DataSource.
func (a *Adapter) Meta(ctx context.Context, gID, resourceID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if gID != groupID {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown group "+gID)
	}

	pkg, err := a.fetchPackage(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID)+"/meta", "package not found: "+err.Error())
	}

	rc := flags.RequestContext
	resXID := resourceXID(resourceID)

	m, merr := xrid.NewMeta(a.entityConfig(resourceID, "", &rc), resXID, pkg.defaultVersion())
	if merr != nil {
		return nil, problem.Internal(resourcePath(resourceID)+"/meta", merr.Error())
	}

	return m, nil
}

// Versions implements xregistry.DataSource.
func (a *Adapter) Versions(ctx context.Context, gID, resourceID string, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	if gID != groupID {
		return nil, nil
	}

	pkg, err := a.fetchPackage(ctx, resourceID)
	if err != nil {
		return nil, nil
	}

	defaultVersion := pkg.defaultVersion()
	items := make([]xregistry.CollectionItem, 0, len(pkg.Versions))

	for v := range pkg.Versions {
		item, perr := a.versionItem(pkg, v, v == defaultVersion, flags.RequestContext)
		if perr != nil {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// Version implements xregistry.DataSource.
func (a *Adapter) Version(ctx context.Context, gID, resourceID, versionID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if gID != groupID {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown group "+gID)
	}

	pkg, err := a.fetchPackage(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID)+"/versions/"+versionID, "package not found: "+err.Error())
	}

	if _, ok := pkg.Versions[versionID]; !ok {
		return nil, problem.NotFound(resourcePath(resourceID)+"/versions/"+versionID, "version not found")
	}

	item, perr := a.versionItem(pkg, versionID, versionID == pkg.defaultVersion(), flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return item.Value, nil
}

func resourcePath(id string) string {
	return "/" + groupType + "/" + groupID + "/" + resourceType + "/" + url.PathEscape(id)
}

func resourceXID(id string) string {
	return "/" + groupType + "/" + groupID + "/" + resourceType + "/" + id
}

// fetchPackage resolves a package id's full metadata document through the
// metadata cache, keyed by the NuGet-lowercased id (NuGet's own v3 API
// requires a lowercase id in the request path, while the id a client
// requests may carry its canonical mixed case).
func (a *Adapter) fetchPackage(ctx context.Context, id string) (*nugetPackage, error) {
	key := cache.Key{Adapter: groupType, EntityKind: "package", EntityKey: strings.ToLower(id)}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchPackageUncached(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	return v.(*nugetPackage), nil
}

func (a *Adapter) fetchPackageUncached(ctx context.Context, id string) (*nugetPackage, error) {
	reqURL := a.cfg.RegistrationURL + "/" + url.PathEscape(strings.ToLower(id)) + "/index.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building registration request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	return parseNugetRegistration(id, resp.Body), nil
}

// nugetPackage is the subset of NuGet's v3 registration document this
// adapter projects onto xRegistry Resource/Version fields.
type nugetPackage struct {
	ID       string
	Versions map[string]nugetVersionDoc
}

type nugetVersionDoc struct {
	Version     string
	Description string
	Authors     string
	IconURL     string
	ProjectURL  string
	Listed      bool
}

func (p *nugetPackage) defaultVersion() string {
	versions := make([]string, 0, len(p.Versions))

	for v, doc := range p.Versions {
		if doc.Listed {
			versions = append(versions, v)
		}
	}

	if len(versions) == 0 {
		// Every version unlisted (deprecated package): fall back to the
		// full set rather than reporting no default at all.
		for v := range p.Versions {
			versions = append(versions, v)
		}
	}

	return ecosystem.HighestSemver(versions)
}

func parseNugetRegistration(id string, body []byte) *nugetPackage {
	pkg := &nugetPackage{ID: id, Versions: map[string]nugetVersionDoc{}}

	root := gjson.ParseBytes(body)

	root.Get("items").ForEach(func(_, page gjson.Result) bool {
		// The registration index is itself paginated into "items" pages;
		// each page either inlines its own "items" leaf array or (for large
		// packages) requires following an "@id" catalog page link the
		// caller would need a second fetch for. Only inlined pages are
		// walked here, matching how most NuGet.org packages' history fits
		// in a single page.
		page.Get("items").ForEach(func(_, leaf gjson.Result) bool {
			entry := leaf.Get("catalogEntry")

			v := entry.Get("version").String()
			if v == "" {
				return true
			}

			pkg.Versions[v] = nugetVersionDoc{
				Version:     v,
				Description: entry.Get("description").String(),
				Authors:     entry.Get("authors").String(),
				IconURL:     entry.Get("iconUrl").String(),
				ProjectURL:  entry.Get("projectUrl").String(),
				Listed:      entry.Get("listed").Bool() || !entry.Get("listed").Exists(),
			}

			return true
		})

		return true
	})

	return pkg
}

func (a *Adapter) resourceItem(pkg *nugetPackage, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	defaultVersion := pkg.defaultVersion()
	def := pkg.Versions[defaultVersion]

	resourceCfg := a.entityConfig(pkg.ID, "/"+groupType+"/"+groupID+"/"+resourceType, &rc)
	resourceCfg.Name = pkg.ID
	resourceCfg.Description = def.Description

	r, err := xrid.NewResource(resourceCfg)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(pkg.ID), err.Error())
	}

	r.VersionsCount = len(pkg.Versions)
	r.Extras = map[string]interface{}{
		"authors":        def.Authors,
		"projecturl":     def.ProjectURL,
		"iconurl":        def.IconURL,
		"defaultversion": defaultVersion,
	}

	attrs := map[string]string{
		"name":        pkg.ID,
		"description": def.Description,
		"authors":     def.Authors,
	}

	return xregistry.Entity{
		XIDValue: r.XID,
		IDValue:  r.ID,
		Attrs:    attrs,
		Value:    withExtras(r),
	}, nil
}

func (a *Adapter) versionItem(pkg *nugetPackage, versionID string, isDefault bool, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	v := pkg.Versions[versionID]

	cfg := a.entityConfig(versionID, resourceXID(pkg.ID), &rc)
	cfg.Name = pkg.ID
	cfg.Description = v.Description

	ver, err := xrid.NewVersion(cfg, isDefault)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(pkg.ID)+"/versions/"+versionID, err.Error())
	}

	ver.Extras = map[string]interface{}{
		"authors":    v.Authors,
		"projecturl": v.ProjectURL,
		"listed":     v.Listed,
	}

	attrs := map[string]string{
		"name":      pkg.ID,
		"versionid": versionID,
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
