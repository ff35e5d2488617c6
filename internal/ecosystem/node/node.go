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

// Package node implements the Node/npm ecosystem adapter (spec.md §4.5):
// group-type noderegistries, group npmjs.org, resource-type packages, a
// Resource per npm package and a Version per published release, sourced
// from the public npm registry's per-package document and bulk `/-/all`
// name catalog.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
	groupType    = "noderegistries"
	groupID      = "npmjs.org"
	resourceType = "packages"
)

// Config configures an Adapter.
type Config struct {
	// RegistryURL is the upstream npm registry base, e.g.
	// https://registry.npmjs.org.
	RegistryURL string
	// BaseURLFallback is used to derive self-links when a request carries no
	// base-URL-deriving headers (tests, direct adapter access).
	BaseURLFallback string
	Cache           cache.Config
	Fetch           fetch.Config
	Logger          logger.Logger
}

func (c Config) withDefaults() Config {
	if c.RegistryURL == "" {
		c.RegistryURL = "https://registry.npmjs.org"
	}

	if c.BaseURLFallback == "" {
		c.BaseURLFallback = "http://localhost"
	}

	if c.Logger == nil {
		c.Logger = logger.NewTestLogger()
	}

	return c
}

// Adapter implements xregistry.DataSource for the Node/npm ecosystem.
type Adapter struct {
	cfg   Config
	cache *cache.Cache
	fetch *fetch.Client
	index *nameindex.Index
	log   logger.Logger
	epoch int64
}

// New constructs an Adapter. The returned Adapter serves an empty name index
// until RefreshIndex populates it (spec.md §4.5: the index is built at
// startup and on a schedule; the HTTP surface does not block on that here).
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

// RefreshIndex fetches npm's bulk `/-/all` catalog and swaps it into the
// adapter's name index in one atomic pointer store.
func (a *Adapter) RefreshIndex(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.RegistryURL+"/-/all", http.NoBody)
	if err != nil {
		return fmt.Errorf("building catalog request: %w", err)
	}

	// The full catalog runs tens of megabytes of JSON and is gzip-transported.
	nameindex.PrepareBulkRequest(req)

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetching npm catalog: %w", err)
	}

	body, err := nameindex.DecodeBulkBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return fmt.Errorf("decoding npm catalog: %w", err)
	}

	builder := nameindex.NewBuilder()

	gjson.ParseBytes(body).ForEach(func(key, _ gjson.Result) bool {
		name := key.String()
		if name == "_updated" {
			return true
		}

		builder.Add(name)

		return true
	})

	a.index.Refresh(builder)

	a.log.Info().Int("count", a.index.Size()).Msg("npm name index refreshed")

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
				Singular: "noderegistry",
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
	cfg := xrid.Config{
		ID:        id,
		ParentXID: parentXID,
		BaseURL:   a.cfg.BaseURLFallback,
		Epoch:     a.epoch,
		Request:   rc,
	}

	return cfg
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

// Groups implements xregistry.DataSource: npmjs.org is the adapter's sole,
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

// Resources implements xregistry.DataSource: the name-indexed packages
// collection. Per spec.md §4.3's mandatory name constraint, a request with
// no name-constraining filter returns no candidates at all (the framework
// turns that into an empty 200 with X-xRegistry-Notice); fetching upstream
// metadata for an unconstrained catalog of this size is never attempted.
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
			continue // evicted/renamed since the index was built; skip rather than fail the whole page
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

// fetchPackage resolves a package's full metadata document through the
// metadata cache, single-flight-coalescing concurrent misses for the same
// package.
func (a *Adapter) fetchPackage(ctx context.Context, name string) (*npmPackage, error) {
	key := cache.Key{Adapter: groupType, EntityKind: "package", EntityKey: name}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchPackageUncached(ctx, name)
	})
	if err != nil {
		return nil, err
	}

	return v.(*npmPackage), nil
}

func (a *Adapter) fetchPackageUncached(ctx context.Context, name string) (*npmPackage, error) {
	reqURL := a.cfg.RegistryURL + "/" + url.PathEscape(name)
	if strings.HasPrefix(name, "@") {
		// Scoped packages (@scope/pkg): PathEscape encodes the slash as
		// %2F; the request uses npm's lowercase %2f spelling of it.
		reqURL = a.cfg.RegistryURL + "/" + strings.ReplaceAll(url.PathEscape(name), "%2F", "%2f")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building package request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	return parseNpmPackage(name, resp.Body), nil
}

// npmPackage is the subset of npm's per-package registry document this
// adapter projects onto xRegistry Resource/Version fields.
type npmPackage struct {
	Name        string
	Description string
	Homepage    string
	License     string
	Latest      string
	Versions    map[string]npmVersionDoc
}

type npmVersionDoc struct {
	Version      string
	Description  string
	License      string
	Homepage     string
	Tarball      string
	Dependencies map[string]string
}

func (p *npmPackage) defaultVersion() string {
	if _, ok := p.Versions[p.Latest]; ok && p.Latest != "" {
		return p.Latest
	}

	versions := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		versions = append(versions, v)
	}

	return ecosystem.HighestSemver(versions)
}

func parseNpmPackage(name string, body []byte) *npmPackage {
	root := gjson.ParseBytes(body)

	pkg := &npmPackage{
		Name:        name,
		Description: root.Get("description").String(),
		Homepage:    root.Get("homepage").String(),
		License:     licenseString(root.Get("license")),
		Latest:      root.Get(`dist-tags.latest`).String(),
		Versions:    map[string]npmVersionDoc{},
	}

	root.Get("versions").ForEach(func(key, val gjson.Result) bool {
		deps := map[string]string{}
		val.Get("dependencies").ForEach(func(depName, depRange gjson.Result) bool {
			deps[depName.String()] = depRange.String()
			return true
		})

		pkg.Versions[key.String()] = npmVersionDoc{
			Version:      key.String(),
			Description:  firstNonEmpty(val.Get("description").String(), pkg.Description),
			License:      firstNonEmpty(licenseString(val.Get("license")), pkg.License),
			Homepage:     firstNonEmpty(val.Get("homepage").String(), pkg.Homepage),
			Tarball:      val.Get("dist.tarball").String(),
			Dependencies: deps,
		}

		return true
	})

	return pkg
}

// licenseString handles npm's two historical license shapes: a bare SPDX
// string, or an older {"type": "...", "url": "..."} object.
func licenseString(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.String()
	}

	if t := r.Get("type"); t.Exists() {
		return t.String()
	}

	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}

func (a *Adapter) resourceItem(pkg *npmPackage, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	defaultVersion := pkg.defaultVersion()

	resourceCfg := a.entityConfig(pkg.Name, "/"+groupType+"/"+groupID+"/"+resourceType, &rc)
	resourceCfg.Name = pkg.Name
	resourceCfg.Description = pkg.Description

	r, err := xrid.NewResource(resourceCfg)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(pkg.Name), err.Error())
	}

	r.VersionsCount = len(pkg.Versions)
	r.Extras = map[string]interface{}{
		"license":        pkg.License,
		"homepage":       pkg.Homepage,
		"downloadurl":    pkg.Versions[defaultVersion].Tarball,
		"defaultversion": defaultVersion,
	}

	attrs := map[string]string{
		"name":        pkg.Name,
		"description": pkg.Description,
		"license":     pkg.License,
		"homepage":    pkg.Homepage,
	}

	return xregistry.Entity{
		XIDValue: r.XID,
		IDValue:  r.ID,
		Attrs:    attrs,
		Value:    withExtras(r),
	}, nil
}

func (a *Adapter) versionItem(pkg *npmPackage, versionID string, isDefault bool, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	v := pkg.Versions[versionID]

	cfg := a.entityConfig(versionID, resourceXID(pkg.Name), &rc)
	cfg.Name = pkg.Name
	cfg.Description = v.Description

	ver, err := xrid.NewVersion(cfg, isDefault)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(pkg.Name)+"/versions/"+versionID, err.Error())
	}

	ver.Extras = map[string]interface{}{
		"license":      v.License,
		"homepage":     v.Homepage,
		"downloadurl":  v.Tarball,
		"dependencies": v.Dependencies,
	}

	attrs := map[string]string{
		"name":            pkg.Name,
		"versionid":       versionID,
		"description":     v.Description,
		"license":         v.License,
		"dependencycount": strconv.Itoa(len(v.Dependencies)),
	}

	return xregistry.Entity{
		XIDValue: ver.XID,
		IDValue:  ver.VersionID,
		Attrs:    attrs,
		Value:    withExtras(ver),
	}, nil
}

// withExtras merges a Resource or Version's Extras map into its JSON view,
// since xrid deliberately excludes Extras from its own MarshalJSON (it has
// no opinion on ecosystem-specific field names).
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

// structToMap round-trips v through JSON to get its tagged field view as a
// plain map, which mergeJSON then layers ecosystem extras on top of.
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
