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

// Package python implements the Python/PyPI ecosystem adapter (spec.md
// §4.5): group-type pythonregistries, group pypi.org, resource-type
// packages, a Resource per PyPI project and a Version per release,
// sourced from PyPI's per-project JSON API and the Simple API's project
// index for name discovery.
package python

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
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
	groupType    = "pythonregistries"
	groupID      = "pypi.org"
	resourceType = "packages"
)

// normalizeRun collapses runs of -, _, . into a single "-", per PEP 503's
// project-name normalization rule, so that e.g. "Foo__Bar.baz" and
// "foo-bar-baz" resolve to the same canonical index key.
var normalizeRun = regexp.MustCompile(`[-_.]+`)

// normalize applies PEP 503 normalization: lowercase, then collapse
// separator runs.
func normalize(name string) string {
	return strings.ToLower(normalizeRun.ReplaceAllString(name, "-"))
}

// Config configures an Adapter.
type Config struct {
	// IndexURL is the upstream PyPI JSON API base, e.g. https://pypi.org/pypi.
	IndexURL string
	// SimpleURL is the upstream Simple API base used for catalog discovery,
	// e.g. https://pypi.org/simple.
	SimpleURL string
	// BaseURLFallback is used to derive self-links when a request carries no
	// base-URL-deriving headers (tests, direct adapter access).
	BaseURLFallback string
	Cache           cache.Config
	Fetch           fetch.Config
	Logger          logger.Logger
}

func (c Config) withDefaults() Config {
	if c.IndexURL == "" {
		c.IndexURL = "https://pypi.org/pypi"
	}

	if c.SimpleURL == "" {
		c.SimpleURL = "https://pypi.org/simple"
	}

	if c.BaseURLFallback == "" {
		c.BaseURLFallback = "http://localhost"
	}

	if c.Logger == nil {
		c.Logger = logger.NewTestLogger()
	}

	return c
}

// Adapter implements xregistry.DataSource for the Python/PyPI ecosystem.
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

// RefreshIndex fetches PyPI's Simple API project index (a flat HTML or
// JSON document listing every project name) and swaps it into the
// adapter's name index in one atomic pointer store. The Simple API's JSON
// variant (PEP 691, requested via Accept) is a flat {"projects":[{"name":
// "..."}]} document, cheaper to walk than the HTML index.
func (a *Adapter) RefreshIndex(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.SimpleURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("building catalog request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json")

	// The simple index runs tens of megabytes of JSON and is gzip-transported.
	nameindex.PrepareBulkRequest(req)

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetching pypi simple index: %w", err)
	}

	body, err := nameindex.DecodeBulkBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return fmt.Errorf("decoding pypi simple index: %w", err)
	}

	builder := nameindex.NewBuilder()

	gjson.GetBytes(body, "projects").ForEach(func(_, proj gjson.Result) bool {
		if name := proj.Get("name").String(); name != "" {
			builder.Add(name)
		}

		return true
	})

	a.index.Refresh(builder)

	a.log.Info().Int("count", a.index.Size()).Msg("pypi name index refreshed")

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
				Singular: "pypiregistry",
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

// Groups implements xregistry.DataSource: pypi.org is the adapter's sole,
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
		pkg, err := a.fetchProject(ctx, name)
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

	pkg, err := a.fetchProject(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID), "project not found: "+err.Error())
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

	pkg, err := a.fetchProject(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID)+"/meta", "project not found: "+err.Error())
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

	pkg, err := a.fetchProject(ctx, resourceID)
	if err != nil {
		return nil, nil
	}

	defaultVersion := pkg.defaultVersion()
	items := make([]xregistry.CollectionItem, 0, len(pkg.Releases))

	for v := range pkg.Releases {
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

	pkg, err := a.fetchProject(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID)+"/versions/"+versionID, "project not found: "+err.Error())
	}

	if _, ok := pkg.Releases[versionID]; !ok {
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

// fetchProject resolves a project's full metadata document through the
// metadata cache, keyed by its PEP 503 normalized name so that "Foo-Bar"
// and "foo_bar" share one cache entry.
func (a *Adapter) fetchProject(ctx context.Context, name string) (*pypiProject, error) {
	key := cache.Key{Adapter: groupType, EntityKind: "project", EntityKey: normalize(name)}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchProjectUncached(ctx, name)
	})
	if err != nil {
		return nil, err
	}

	return v.(*pypiProject), nil
}

func (a *Adapter) fetchProjectUncached(ctx context.Context, name string) (*pypiProject, error) {
	reqURL := a.cfg.IndexURL + "/" + url.PathEscape(name) + "/json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building project request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	return parsePypiProject(name, resp.Body), nil
}

// pypiProject is the subset of PyPI's per-project JSON document this
// adapter projects onto xRegistry Resource/Version fields.
type pypiProject struct {
	Name     string
	Summary  string
	Homepage string
	License  string
	Latest   string
	Releases map[string]pypiReleaseDoc
}

type pypiReleaseDoc struct {
	Version     string
	RequiresPy  string
	DownloadURL string
	SHA256      string
}

func (p *pypiProject) defaultVersion() string {
	if _, ok := p.Releases[p.Latest]; ok && p.Latest != "" {
		return p.Latest
	}

	versions := make([]string, 0, len(p.Releases))
	for v := range p.Releases {
		versions = append(versions, v)
	}

	return ecosystem.HighestSemver(versions)
}

func parsePypiProject(name string, body []byte) *pypiProject {
	root := gjson.ParseBytes(body)
	info := root.Get("info")

	proj := &pypiProject{
		Name:     name,
		Summary:  info.Get("summary").String(),
		Homepage: firstNonEmpty(info.Get("home_page").String(), info.Get("project_urls.Homepage").String()),
		License:  info.Get("license").String(),
		Latest:   info.Get("version").String(),
		Releases: map[string]pypiReleaseDoc{},
	}

	root.Get("releases").ForEach(func(key, val gjson.Result) bool {
		doc := pypiReleaseDoc{Version: key.String()}

		// A release with no uploaded files (yanked/withdrawn) still appears
		// as an empty array; skip assigning a download URL/digest for it.
		if first := val.Get("0"); first.Exists() {
			doc.DownloadURL = first.Get("url").String()
			doc.SHA256 = first.Get("digests.sha256").String()
			doc.RequiresPy = first.Get("requires_python").String()
		}

		proj.Releases[key.String()] = doc

		return true
	})

	return proj
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}

func (a *Adapter) resourceItem(pkg *pypiProject, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	defaultVersion := pkg.defaultVersion()

	resourceCfg := a.entityConfig(pkg.Name, "/"+groupType+"/"+groupID+"/"+resourceType, &rc)
	resourceCfg.Name = pkg.Name
	resourceCfg.Description = pkg.Summary

	r, err := xrid.NewResource(resourceCfg)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(pkg.Name), err.Error())
	}

	r.VersionsCount = len(pkg.Releases)
	r.Extras = map[string]interface{}{
		"license":        pkg.License,
		"homepage":       pkg.Homepage,
		"downloadurl":    pkg.Releases[defaultVersion].DownloadURL,
		"defaultversion": defaultVersion,
	}

	attrs := map[string]string{
		"name":        pkg.Name,
		"description": pkg.Summary,
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

func (a *Adapter) versionItem(pkg *pypiProject, versionID string, isDefault bool, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	v := pkg.Releases[versionID]

	cfg := a.entityConfig(versionID, resourceXID(pkg.Name), &rc)
	cfg.Name = pkg.Name

	ver, err := xrid.NewVersion(cfg, isDefault)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(pkg.Name)+"/versions/"+versionID, err.Error())
	}

	ver.Extras = map[string]interface{}{
		"downloadurl":    v.DownloadURL,
		"sha256":         v.SHA256,
		"requirespython": v.RequiresPy,
	}

	attrs := map[string]string{
		"name":      pkg.Name,
		"versionid": versionID,
		"sha256len": strconv.Itoa(len(v.SHA256)),
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
