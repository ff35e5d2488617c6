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

// Package maven implements the Java/Maven ecosystem adapter (spec.md
// §4.5): group-type javaregistries, group maven-central, resource-type
// packages, a Resource per groupId/artifactId coordinate and a Version
// per released artifact version, sourced from the Maven Central search
// and metadata APIs.
package maven

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
	groupType    = "javaregistries"
	groupID      = "maven-central"
	resourceType = "packages"
)

// coordinate is a resource id in this adapter's xRegistry-safe encoding:
// "groupId" and "artifactId" joined with "/" (Maven's own ":" separator is
// not safe unescaped in a URL path segment, while "/" is the form spec.md's
// ID table specifies for this adapter).
type coordinate struct {
	GroupID    string
	ArtifactID string
}

func (c coordinate) id() string {
	return c.GroupID + "/" + c.ArtifactID
}

func parseCoordinate(id string) (coordinate, error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return coordinate{}, fmt.Errorf("invalid maven coordinate %q, expected groupId/artifactId", id)
	}

	return coordinate{GroupID: parts[0], ArtifactID: parts[1]}, nil
}

// Config configures an Adapter.
type Config struct {
	// SearchURL is the upstream Maven Central search API base, e.g.
	// https://search.maven.org/solrsearch/select.
	SearchURL string
	// BaseURLFallback is used to derive self-links when a request carries no
	// base-URL-deriving headers (tests, direct adapter access).
	BaseURLFallback string
	Cache           cache.Config
	Fetch           fetch.Config
	Logger          logger.Logger
}

func (c Config) withDefaults() Config {
	if c.SearchURL == "" {
		c.SearchURL = "https://search.maven.org/solrsearch/select"
	}

	if c.BaseURLFallback == "" {
		c.BaseURLFallback = "http://localhost"
	}

	if c.Logger == nil {
		c.Logger = logger.NewTestLogger()
	}

	return c
}

// Adapter implements xregistry.DataSource for the Java/Maven ecosystem.
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

// RefreshIndex populates the name index from a caller-supplied coordinate
// list. Unlike npm or PyPI, Maven Central exposes no single bulk catalog
// endpoint; its own incremental index export is a multi-gigabyte Lucene
// archive well outside this adapter's per-request scope, so the index is
// seeded from the adapter's configured seed list (and can be extended by
// any out-of-band crawl that calls this with fresher coordinates) rather
// than a single upstream fetch the way node/python refresh theirs.
func (a *Adapter) RefreshIndex(_ context.Context, coordinates []string) {
	builder := nameindex.NewBuilder()

	for _, c := range coordinates {
		builder.Add(c)
	}

	a.index.Refresh(builder)

	a.log.Info().Int("count", a.index.Size()).Msg("maven coordinate index refreshed")
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
				Singular: "mavenregistry",
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

// Groups implements xregistry.DataSource: maven-central is the adapter's sole,
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
		c, err := parseCoordinate(name)
		if err != nil {
			continue
		}

		art, err := a.fetchArtifact(ctx, c)
		if err != nil {
			continue
		}

		item, perr := a.resourceItem(art, flags.RequestContext)
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

	c, err := parseCoordinate(resourceID)
	if err != nil {
		return nil, problem.BadRequest(resourcePath(resourceID), err.Error())
	}

	art, err := a.fetchArtifact(ctx, c)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID), "artifact not found: "+err.Error())
	}

	item, perr := a.resourceItem(art, flags.RequestContext)
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

	c, err := parseCoordinate(resourceID)
	if err != nil {
		return nil, problem.BadRequest(resourcePath(resourceID)+"/meta", err.Error())
	}

	art, err := a.fetchArtifact(ctx, c)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID)+"/meta", "artifact not found: "+err.Error())
	}

	rc := flags.RequestContext
	resXID := resourceXID(resourceID)

	m, merr := xrid.NewMeta(a.entityConfig(resourceID, "", &rc), resXID, art.defaultVersion())
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

	c, err := parseCoordinate(resourceID)
	if err != nil {
		return nil, nil
	}

	art, err := a.fetchArtifact(ctx, c)
	if err != nil {
		return nil, nil
	}

	defaultVersion := art.defaultVersion()
	items := make([]xregistry.CollectionItem, 0, len(art.Versions))

	for _, v := range art.Versions {
		item, perr := a.versionItem(art, v, v == defaultVersion, flags.RequestContext)
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

	c, err := parseCoordinate(resourceID)
	if err != nil {
		return nil, problem.BadRequest(resourcePath(resourceID)+"/versions/"+versionID, err.Error())
	}

	art, err := a.fetchArtifact(ctx, c)
	if err != nil {
		return nil, problem.NotFound(resourcePath(resourceID)+"/versions/"+versionID, "artifact not found: "+err.Error())
	}

	if !art.hasVersion(versionID) {
		return nil, problem.NotFound(resourcePath(resourceID)+"/versions/"+versionID, "version not found")
	}

	item, perr := a.versionItem(art, versionID, versionID == art.defaultVersion(), flags.RequestContext)
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

// fetchArtifact resolves a groupId:artifactId coordinate's full version
// list through the metadata cache.
func (a *Adapter) fetchArtifact(ctx context.Context, c coordinate) (*mavenArtifact, error) {
	key := cache.Key{Adapter: groupType, EntityKind: "artifact", EntityKey: c.id()}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchArtifactUncached(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	return v.(*mavenArtifact), nil
}

func (a *Adapter) fetchArtifactUncached(ctx context.Context, c coordinate) (*mavenArtifact, error) {
	query := fmt.Sprintf(`g:"%s" AND a:"%s"`, c.GroupID, c.ArtifactID)

	q := url.Values{}
	q.Set("q", query)
	q.Set("core", "gav")
	q.Set("rows", "200")
	q.Set("wt", "json")

	reqURL := a.cfg.SearchURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	art := parseMavenSearch(c, resp.Body)
	if len(art.Versions) == 0 {
		return nil, cache.ErrNotFound
	}

	return art, nil
}

// mavenArtifact is the subset of Maven Central's search response this
// adapter projects onto xRegistry Resource/Version fields.
type mavenArtifact struct {
	Coordinate coordinate
	Packaging  string
	Versions   []string
	Timestamps map[string]int64
}

func (a *mavenArtifact) hasVersion(v string) bool {
	for _, existing := range a.Versions {
		if existing == v {
			return true
		}
	}

	return false
}

func (a *mavenArtifact) defaultVersion() string {
	return ecosystem.HighestSemver(a.Versions)
}

func parseMavenSearch(c coordinate, body []byte) *mavenArtifact {
	art := &mavenArtifact{Coordinate: c, Timestamps: map[string]int64{}}

	docs := gjson.GetBytes(body, "response.docs")

	docs.ForEach(func(_, doc gjson.Result) bool {
		v := doc.Get("v").String()
		if v == "" {
			return true
		}

		art.Versions = append(art.Versions, v)
		art.Timestamps[v] = doc.Get("timestamp").Int()

		if art.Packaging == "" {
			art.Packaging = doc.Get("p").String()
		}

		return true
	})

	return art
}

func (a *Adapter) resourceItem(art *mavenArtifact, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	defaultVersion := art.defaultVersion()
	id := art.Coordinate.id()

	resourceCfg := a.entityConfig(id, "/"+groupType+"/"+groupID+"/"+resourceType, &rc)
	resourceCfg.Name = art.Coordinate.ArtifactID

	r, err := xrid.NewResource(resourceCfg)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(id), err.Error())
	}

	r.VersionsCount = len(art.Versions)
	r.Extras = map[string]interface{}{
		"groupid":        art.Coordinate.GroupID,
		"artifactid":     art.Coordinate.ArtifactID,
		"packaging":      art.Packaging,
		"defaultversion": defaultVersion,
	}

	attrs := map[string]string{
		"name":       art.Coordinate.ArtifactID,
		"groupid":    art.Coordinate.GroupID,
		"artifactid": art.Coordinate.ArtifactID,
	}

	return xregistry.Entity{
		XIDValue: r.XID,
		IDValue:  r.ID,
		Attrs:    attrs,
		Value:    withExtras(r),
	}, nil
}

func (a *Adapter) versionItem(art *mavenArtifact, versionID string, isDefault bool, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	id := art.Coordinate.id()

	cfg := a.entityConfig(versionID, resourceXID(id), &rc)
	cfg.Name = art.Coordinate.ArtifactID

	ver, err := xrid.NewVersion(cfg, isDefault)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(resourcePath(id)+"/versions/"+versionID, err.Error())
	}

	ver.Extras = map[string]interface{}{
		"packaging": art.Packaging,
		"timestamp": art.Timestamps[versionID],
	}

	attrs := map[string]string{
		"name":      art.Coordinate.ArtifactID,
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
