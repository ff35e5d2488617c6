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

// Package oci implements the OCI container-image ecosystem adapter
// (spec.md §4.5): group-type containerregistries, one group per configured
// distribution-spec registry, resource-type images, a Resource per
// repository and a Version per tag, sourced from the OCI Distribution
// Specification's tags and manifest endpoints.
package oci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"

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
	groupType    = "containerregistries"
	resourceType = "images"
)

// manifestAccept lists the manifest media types this adapter asks for, in
// preference order: the OCI image manifest first, then the Docker v2
// schema2 manifest most registries still serve for older pushes.
var manifestAccept = strings.Join([]string{
	imgspecv1.MediaTypeImageManifest,
	"application/vnd.docker.distribution.manifest.v2+json",
}, ", ")

// Config configures an Adapter.
type Config struct {
	// RegistryURL is the upstream OCI Distribution Specification base, e.g.
	// https://registry-1.docker.io.
	RegistryURL string
	// GroupID names this registry's group within containerregistries, e.g.
	// "docker.io". Distinct Adapter instances are created per configured
	// registry, matching how the bridge treats each ecosystem as its own
	// group-type owner (spec.md §4.9) rather than one adapter multiplexing
	// many upstream registries.
	GroupID string
	// CatalogEnabled controls whether RefreshIndex calls the distribution
	// spec's /v2/_catalog endpoint. Most public registries (Docker Hub
	// included) disable or heavily rate-limit that endpoint, so by default
	// the index is instead seeded from a caller-supplied repository list,
	// the same resolution internal/ecosystem/maven and
	// internal/ecosystem/nuget record for their own catalog-less upstreams.
	CatalogEnabled bool
	// BaseURLFallback is used to derive self-links when a request carries no
	// base-URL-deriving headers (tests, direct adapter access).
	BaseURLFallback string
	Cache           cache.Config
	Fetch           fetch.Config
	Logger          logger.Logger
}

func (c Config) withDefaults() Config {
	if c.RegistryURL == "" {
		c.RegistryURL = "https://registry-1.docker.io"
	}

	if c.GroupID == "" {
		c.GroupID = "docker.io"
	}

	if c.BaseURLFallback == "" {
		c.BaseURLFallback = "http://localhost"
	}

	if c.Logger == nil {
		c.Logger = logger.NewTestLogger()
	}

	return c
}

// Adapter implements xregistry.DataSource for one OCI distribution-spec
// registry.
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

// RefreshIndex populates the name index. When CatalogEnabled is set it
// walks /v2/_catalog; otherwise it takes a caller-supplied repository-name
// seed list.
func (a *Adapter) RefreshIndex(ctx context.Context, repositories []string) error {
	builder := nameindex.NewBuilder()

	if !a.cfg.CatalogEnabled {
		for _, r := range repositories {
			builder.Add(r)
		}

		a.index.Refresh(builder)
		a.log.Info().Int("count", a.index.Size()).Msg("oci repository index seeded")

		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.RegistryURL+"/v2/_catalog", http.NoBody)
	if err != nil {
		return fmt.Errorf("building catalog request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetching oci catalog: %w", err)
	}

	var doc struct {
		Repositories []string `json:"repositories"`
	}

	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return fmt.Errorf("parsing oci catalog: %w", err)
	}

	for _, r := range doc.Repositories {
		builder.Add(r)
	}

	a.index.Refresh(builder)
	a.log.Info().Int("count", a.index.Size()).Msg("oci repository index refreshed")

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
				Singular: "containerregistry",
				Plural:   groupType,
				ResourceTypes: []xregistry.ResourceTypeModel{
					{
						Singular: "image",
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
		ID:      a.cfg.GroupID,
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

// Groups implements xregistry.DataSource: this adapter's configured
// registry is its sole, permanent group.
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
	if id != a.cfg.GroupID {
		return nil, problem.NotFound("/"+groupType+"/"+id, "unknown group "+id)
	}

	return a.buildGroup(flags.RequestContext)
}

func (a *Adapter) buildGroup(rc xrid.RequestContext) (*xrid.Group, *problem.Details) {
	g, err := xrid.NewGroup(a.entityConfig(a.cfg.GroupID, "/"+groupType, &rc))
	if err != nil {
		return nil, problem.Internal("/"+groupType+"/"+a.cfg.GroupID, err.Error())
	}

	g.ResourceType = resourceType
	g.ResourceURL = rc.EffectiveBaseURL() + "/" + groupType + "/" + a.cfg.GroupID + "/" + resourceType

	return g, nil
}

// Resources implements xregistry.DataSource. Per spec.md §4.3's mandatory
// name constraint, a request with no name-constraining filter returns no
// candidates at all.
func (a *Adapter) Resources(ctx context.Context, gID string, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	if gID != a.cfg.GroupID {
		return nil, nil
	}

	names := ecosystem.NameCandidates(a.index, flags.Request.Filters)
	if len(names) == 0 {
		return nil, nil
	}

	items := make([]xregistry.CollectionItem, 0, len(names))

	for _, name := range names {
		repo, err := a.fetchRepository(ctx, name)
		if err != nil {
			continue
		}

		item, perr := a.resourceItem(ctx, repo, flags.RequestContext)
		if perr != nil {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// Resource implements xregistry.DataSource: the default-tag manifest
// payload.
func (a *Adapter) Resource(ctx context.Context, gID, resourceID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if gID != a.cfg.GroupID {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown group "+gID)
	}

	repo, err := a.fetchRepository(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(a.resourcePath(resourceID), "repository not found: "+err.Error())
	}

	item, perr := a.resourceItem(ctx, repo, flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return item.Value, nil
}

// Meta implements xregistry.DataSource.
func (a *Adapter) Meta(ctx context.Context, gID, resourceID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if gID != a.cfg.GroupID {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown group "+gID)
	}

	repo, err := a.fetchRepository(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(a.resourcePath(resourceID)+"/meta", "repository not found: "+err.Error())
	}

	rc := flags.RequestContext
	resXID := a.resourceXID(resourceID)

	m, merr := xrid.NewMeta(a.entityConfig(resourceID, "", &rc), resXID, repo.defaultTag())
	if merr != nil {
		return nil, problem.Internal(a.resourcePath(resourceID)+"/meta", merr.Error())
	}

	return m, nil
}

// Versions implements xregistry.DataSource.
func (a *Adapter) Versions(ctx context.Context, gID, resourceID string, flags xregistry.Flags) ([]xregistry.CollectionItem, *problem.Details) {
	if gID != a.cfg.GroupID {
		return nil, nil
	}

	repo, err := a.fetchRepository(ctx, resourceID)
	if err != nil {
		return nil, nil
	}

	defaultTag := repo.defaultTag()
	items := make([]xregistry.CollectionItem, 0, len(repo.Tags))

	for _, tag := range repo.Tags {
		man, merr := a.fetchManifest(ctx, resourceID, tag)
		if merr != nil {
			continue
		}

		item, perr := a.versionItem(resourceID, tag, man, tag == defaultTag, flags.RequestContext)
		if perr != nil {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// Version implements xregistry.DataSource.
func (a *Adapter) Version(ctx context.Context, gID, resourceID, versionID string, flags xregistry.Flags) (interface{}, *problem.Details) {
	if gID != a.cfg.GroupID {
		return nil, problem.NotFound("/"+groupType+"/"+gID, "unknown group "+gID)
	}

	repo, err := a.fetchRepository(ctx, resourceID)
	if err != nil {
		return nil, problem.NotFound(a.resourcePath(resourceID)+"/versions/"+versionID, "repository not found: "+err.Error())
	}

	if !repo.hasTag(versionID) {
		return nil, problem.NotFound(a.resourcePath(resourceID)+"/versions/"+versionID, "tag not found")
	}

	man, merr := a.fetchManifest(ctx, resourceID, versionID)
	if merr != nil {
		return nil, problem.NotFound(a.resourcePath(resourceID)+"/versions/"+versionID, "manifest not found: "+merr.Error())
	}

	item, perr := a.versionItem(resourceID, versionID, man, versionID == repo.defaultTag(), flags.RequestContext)
	if perr != nil {
		return nil, perr
	}

	return item.Value, nil
}

func (a *Adapter) resourcePath(id string) string {
	return "/" + groupType + "/" + a.cfg.GroupID + "/" + resourceType + "/" + url.PathEscape(id)
}

func (a *Adapter) resourceXID(id string) string {
	return "/" + groupType + "/" + a.cfg.GroupID + "/" + resourceType + "/" + id
}

// fetchRepository resolves a repository's tag list through the metadata
// cache.
func (a *Adapter) fetchRepository(ctx context.Context, name string) (*ociRepository, error) {
	key := cache.Key{Adapter: groupType + ":" + a.cfg.GroupID, EntityKind: "repository", EntityKey: name}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchRepositoryUncached(ctx, name)
	})
	if err != nil {
		return nil, err
	}

	return v.(*ociRepository), nil
}

func (a *Adapter) fetchRepositoryUncached(ctx context.Context, name string) (*ociRepository, error) {
	reqURL := a.cfg.RegistryURL + "/v2/" + name + "/tags/list"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building tags request: %w", err)
	}

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	var doc struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}

	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("parsing tags list: %w", err)
	}

	if len(doc.Tags) == 0 {
		return nil, cache.ErrNotFound
	}

	sort.Strings(doc.Tags)

	return &ociRepository{Name: name, Tags: doc.Tags}, nil
}

// fetchManifest resolves a single tag's image manifest and config through
// the metadata cache, keyed separately from the repository's tag list since
// manifests are fetched per tag on demand.
func (a *Adapter) fetchManifest(ctx context.Context, repo, tag string) (*ociManifest, error) {
	key := cache.Key{Adapter: groupType + ":" + a.cfg.GroupID, EntityKind: "manifest", EntityKey: repo + ":" + tag}

	v, err := a.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return a.fetchManifestUncached(ctx, repo, tag)
	})
	if err != nil {
		return nil, err
	}

	return v.(*ociManifest), nil
}

func (a *Adapter) fetchManifestUncached(ctx context.Context, repo, tag string) (*ociManifest, error) {
	reqURL := a.cfg.RegistryURL + "/v2/" + repo + "/manifests/" + tag

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}

	req.Header.Set("Accept", manifestAccept)

	resp, err := a.fetch.Do(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, cache.ErrNotFound
		}

		return nil, err
	}

	var manifest imgspecv1.Manifest
	if err := json.Unmarshal(resp.Body, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	var totalSize int64
	for _, layer := range manifest.Layers {
		totalSize += layer.Size
	}

	return &ociManifest{
		Digest:      manifest.Config.Digest.String(),
		MediaType:   manifest.MediaType,
		ConfigSize:  manifest.Config.Size,
		LayersCount: len(manifest.Layers),
		TotalSize:   totalSize,
		Annotations: manifest.Annotations,
	}, nil
}

// ociRepository is the tag listing this adapter projects onto an xRegistry
// Resource's Version collection.
type ociRepository struct {
	Name string
	Tags []string
}

func (r *ociRepository) hasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// defaultTag prefers a conventional "latest" tag (OCI registries carry no
// semver ordering guarantee across tags the way package ecosystems do) and
// otherwise falls back to the lexicographically last tag.
func (r *ociRepository) defaultTag() string {
	for _, t := range r.Tags {
		if t == "latest" {
			return "latest"
		}
	}

	if len(r.Tags) == 0 {
		return ""
	}

	return r.Tags[len(r.Tags)-1]
}

// ociManifest is the subset of an OCI image manifest this adapter projects
// onto xRegistry Version fields.
type ociManifest struct {
	Digest      string
	MediaType   string
	ConfigSize  int64
	LayersCount int
	TotalSize   int64
	Annotations map[string]string
}

func (a *Adapter) resourceItem(ctx context.Context, repo *ociRepository, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	defaultTag := repo.defaultTag()

	resourceCfg := a.entityConfig(repo.Name, "/"+groupType+"/"+a.cfg.GroupID+"/"+resourceType, &rc)
	resourceCfg.Name = repo.Name

	r, err := xrid.NewResource(resourceCfg)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(a.resourcePath(repo.Name), err.Error())
	}

	r.VersionsCount = len(repo.Tags)

	extras := map[string]interface{}{
		"tagscount":  len(repo.Tags),
		"defaulttag": defaultTag,
	}

	if man, merr := a.fetchManifest(ctx, repo.Name, defaultTag); merr == nil {
		extras["mediatype"] = man.MediaType
		extras["size"] = humanize.Bytes(uint64(man.TotalSize))
		extras["sizebytes"] = man.TotalSize
		extras["layerscount"] = man.LayersCount
	}

	r.Extras = extras

	attrs := map[string]string{
		"name":       repo.Name,
		"defaulttag": defaultTag,
	}

	return xregistry.Entity{
		XIDValue: r.XID,
		IDValue:  r.ID,
		Attrs:    attrs,
		Value:    withExtras(r),
	}, nil
}

func (a *Adapter) versionItem(repoName, tag string, man *ociManifest, isDefault bool, rc xrid.RequestContext) (xregistry.Entity, *problem.Details) {
	cfg := a.entityConfig(tag, a.resourceXID(repoName), &rc)
	cfg.Name = repoName

	ver, err := xrid.NewVersion(cfg, isDefault)
	if err != nil {
		return xregistry.Entity{}, problem.Internal(a.resourcePath(repoName)+"/versions/"+tag, err.Error())
	}

	ver.Extras = map[string]interface{}{
		"digest":      man.Digest,
		"mediatype":   man.MediaType,
		"size":        humanize.Bytes(uint64(man.TotalSize)),
		"sizebytes":   man.TotalSize,
		"layerscount": man.LayersCount,
		"annotations": man.Annotations,
	}

	attrs := map[string]string{
		"name":      repoName,
		"versionid": tag,
		"digest":    man.Digest,
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
