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

// Package xrid builds the shared xRegistry entity shape: Registry, Group,
// Resource, Version, and Meta values, each carrying xid/self/epoch/
// createdat/modifiedat per the containment model Registry -> Group ->
// Resource -> Version (+ Meta).
package xrid

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidEntity is returned when an id contains characters outside the
// allowed set, or appears in path position with an embedded "/" segment that
// would break xid/self correspondence.
var ErrInvalidEntity = errors.New("invalid entity")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._~:@/-]+$`)

// validateID enforces spec: id characters must be in [A-Za-z0-9._~:@-] with
// "/" permitted only in path position (i.e. as a segment separator, never
// leading/trailing/doubled).
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidEntity)
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: id %q contains disallowed characters", ErrInvalidEntity, id)
	}

	if strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") || strings.Contains(id, "//") {
		return fmt.Errorf("%w: id %q has invalid path-position slashes", ErrInvalidEntity, id)
	}

	return nil
}

// RequestContext carries the information needed to derive an effective base
// URL for self-links, per the header precedence rules: x-base-url, then
// x-forwarded-proto+x-forwarded-host, then Host+scheme.
type RequestContext struct {
	XBaseURL          string
	XForwardedProto   string
	XForwardedHost    string
	Host              string
	TLS               bool
}

// BaseURLFromRequest extracts a RequestContext from an *http.Request.
func BaseURLFromRequest(r *http.Request) RequestContext {
	return RequestContext{
		XBaseURL:        r.Header.Get("X-Base-Url"),
		XForwardedProto: r.Header.Get("X-Forwarded-Proto"),
		XForwardedHost:  r.Header.Get("X-Forwarded-Host"),
		Host:            r.Host,
		TLS:             r.TLS != nil,
	}
}

// EffectiveBaseURL resolves the base URL per the documented precedence.
func (rc RequestContext) EffectiveBaseURL() string {
	if rc.XBaseURL != "" {
		return strings.TrimSuffix(rc.XBaseURL, "/")
	}

	if rc.XForwardedProto != "" && rc.XForwardedHost != "" {
		return rc.XForwardedProto + "://" + rc.XForwardedHost
	}

	scheme := "http"
	if rc.TLS {
		scheme = "https"
	}

	return scheme + "://" + rc.Host
}

// Config is the single configuration record every entity constructor takes.
type Config struct {
	ID            string
	ParentXID     string
	BaseURL       string
	Name          string
	Description   string
	Labels        map[string]string
	Documentation string
	Epoch         int64
	CreatedAt     time.Time
	ModifiedAt    time.Time
	Request       *RequestContext
}

func (c Config) resolveBaseURL() string {
	if c.Request != nil {
		return c.Request.EffectiveBaseURL()
	}

	return strings.TrimSuffix(c.BaseURL, "/")
}

func (c Config) resolveEpoch() int64 {
	if c.Epoch == 0 {
		return 1
	}

	return c.Epoch
}

func (c Config) resolveTimestamps() (createdAt, modifiedAt time.Time) {
	now := time.Now().UTC()

	createdAt = c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	modifiedAt = c.ModifiedAt
	if modifiedAt.IsZero() {
		modifiedAt = createdAt
	}

	return createdAt, modifiedAt
}

func joinXID(parentXID, id string) string {
	if parentXID == "" || parentXID == "/" {
		return "/" + id
	}

	return strings.TrimSuffix(parentXID, "/") + "/" + id
}

// Registry is the singleton per-process root entity.
type Registry struct {
	RegistryID  string               `json:"registryid"`
	SpecVersion string               `json:"specversion"`
	Self        string               `json:"self"`
	XID         string               `json:"xid"`
	Epoch       int64                `json:"epoch"`
	CreatedAt   string               `json:"createdat"`
	ModifiedAt  string               `json:"modifiedat"`
	GroupTypes  map[string]GroupRef  `json:"-"`
}

// GroupRef is the per-group-type url/count pair mounted on the Registry, and
// optionally an inlined map of groups.
type GroupRef struct {
	URL     string                 `json:"url"`
	Count   int                    `json:"count"`
	Inlined map[string]interface{} `json:"inlined,omitempty"`
}

// SpecVersion is the constant xRegistry protocol version this system speaks.
const SpecVersion = "1.0-rc2"

// MarshalJSON flattens GroupTypes onto the document per the xRegistry wire
// shape: a <grouptype>url/<grouptype>count pair (plus an inlined
// <grouptype> map when the caller requested inlining) alongside the fixed
// registry fields, rather than a nested "grouptypes" object.
func (r Registry) MarshalJSON() ([]byte, error) {
	type alias Registry

	out := map[string]interface{}{}

	fixed, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fixed, &out); err != nil {
		return nil, err
	}

	for groupType, ref := range r.GroupTypes {
		out[groupType+"url"] = ref.URL
		out[groupType+"count"] = ref.Count

		if ref.Inlined != nil {
			out[groupType] = ref.Inlined
		}
	}

	return json.Marshal(out)
}

// NewRegistry constructs the singleton Registry entity.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := validateID(cfg.ID); err != nil {
		return nil, err
	}

	base := cfg.resolveBaseURL()
	createdAt, modifiedAt := cfg.resolveTimestamps()

	return &Registry{
		RegistryID:  cfg.ID,
		SpecVersion: SpecVersion,
		Self:        base + "/",
		XID:         "/",
		Epoch:       cfg.resolveEpoch(),
		CreatedAt:   createdAt.Format(time.RFC3339),
		ModifiedAt:  modifiedAt.Format(time.RFC3339),
		GroupTypes:  map[string]GroupRef{},
	}, nil
}

// Group is a single group instance under a group-type (e.g.
// noderegistries/npmjs.org).
type Group struct {
	ID           string `json:"id"`
	Self         string `json:"self"`
	XID          string `json:"xid"`
	Epoch        int64  `json:"epoch"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	CreatedAt    string `json:"createdat"`
	ModifiedAt   string `json:"modifiedat"`
	ResourceType string `json:"-"`
	ResourceURL  string `json:"-"`
	ResourceCnt  int    `json:"-"`
}

// NewGroup constructs a Group entity whose xid is parentXID/id.
func NewGroup(cfg Config) (*Group, error) {
	if err := validateID(cfg.ID); err != nil {
		return nil, err
	}

	base := cfg.resolveBaseURL()
	xid := joinXID(cfg.ParentXID, cfg.ID)
	createdAt, modifiedAt := cfg.resolveTimestamps()

	return &Group{
		ID:          cfg.ID,
		Self:        base + xid,
		XID:         xid,
		Epoch:       cfg.resolveEpoch(),
		Name:        cfg.Name,
		Description: cfg.Description,
		CreatedAt:   createdAt.Format(time.RFC3339),
		ModifiedAt:  modifiedAt.Format(time.RFC3339),
	}, nil
}

// Resource is a package/image/server: the default-version payload plus
// resource-scoped bookkeeping (versionsurl/versionscount).
type Resource struct {
	ID            string                 `json:"id"`
	Self          string                 `json:"self"`
	XID           string                 `json:"xid"`
	Epoch         int64                  `json:"epoch"`
	Name          string                 `json:"name,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Labels        map[string]string      `json:"labels,omitempty"`
	CreatedAt     string                 `json:"createdat"`
	ModifiedAt    string                 `json:"modifiedat"`
	VersionsURL   string                 `json:"versionsurl"`
	VersionsCount int                    `json:"versionscount"`
	Extras        map[string]interface{} `json:"-"`
}

// NewResource constructs a Resource entity.
func NewResource(cfg Config) (*Resource, error) {
	if err := validateID(cfg.ID); err != nil {
		return nil, err
	}

	base := cfg.resolveBaseURL()
	xid := joinXID(cfg.ParentXID, cfg.ID)
	createdAt, modifiedAt := cfg.resolveTimestamps()

	return &Resource{
		ID:            cfg.ID,
		Self:          base + xid,
		XID:           xid,
		Epoch:         cfg.resolveEpoch(),
		Name:          cfg.Name,
		Description:   cfg.Description,
		Documentation: cfg.Documentation,
		Labels:        cfg.Labels,
		CreatedAt:     createdAt.Format(time.RFC3339),
		ModifiedAt:    modifiedAt.Format(time.RFC3339),
		VersionsURL:   base + xid + "/versions",
	}, nil
}

// Version is a concrete release of a Resource: everything a Resource has
// plus a versionid unique within the Resource and an isdefault flag.
type Version struct {
	Resource
	VersionID string `json:"versionid"`
	IsDefault bool   `json:"isdefault"`
}

// NewVersion constructs a Version entity nested under a Resource's xid.
func NewVersion(cfg Config, isDefault bool) (*Version, error) {
	if err := validateID(cfg.ID); err != nil {
		return nil, err
	}

	base := cfg.resolveBaseURL()
	xid := joinXID(cfg.ParentXID, "versions/"+cfg.ID)
	createdAt, modifiedAt := cfg.resolveTimestamps()

	return &Version{
		Resource: Resource{
			ID:            cfg.ID,
			Self:          base + xid,
			XID:           xid,
			Epoch:         cfg.resolveEpoch(),
			Name:          cfg.Name,
			Description:   cfg.Description,
			Documentation: cfg.Documentation,
			Labels:        cfg.Labels,
			CreatedAt:     createdAt.Format(time.RFC3339),
			ModifiedAt:    modifiedAt.Format(time.RFC3339),
		},
		VersionID: cfg.ID,
		IsDefault: isDefault,
	}, nil
}

// Meta is the sibling of a Resource's default-version payload, carrying
// resource-scoped metadata (default version pointer) without mixing into it.
type Meta struct {
	XID                  string `json:"xid"`
	Self                 string `json:"self"`
	Epoch                int64  `json:"epoch"`
	CreatedAt            string `json:"createdat"`
	ModifiedAt           string `json:"modifiedat"`
	ReadOnly             bool   `json:"readonly"`
	DefaultVersionID     string `json:"defaultversionid,omitempty"`
	DefaultVersionSticky bool   `json:"defaultversionsticky,omitempty"`
	DefaultVersionURL    string `json:"defaultversionurl,omitempty"`
}

// NewMeta constructs the Meta entity for a Resource; resourceXID is the
// owning Resource's xid (Meta's own xid is resourceXID + "/meta").
func NewMeta(cfg Config, resourceXID, defaultVersionID string) (*Meta, error) {
	base := cfg.resolveBaseURL()
	xid := resourceXID + "/meta"
	createdAt, modifiedAt := cfg.resolveTimestamps()

	m := &Meta{
		XID:        xid,
		Self:       base + xid,
		Epoch:      cfg.resolveEpoch(),
		CreatedAt:  createdAt.Format(time.RFC3339),
		ModifiedAt: modifiedAt.Format(time.RFC3339),
		ReadOnly:   true,
	}

	if defaultVersionID != "" {
		m.DefaultVersionID = defaultVersionID
		m.DefaultVersionURL = base + resourceXID + "/versions/" + defaultVersionID
	}

	return m, nil
}
