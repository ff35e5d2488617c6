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

package xregistry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xregistry-bridge/bridge/internal/filter"
	"github.com/xregistry-bridge/bridge/internal/problem"
	httpmw "github.com/xregistry-bridge/bridge/pkg/http"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

// Options configures a Server.
type Options struct {
	// MaxLimit caps the page size a client may request; 0 means unbounded.
	MaxLimit int
	// HandlerDeadline bounds one request's total handling time.
	HandlerDeadline time.Duration
	CORS            httpmw.CORSConfig
	Logger          logger.Logger
}

func (o Options) withDefaults() Options {
	if o.HandlerDeadline <= 0 {
		o.HandlerDeadline = 30 * time.Second
	}

	if o.Logger == nil {
		o.Logger = logger.NewTestLogger()
	}

	return o
}

// Server mounts one ecosystem adapter's DataSource as the fixed xRegistry
// operation set (spec §4.4), handling flag parsing, filter/sort/pagination,
// and problem-details error translation uniformly across every adapter.
type Server struct {
	router *mux.Router
	source DataSource
	opts   Options
}

// NewServer builds the route table for source.
func NewServer(source DataSource, opts Options) *Server {
	opts = opts.withDefaults()

	s := &Server{source: source, opts: opts}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	r.HandleFunc("/", s.withOptions(s.handleRoot)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/model", s.withOptions(s.handleModel)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/capabilities", s.withOptions(s.handleCapabilities)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}", s.withOptions(s.handleGroups)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}/{groupid}", s.withOptions(s.handleGroup)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}/{groupid}/{resourcetype}", s.withOptions(s.handleResources)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}/{groupid}/{resourcetype}/{resourceid}", s.withOptions(s.handleResource)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}/{groupid}/{resourcetype}/{resourceid}/meta", s.withOptions(s.handleMeta)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}/{groupid}/{resourcetype}/{resourceid}/versions", s.withOptions(s.handleVersions)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/{grouptype}/{groupid}/{resourcetype}/{resourceid}/versions/{versionid}", s.withOptions(s.handleVersion)).Methods(http.MethodGet, http.MethodOptions)

	s.router = r

	return s
}

// Handler returns the fully wrapped http.Handler: CORS, request-id, logging,
// and deadline middleware around the route table built in NewServer.
func (s *Server) Handler() http.Handler {
	return WithMiddleware(s.router, s.opts)
}

// withOptions short-circuits an OPTIONS request to this route with 204,
// per spec §4.10 ("OPTIONS always succeeds for registered routes").
func (s *Server) withOptions(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, problem.NotFound(r.URL.Path, "no such xRegistry path"))
}

// handleMethodNotAllowed serves the spec §4.10 405 for non-GET on any
// xRegistry resource path. 405 sits outside the ten-kind problem taxonomy
// (§4.2 enumerates it exhaustively), so this writes an RFC 9457 body
// directly rather than stretching New's closed Kind set to cover it.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, OPTIONS")

	body := &problem.Details{
		Type:     problem.DefaultTypeBase + "/method-not-allowed",
		Title:    "Method Not Allowed",
		Status:   http.StatusMethodNotAllowed,
		Detail:   r.Method + " is not supported on " + r.URL.Path,
		Instance: r.URL.Path,
	}

	writeProblem(w, body)
}

// checkTypes verifies the path's {grouptype} (and, if present,
// {resourcetype}) matches the one this adapter declares; a mismatch is a
// 404, since the adapter genuinely mounts nothing else.
func (s *Server) checkTypes(w http.ResponseWriter, r *http.Request) bool {
	vars := mux.Vars(r)

	if gt, ok := vars["grouptype"]; ok && gt != s.source.GroupType() {
		writeProblem(w, problem.NotFound(r.URL.Path, "unknown group-type "+gt))
		return false
	}

	if rt, ok := vars["resourcetype"]; ok && rt != s.source.ResourceType() {
		writeProblem(w, problem.NotFound(r.URL.Path, "unknown resource-type "+rt))
		return false
	}

	return true
}

func (s *Server) parseFlags(w http.ResponseWriter, r *http.Request) (Flags, bool) {
	flags, perr := ParseFlags(r)
	if perr != nil {
		writeProblem(w, perr)
		return Flags{}, false
	}

	return flags, true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	doc, perr := s.source.Root(r.Context(), flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Model())
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Capabilities())
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	items, perr := s.source.Groups(r.Context(), flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	s.writeCollection(w, r, flags, items, false)
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	groupID := mux.Vars(r)["groupid"]

	doc, perr := s.source.Group(r.Context(), groupID, flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	groupID := mux.Vars(r)["groupid"]

	items, perr := s.source.Resources(r.Context(), groupID, flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	s.writeCollection(w, r, flags, items, true)
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)

	doc, perr := s.source.Resource(r.Context(), vars["groupid"], vars["resourceid"], flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)

	doc, perr := s.source.Meta(r.Context(), vars["groupid"], vars["resourceid"], flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)

	items, perr := s.source.Versions(r.Context(), vars["groupid"], vars["resourceid"], flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	s.writeCollection(w, r, flags, items, false)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !s.checkTypes(w, r) {
		return
	}

	flags, ok := s.parseFlags(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)

	doc, perr := s.source.Version(r.Context(), vars["groupid"], vars["resourceid"], vars["versionid"], flags)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// writeCollection runs items through the filter/sort/pagination engine and
// writes the result as a JSON object keyed by each item's own id, plus the
// RFC 5988 Link header when pagination was requested.
func (s *Server) writeCollection(w http.ResponseWriter, r *http.Request, flags Flags, items []CollectionItem, nameIndexed bool) {
	entities := make([]filter.Entity, len(items))
	for i, item := range items {
		entities[i] = item
	}

	opts := filter.Options{
		NameIndexed: nameIndexed,
		MaxLimit:    s.opts.MaxLimit,
		BaseURL:     flags.RequestContext.EffectiveBaseURL() + r.URL.String(),
	}

	result := filter.ApplyCollection(entities, flags.Request, opts)

	if result.Notice != "" {
		w.Header().Set(filter.NoticeHeader, result.Notice)
	}

	if result.Links != "" {
		w.Header().Set("Link", result.Links)
	}

	body := make(map[string]interface{}, len(result.Page))

	for _, e := range result.Page {
		item, ok := e.(CollectionItem)
		if !ok {
			continue
		}

		body[item.ItemID()] = item
	}

	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// The status line and headers are already flushed; nothing left to
		// do but let the client see a truncated body.
		return
	}
}

func writeProblem(w http.ResponseWriter, p *problem.Details) {
	_ = p.WriteTo(w)
}
