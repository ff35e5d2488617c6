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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xregistry-bridge/bridge/internal/problem"
	httpmw "github.com/xregistry-bridge/bridge/pkg/http"
)

// Server is the bridge's own composite HTTP surface: a merged GET /, GET
// /model, GET /capabilities, GET /health, and a dispatcher that forwards
// every other request to the adapter that owns its leading group-type path
// segment.
type Server struct {
	bridge *Bridge
	router *mux.Router
}

// NewServer builds the bridge's route table over an already-handshaken
// Bridge.
func NewServer(b *Bridge) *Server {
	s := &Server{bridge: b}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/model", s.handleModel).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/capabilities", s.handleCapabilities).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.PathPrefix("/{grouptype}").HandlerFunc(s.handleDispatch)

	s.router = r

	return s
}

// Handler returns the fully wrapped http.Handler: CORS and, when the bridge
// is configured with a ClientAPIKey, client-facing API-key authentication
// around the route table built in NewServer. The client's own credential is
// validated here and never reaches handleDispatch's forwarding logic, which
// always substitutes the bridge's own per-adapter credential instead.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router

	if s.bridge.cfg.ClientAPIKey != "" {
		mw := httpmw.APIKeyMiddlewareWithOptions(httpmw.NewAPIKeyOptions(s.bridge.cfg.ClientAPIKey))
		h = mw(h)
	}

	return httpmw.CommonMiddleware(h, s.bridge.cfg.CORS)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, problem.NotFound(r.URL.Path, "no such group-type on this bridge"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	doc, err := s.bridge.Root(baseURL(r))
	if err != nil {
		writeProblem(w, problem.Internal(r.URL.Path, err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, s.bridge.Model())
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, s.bridge.Capabilities())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	report := s.bridge.Health(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, report)
}

// handleDispatch routes a request to the adapter that owns its leading
// path segment. An unmatched group-type, or a bridge that hasn't finished
// Handshake, is a 404 and 503 respectively — neither ever reaches an
// adapter.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if !s.bridge.Ready() {
		writeProblem(w, &problem.Details{
			Type:   problem.DefaultTypeBase + "/service-unavailable",
			Title:  "Service Unavailable",
			Status: http.StatusServiceUnavailable,
			Detail: "bridge has not completed its adapter handshake",
		})

		return
	}

	groupType := mux.Vars(r)["grouptype"]

	s.bridge.mu.RLock()
	reg, ok := s.bridge.routes[groupType]
	s.bridge.mu.RUnlock()

	if !ok {
		writeProblem(w, problem.NotFound(r.URL.Path, "unknown group-type "+groupType))
		return
	}

	reg.proxy.ServeHTTP(w, r)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = h
	}

	return scheme + "://" + host
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		return
	}
}

func writeProblem(w http.ResponseWriter, p *problem.Details) {
	_ = p.WriteTo(w)
}
