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
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xregistry-bridge/bridge/pkg/common"
	httpmw "github.com/xregistry-bridge/bridge/pkg/http"
)

// WithMiddleware wraps next with the ordered chain spec §4.10 requires:
// CORS, request-id assignment, request logging, and a per-request handler
// deadline. Flag parsing and the error handler live inside each route
// handler itself (they need the parsed route vars and DataSource error, so
// there is nothing generic left for a middleware stage to do for them).
func WithMiddleware(next http.Handler, opts Options) http.Handler {
	h := withDeadline(next, opts.HandlerDeadline)
	h = withRequestLogging(h, opts)
	h = withRequestID(h)

	return httpmw.CommonMiddleware(h, opts.CORS)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", id)
		ctx := common.WithRequestID(r.Context(), id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withRequestLogging(next http.Handler, opts Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		requestID, _ := common.GetRequestID(r.Context())

		opts.Logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func withDeadline(next http.Handler, deadline time.Duration) http.Handler {
	if deadline <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), deadline)
		defer cancel()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written so request logging can
// report it without every handler threading it through explicitly.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
