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

// Package http holds HTTP middleware shared by the bridge and its adapters.
package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// CORSConfig controls the Access-Control-* headers CommonMiddleware emits.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// CommonMiddleware handles CORS and other common HTTP concerns.
func CommonMiddleware(next http.Handler, corsConfig CORSConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// If there's no Origin header, this isn't a CORS request - let it through
		if origin == "" {
			next.ServeHTTP(w, r)

			return
		}

		allowed := false

		for _, allowedOrigin := range corsConfig.AllowedOrigins {
			if allowedOrigin == origin || allowedOrigin == "*" {
				allowed = true

				w.Header().Set("Access-Control-Allow-Origin", origin)

				break
			}
		}

		if !allowed {
			log.Printf("CORS: Origin %s not allowed. Allowed origins: %v", origin, corsConfig.AllowedOrigins)
			http.Error(w, "Origin not allowed", http.StatusForbidden)

			return
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if corsConfig.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Credentials", "false")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)

			return
		}

		next.ServeHTTP(w, r)
	})
}

type APIKeyOptions struct {
	// API key to validate against
	APIKey string
	// Paths to exclude from API key authentication (prefix-based)
	ExcludePaths []string
	// Whether to log unauthorized attempts
	LogUnauthorized bool
}

// NewAPIKeyOptions creates a new options struct with defaults.
func NewAPIKeyOptions(apiKey string) APIKeyOptions {
	return APIKeyOptions{
		APIKey:          apiKey,
		ExcludePaths:    []string{"/swagger/", "/api-docs"},
		LogUnauthorized: true,
	}
}

// APIKeyMiddleware checks for a valid API key on requests,
// excluding specified paths from authentication.
func APIKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	opts := NewAPIKeyOptions(apiKey)

	return APIKeyMiddlewareWithOptions(opts)
}

// APIKeyMiddlewareWithOptions checks an incoming request against a configured
// API key, accepted either as `X-API-Key`, `?api_key=`, or an `Authorization:
// Bearer` header — the three forms a registry client is likely to already be
// sending. The client's own credential is never forwarded to any adapter; the
// bridge substitutes its own upstream credentials per spec.
func APIKeyMiddlewareWithOptions(opts APIKeyOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			for _, excludePath := range opts.ExcludePaths {
				if strings.HasPrefix(path, excludePath) {
					next.ServeHTTP(w, r)

					return
				}
			}

			requestKey := extractClientKey(r)

			if requestKey == "" || (opts.APIKey != "" && requestKey != opts.APIKey) {
				if opts.LogUnauthorized {
					log.Printf("unauthorized API access attempt: %s %s", r.Method, r.URL.Path)
				}

				writeUnauthorized(w)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractClientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return r.URL.Query().Get("api_key")
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type":   "about:blank",
		"title":  "unauthorized",
		"status": http.StatusUnauthorized,
		"detail": "missing or invalid API key",
	})
}
