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

package http

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// WithSwagger wraps next in a ServeMux that serves the Swagger UI and its
// backing doc.json under /swagger/, delegating every other path to next.
// instanceName must match a spec already registered with swag.Register
// (see internal/docs).
func WithSwagger(next http.Handler, instanceName string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.InstanceName(instanceName),
		httpSwagger.DeepLinking(true),
	))
	mux.Handle("/", next)

	return mux
}
