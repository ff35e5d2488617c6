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

// Package problem implements RFC 9457 problem-details errors: a closed set
// of error kinds, each with a stable type URI, and the single serializer
// that is allowed to write a non-2xx response body.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is one of the closed set of error kinds this system ever returns.
type Kind string

const (
	KindBadRequest          Kind = "bad-request"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not-found"
	KindConflict            Kind = "conflict"
	KindUnprocessableEntity Kind = "unprocessable-entity"
	KindTooManyRequests     Kind = "too-many-requests"
	KindBadGateway          Kind = "bad-gateway"
	KindServiceUnavailable  Kind = "service-unavailable"
	KindInternalError       Kind = "internal-error"
)

// DefaultTypeBase prefixes the `type` field of every Details value.
const DefaultTypeBase = "https://xregistry-bridge.dev/problems"

var statusByKind = map[Kind]int{
	KindBadRequest:          http.StatusBadRequest,
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindConflict:            http.StatusConflict,
	KindUnprocessableEntity: http.StatusUnprocessableEntity,
	KindTooManyRequests:     http.StatusTooManyRequests,
	KindBadGateway:          http.StatusBadGateway,
	KindServiceUnavailable:  http.StatusServiceUnavailable,
	KindInternalError:       http.StatusInternalServerError,
}

var titleByKind = map[Kind]string{
	KindBadRequest:          "Bad Request",
	KindUnauthorized:        "Unauthorized",
	KindForbidden:           "Forbidden",
	KindNotFound:            "Not Found",
	KindConflict:            "Conflict",
	KindUnprocessableEntity: "Unprocessable Entity",
	KindTooManyRequests:     "Too Many Requests",
	KindBadGateway:          "Bad Gateway",
	KindServiceUnavailable:  "Service Unavailable",
	KindInternalError:       "Internal Server Error",
}

// Details is the RFC 9457 problem-details body.
type Details struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`

	kind Kind
}

// Error implements the error interface so a Details value can be returned
// and propagated like any other Go error.
func (d *Details) Error() string {
	if d.Detail != "" {
		return fmt.Sprintf("%s: %s", d.Title, d.Detail)
	}

	return d.Title
}

// Kind returns the closed error kind this Details value represents.
func (d *Details) Kind() Kind {
	return d.kind
}

// New builds a Details value for kind, with instance set to the originating
// request path.
func New(kind Kind, instance, detail string) *Details {
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
		kind = KindInternalError
	}

	return &Details{
		Type:     DefaultTypeBase + "/" + string(kind),
		Title:    titleByKind[kind],
		Status:   status,
		Detail:   detail,
		Instance: instance,
		kind:     kind,
	}
}

// WithData attaches implementation-defined extension fields and returns the
// same Details value for chaining.
func (d *Details) WithData(data map[string]interface{}) *Details {
	d.Data = data

	return d
}

// BadRequest, Unauthorized, Forbidden, NotFound, Conflict, Unprocessable,
// TooManyRequests, BadGateway, ServiceUnavailable, and Internal are
// convenience constructors for the ten kinds in the taxonomy.
func BadRequest(instance, detail string) *Details {
	return New(KindBadRequest, instance, detail)
}

func Unauthorized(instance, detail string) *Details {
	return New(KindUnauthorized, instance, detail)
}

func Forbidden(instance, detail string) *Details {
	return New(KindForbidden, instance, detail)
}

func NotFound(instance, detail string) *Details {
	return New(KindNotFound, instance, detail)
}

func Conflict(instance, detail string) *Details {
	return New(KindConflict, instance, detail)
}

func Unprocessable(instance, detail string) *Details {
	return New(KindUnprocessableEntity, instance, detail)
}

func TooManyRequests(instance, detail string) *Details {
	return New(KindTooManyRequests, instance, detail)
}

func BadGateway(instance, detail string) *Details {
	return New(KindBadGateway, instance, detail)
}

func ServiceUnavailable(instance, detail string) *Details {
	return New(KindServiceUnavailable, instance, detail)
}

func Internal(instance, detail string) *Details {
	return New(KindInternalError, instance, detail)
}

// WriteTo serializes d as application/problem+json onto w. This is the only
// code path in the system allowed to produce a non-2xx response body.
func (d *Details) WriteTo(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)

	return json.NewEncoder(w).Encode(d)
}

// FromError converts an arbitrary error into a Details value: a *Details is
// passed through unchanged, anything else becomes an internal-error with the
// error's message as the detail (never exposing caller-supplied secrets,
// since the caller controls what it wraps here).
func FromError(instance string, err error) *Details {
	if err == nil {
		return Internal(instance, "unknown error")
	}

	var d *Details
	if asDetails(err, &d) {
		return d
	}

	return Internal(instance, err.Error())
}

func asDetails(err error, target **Details) bool {
	d, ok := err.(*Details) //nolint:errorlint // Details is a concrete sentinel-like type, not wrapped
	if !ok {
		return false
	}

	*target = d

	return true
}
