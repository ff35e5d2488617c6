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

// Package xregistry is the shared adapter HTTP framework: route mounting
// for the fixed xRegistry operation set, the request-flags parser, the
// middleware chain, and the central error handler. Each ecosystem adapter
// (internal/ecosystem/*) supplies a DataSource; this package owns the
// transport and the spec-mandated wire shape around it.
package xregistry

// NestedType describes one nested type declared under a group-type's
// resource-type in a /model document (currently only "versions").
type NestedType struct {
	Singular string `json:"singular"`
	Plural   string `json:"plural"`
}

// ResourceTypeModel is one resource-type entry in a group-type's model.
type ResourceTypeModel struct {
	Singular string       `json:"singular"`
	Plural   string       `json:"plural"`
	Nested   []NestedType `json:"nested,omitempty"`
}

// GroupTypeModel is one group-type entry in a /model document. Each adapter
// declares exactly one of these, per spec §4.4.
type GroupTypeModel struct {
	Singular      string              `json:"singular"`
	Plural        string              `json:"plural"`
	ResourceTypes []ResourceTypeModel `json:"resourcetypes"`
}

// ModelDocument is the /model response: a map from group-type plural name to
// its model. An adapter's document has exactly one key; the Bridge's
// composite /model is the union of every adapter's document.
type ModelDocument struct {
	GroupTypes map[string]GroupTypeModel `json:"grouptypes"`
}

// Capabilities is the /capabilities response.
type Capabilities struct {
	Pagination   bool     `json:"pagination"`
	Filtering    bool     `json:"filtering"`
	Sort         bool     `json:"sort"`
	Inline       bool     `json:"inline"`
	SpecVersions []string `json:"specversions"`
	APIs         []string `json:"apis"`
	Mutable      bool     `json:"mutable"`
	Flags        []string `json:"flags,omitempty"`
}

// DefaultCapabilities returns the capability set every read-only ecosystem
// adapter in this system declares.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Pagination:   true,
		Filtering:    true,
		Sort:         true,
		Inline:       true,
		SpecVersions: []string{"1.0-rc2"},
		APIs:         []string{"/model", "/capabilities"},
		Mutable:      false,
		Flags:        []string{"doc", "collections", "epoch"},
	}
}
