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

	"github.com/xregistry-bridge/bridge/internal/filter"
)

// CollectionItem is what a DataSource hands back for any collection (groups,
// resources, versions): filterable/sortable via filter.Entity, keyed by its
// own id for the collection's JSON object, and marshals as the wire entity.
type CollectionItem interface {
	filter.Entity
	ItemID() string
	json.Marshaler
}

// Entity adapts a concrete xRegistry entity value (an *xrid.Group,
// *xrid.Resource, *xrid.Version, or an ecosystem adapter's own variant of
// one) into a CollectionItem, so neither the filter engine nor the
// collection handler needs to know the concrete type. Attrs is the flattened
// attribute map the filter engine evaluates predicates against; Value is
// marshaled verbatim as the entity's own JSON shape.
type Entity struct {
	XIDValue string
	IDValue  string
	Attrs    map[string]string
	Value    interface{}
}

// XID implements filter.Entity.
func (e Entity) XID() string { return e.XIDValue }

// Attribute implements filter.Entity.
func (e Entity) Attribute(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// ItemID implements CollectionItem.
func (e Entity) ItemID() string { return e.IDValue }

// MarshalJSON implements json.Marshaler by delegating to the wrapped value.
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Value)
}
