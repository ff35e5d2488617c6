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

	"github.com/xregistry-bridge/bridge/internal/problem"
)

// DataSource is what one ecosystem adapter (internal/ecosystem/*) implements
// to plug into this package's HTTP framework. An adapter declares exactly
// one group-type and one resource-type (spec §4.4); the framework owns
// routing, flag parsing, filter/sort/pagination, and error translation
// around it.
type DataSource interface {
	// GroupType is the adapter's single mounted group-type, e.g.
	// "noderegistries".
	GroupType() string
	// ResourceType is the adapter's single resource-type, e.g. "packages".
	ResourceType() string

	// Model returns the adapter's /model contribution.
	Model() ModelDocument
	// Capabilities returns the adapter's /capabilities document.
	Capabilities() Capabilities

	// Root returns the adapter's own sub-registry document for GET /.
	Root(ctx context.Context, flags Flags) (interface{}, *problem.Details)

	// Groups returns the (typically singleton) groups collection.
	Groups(ctx context.Context, flags Flags) ([]CollectionItem, *problem.Details)
	// Group returns one group by id.
	Group(ctx context.Context, groupID string, flags Flags) (interface{}, *problem.Details)

	// Resources returns the resources collection for one group. This is the
	// name-indexed collection: the mandatory name constraint (spec §4.3)
	// applies here.
	Resources(ctx context.Context, groupID string, flags Flags) ([]CollectionItem, *problem.Details)
	// Resource returns one resource's default-version payload.
	Resource(ctx context.Context, groupID, resourceID string, flags Flags) (interface{}, *problem.Details)
	// Meta returns the Meta entity sibling of a resource.
	Meta(ctx context.Context, groupID, resourceID string, flags Flags) (interface{}, *problem.Details)

	// Versions returns the versions collection for one resource.
	Versions(ctx context.Context, groupID, resourceID string, flags Flags) ([]CollectionItem, *problem.Details)
	// Version returns one version by id.
	Version(ctx context.Context, groupID, resourceID, versionID string, flags Flags) (interface{}, *problem.Details)
}
