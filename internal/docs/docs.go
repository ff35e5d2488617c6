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

// Package docs registers the Swagger/OpenAPI documents served by the bridge
// and adapter HTTP surfaces under /swagger/doc.json. It plays the role a
// swag-generated docs.go would play, minus the codegen step: the document
// bodies below are maintained by hand against the routes in
// internal/bridge/server.go and internal/xregistry/server.go.
package docs

import "github.com/swaggo/swag"

const bridgeTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/": {
			"get": {
				"summary": "Registry root document",
				"description": "Merged registry document: self link, registryid, and one groups-collection link per group-type the bridge has learned during handshake.",
				"produces": ["application/json"],
				"responses": {"200": {"description": "OK"}}
			}
		},
		"/model": {
			"get": {
				"summary": "Merged model document",
				"description": "Union of every handshaken adapter's /model document, keyed by group-type.",
				"produces": ["application/json"],
				"responses": {"200": {"description": "OK"}}
			}
		},
		"/capabilities": {
			"get": {
				"summary": "Merged capabilities document",
				"produces": ["application/json"],
				"responses": {"200": {"description": "OK"}}
			}
		},
		"/health": {
			"get": {
				"summary": "Aggregated adapter health",
				"description": "Per-adapter reachability, checked against each adapter's own /health endpoint.",
				"produces": ["application/json"],
				"responses": {"200": {"description": "OK"}, "503": {"description": "one or more adapters unreachable"}}
			}
		},
		"/{grouptype}": {
			"get": {
				"summary": "Forwarded to the adapter owning grouptype",
				"description": "Every other path is routed by its leading group-type segment to the adapter that registered it during handshake and proxied through unchanged.",
				"produces": ["application/json"],
				"parameters": [{"name": "grouptype", "in": "path", "required": true, "type": "string"}],
				"responses": {"200": {"description": "OK"}, "404": {"description": "unknown group-type"}}
			}
		}
	}
}`

const adapterTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/": {
			"get": {"summary": "Registry root document", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
		},
		"/model": {
			"get": {"summary": "Model document for this ecosystem's single group-type", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
		},
		"/capabilities": {
			"get": {"summary": "Capabilities document: pagination, filter, and sort support", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
		},
		"/{grouptype}": {
			"get": {"summary": "List groups", "produces": ["application/json"], "parameters": [{"name": "grouptype", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
		},
		"/{grouptype}/{groupid}": {
			"get": {"summary": "Get one group", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}}
		},
		"/{grouptype}/{groupid}/{resourcetype}": {
			"get": {"summary": "List resources; empty unless the request carries a name filter", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
		},
		"/{grouptype}/{groupid}/{resourcetype}/{resourceid}": {
			"get": {"summary": "Get one resource, inlined at its default version", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}}
		},
		"/{grouptype}/{groupid}/{resourcetype}/{resourceid}/meta": {
			"get": {"summary": "Resource metadata, including defaultversionid", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
		},
		"/{grouptype}/{groupid}/{resourcetype}/{resourceid}/versions": {
			"get": {"summary": "List versions", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
		},
		"/{grouptype}/{groupid}/{resourcetype}/{resourceid}/versions/{versionid}": {
			"get": {"summary": "Get one version", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}}
		}
	}
}`

// BridgeInfo is the registered spec for the aggregation bridge's own HTTP
// surface (internal/bridge/server.go).
var BridgeInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "xRegistry Bridge API",
	Description:      "Unified read-only catalog API aggregating Node, Python, Java, .NET, OCI, and MCP ecosystem adapters behind one xRegistry surface.",
	InfoInstanceName: "bridge",
	SwaggerTemplate:  bridgeTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

// AdapterInfo is the registered spec shared by every per-ecosystem adapter
// process (internal/xregistry/server.go); the operation set is identical
// across ecosystems, only the group-type name served at runtime differs.
var AdapterInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "xRegistry Ecosystem Adapter API",
	Description:      "A single ecosystem's read-only xRegistry surface: one group-type, its groups, resources, and versions.",
	InfoInstanceName: "adapter",
	SwaggerTemplate:  adapterTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(BridgeInfo.InstanceName(), BridgeInfo)
	swag.Register(AdapterInfo.InstanceName(), AdapterInfo)
}
