package xregistry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xregistry-bridge/bridge/internal/filter"
	"github.com/xregistry-bridge/bridge/internal/problem"
)

// fakeSource is a minimal DataSource backed by a fixed set of resources, for
// exercising route dispatch and the filter/pagination wiring without any
// real ecosystem adapter.
type fakeSource struct {
	resources []CollectionItem
}

func (f *fakeSource) GroupType() string    { return "noderegistries" }
func (f *fakeSource) ResourceType() string { return "packages" }

func (f *fakeSource) Model() ModelDocument {
	return ModelDocument{GroupTypes: map[string]GroupTypeModel{
		"noderegistries": {Singular: "noderegistry", Plural: "noderegistries"},
	}}
}

func (f *fakeSource) Capabilities() Capabilities { return DefaultCapabilities() }

func (f *fakeSource) Root(_ context.Context, _ Flags) (interface{}, *problem.Details) {
	return map[string]string{"registryid": "npmjs.org"}, nil
}

func (f *fakeSource) Groups(_ context.Context, _ Flags) ([]CollectionItem, *problem.Details) {
	return []CollectionItem{
		Entity{XIDValue: "/noderegistries/npmjs.org", IDValue: "npmjs.org", Value: map[string]string{"id": "npmjs.org"}},
	}, nil
}

func (f *fakeSource) Group(_ context.Context, groupID string, _ Flags) (interface{}, *problem.Details) {
	if groupID != "npmjs.org" {
		return nil, problem.NotFound("/"+groupID, "unknown group")
	}

	return map[string]string{"id": groupID}, nil
}

func (f *fakeSource) Resources(_ context.Context, _ string, _ Flags) ([]CollectionItem, *problem.Details) {
	return f.resources, nil
}

func (f *fakeSource) Resource(_ context.Context, _, resourceID string, _ Flags) (interface{}, *problem.Details) {
	for _, r := range f.resources {
		if r.ItemID() == resourceID {
			return r, nil
		}
	}

	return nil, problem.NotFound("/"+resourceID, "unknown resource")
}

func (f *fakeSource) Meta(_ context.Context, _, resourceID string, _ Flags) (interface{}, *problem.Details) {
	return map[string]string{"xid": "/noderegistries/npmjs.org/packages/" + resourceID + "/meta"}, nil
}

func (f *fakeSource) Versions(_ context.Context, _, _ string, _ Flags) ([]CollectionItem, *problem.Details) {
	return []CollectionItem{
		Entity{XIDValue: "/v1", IDValue: "1.0.0", Value: map[string]string{"versionid": "1.0.0"}},
	}, nil
}

func (f *fakeSource) Version(_ context.Context, _, _, versionID string, _ Flags) (interface{}, *problem.Details) {
	return map[string]string{"versionid": versionID}, nil
}

func newFakeServer() *Server {
	src := &fakeSource{
		resources: []CollectionItem{
			Entity{
				XIDValue: "/noderegistries/npmjs.org/packages/left-pad",
				IDValue:  "left-pad",
				Attrs:    map[string]string{"name": "left-pad", "epoch": "1"},
				Value:    map[string]string{"id": "left-pad"},
			},
			Entity{
				XIDValue: "/noderegistries/npmjs.org/packages/right-pad",
				IDValue:  "right-pad",
				Attrs:    map[string]string{"name": "right-pad", "epoch": "1"},
				Value:    map[string]string{"id": "right-pad"},
			},
		},
	}

	return NewServer(src, Options{})
}

func TestServerRootModelCapabilities(t *testing.T) {
	s := newFakeServer()

	for _, path := range []string{"/", "/model", "/capabilities"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()

		s.Handler().ServeHTTP(rec, req)

		assert.Equalf(t, http.StatusOK, rec.Code, "path %s", path)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	}
}

func TestServerUnknownPathIs404(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/does/not/exist/at/all", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestServerUnknownGroupTypeIs404(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/pythonregistries", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerNonGetIs405(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodPost, "/noderegistries", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Allow"))
}

func TestServerOptionsAlwaysSucceeds(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodOptions, "/noderegistries/npmjs.org/packages", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServerResourcesCollectionRequiresNameConstraint(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/noderegistries/npmjs.org/packages", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(filter.NoticeHeader))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestServerResourcesCollectionWithNameFilter(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/noderegistries/npmjs.org/packages?filter=name=left-pad", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "left-pad")
	assert.NotContains(t, body, "right-pad")
}

func TestServerResourceNotFound(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/noderegistries/npmjs.org/packages/does-not-exist", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerVersionsAndVersion(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/noderegistries/npmjs.org/packages/left-pad/versions", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/noderegistries/npmjs.org/packages/left-pad/versions/1.0.0", http.NoBody)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerMeta(t *testing.T) {
	s := newFakeServer()

	req := httptest.NewRequest(http.MethodGet, "/noderegistries/npmjs.org/packages/left-pad/meta", http.NoBody)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
