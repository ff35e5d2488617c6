package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsStatusAndType(t *testing.T) {
	d := New(KindNotFound, "/noderegistries/npmjs.org/packages/left-pad", "no such package")

	assert.Equal(t, http.StatusNotFound, d.Status)
	assert.Equal(t, "Not Found", d.Title)
	assert.Equal(t, DefaultTypeBase+"/not-found", d.Type)
	assert.Equal(t, KindNotFound, d.Kind())
}

func TestNewFallsBackToInternalErrorForUnknownKind(t *testing.T) {
	d := New(Kind("made-up"), "/x", "bogus")

	assert.Equal(t, http.StatusInternalServerError, d.Status)
	assert.Equal(t, KindInternalError, d.Kind())
}

func TestConvenienceConstructorsMatchTaxonomy(t *testing.T) {
	cases := []struct {
		build      func(instance, detail string) *Details
		wantStatus int
		wantKind   Kind
	}{
		{BadRequest, http.StatusBadRequest, KindBadRequest},
		{Unauthorized, http.StatusUnauthorized, KindUnauthorized},
		{Forbidden, http.StatusForbidden, KindForbidden},
		{NotFound, http.StatusNotFound, KindNotFound},
		{Conflict, http.StatusConflict, KindConflict},
		{Unprocessable, http.StatusUnprocessableEntity, KindUnprocessableEntity},
		{TooManyRequests, http.StatusTooManyRequests, KindTooManyRequests},
		{BadGateway, http.StatusBadGateway, KindBadGateway},
		{ServiceUnavailable, http.StatusServiceUnavailable, KindServiceUnavailable},
		{Internal, http.StatusInternalServerError, KindInternalError},
	}

	for _, tc := range cases {
		d := tc.build("/instance", "detail")
		assert.Equal(t, tc.wantStatus, d.Status)
		assert.Equal(t, tc.wantKind, d.Kind())
	}
}

func TestWriteToWritesProblemJSON(t *testing.T) {
	d := BadRequest("/pythonregistries/pypi.org/packages", `unrecognized filter operator "~"`)

	rr := httptest.NewRecorder()
	require.NoError(t, d.WriteTo(rr))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var got Details
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, d.Type, got.Type)
	assert.Equal(t, d.Detail, got.Detail)
}

func TestFromErrorPassesThroughDetails(t *testing.T) {
	original := Conflict("/noderegistries", "duplicate group-type")

	got := FromError("/noderegistries", original)

	assert.Same(t, original, got)
}

func TestFromErrorWrapsPlainErrors(t *testing.T) {
	got := FromError("/x", errors.New("boom"))

	assert.Equal(t, KindInternalError, got.Kind())
	assert.Equal(t, "boom", got.Detail)
}

func TestFromErrorHandlesNil(t *testing.T) {
	got := FromError("/x", nil)

	assert.Equal(t, KindInternalError, got.Kind())
}

func TestWithDataAttachesExtensions(t *testing.T) {
	d := NotFound("/x", "missing").WithData(map[string]interface{}{"grouptype": "noderegistries"})

	assert.Equal(t, "noderegistries", d.Data["grouptype"])
}
