package xrid

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistrySetsConstants(t *testing.T) {
	reg, err := NewRegistry(Config{ID: "bridge-1", BaseURL: "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, "/", reg.XID)
	assert.Equal(t, "https://example.com/", reg.Self)
	assert.Equal(t, SpecVersion, reg.SpecVersion)
	assert.Equal(t, int64(1), reg.Epoch)
}

func TestNewGroupXIDIsPrefixOfSelf(t *testing.T) {
	g, err := NewGroup(Config{ID: "npmjs.org", ParentXID: "/", BaseURL: "https://example.com", Name: "npm"})
	require.NoError(t, err)

	assert.Equal(t, "/npmjs.org", g.XID)
	assert.Equal(t, "https://example.com/npmjs.org", g.Self)
}

func TestNewResourceDerivesVersionsURL(t *testing.T) {
	r, err := NewResource(Config{
		ID:        "left-pad",
		ParentXID: "/noderegistries/npmjs.org/packages",
		BaseURL:   "https://example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org/packages/left-pad", r.XID)
	assert.Equal(t, "https://example.com/noderegistries/npmjs.org/packages/left-pad/versions", r.VersionsURL)
}

func TestNewVersionNestsUnderResource(t *testing.T) {
	v, err := NewVersion(Config{
		ID:        "1.3.0",
		ParentXID: "/noderegistries/npmjs.org/packages/left-pad",
		BaseURL:   "https://example.com",
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org/packages/left-pad/versions/1.3.0", v.XID)
	assert.True(t, v.IsDefault)
	assert.Equal(t, "1.3.0", v.VersionID)
}

func TestNewMetaPointsAtDefaultVersion(t *testing.T) {
	m, err := NewMeta(Config{BaseURL: "https://example.com"},
		"/noderegistries/npmjs.org/packages/left-pad", "1.3.0")
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org/packages/left-pad/meta", m.XID)
	assert.True(t, m.ReadOnly)
	assert.Equal(t, "1.3.0", m.DefaultVersionID)
	assert.Equal(t, "https://example.com/noderegistries/npmjs.org/packages/left-pad/versions/1.3.0", m.DefaultVersionURL)
}

func TestInvalidIDRejected(t *testing.T) {
	_, err := NewGroup(Config{ID: "bad id with spaces", ParentXID: "/", BaseURL: "https://example.com"})
	require.ErrorIs(t, err, ErrInvalidEntity)

	_, err = NewGroup(Config{ID: "/leading-slash", ParentXID: "/", BaseURL: "https://example.com"})
	require.ErrorIs(t, err, ErrInvalidEntity)

	_, err = NewGroup(Config{ID: "", ParentXID: "/", BaseURL: "https://example.com"})
	require.ErrorIs(t, err, ErrInvalidEntity)
}

func TestCreatedAtNotAfterModifiedAt(t *testing.T) {
	r, err := NewResource(Config{ID: "pkg", ParentXID: "/x", BaseURL: "https://example.com"})
	require.NoError(t, err)

	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	require.NoError(t, err)

	modified, err := time.Parse(time.RFC3339, r.ModifiedAt)
	require.NoError(t, err)

	assert.False(t, created.After(modified))
}

func TestEpochDefaultsToOne(t *testing.T) {
	r, err := NewResource(Config{ID: "pkg", ParentXID: "/x", BaseURL: "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.Epoch)
}

func TestEffectiveBaseURLPrecedence(t *testing.T) {
	req := httptest.NewRequest("GET", "/noderegistries", nil)
	req.Header.Set("X-Base-Url", "https://bridge.example.com")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "other.example.com")
	req.Host = "internal.local"

	rc := BaseURLFromRequest(req)
	assert.Equal(t, "https://bridge.example.com", rc.EffectiveBaseURL())

	rc.XBaseURL = ""
	assert.Equal(t, "https://other.example.com", rc.EffectiveBaseURL())

	rc.XForwardedProto = ""
	rc.XForwardedHost = ""
	assert.Equal(t, "http://internal.local", rc.EffectiveBaseURL())
}
