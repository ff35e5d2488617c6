package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type adapterDescriptor struct {
	Name       string `json:"name"`
	UpstreamURL string `json:"upstream_url"`
	CacheTTL   string `json:"cache_ttl"`
}

func (d *adapterDescriptor) Validate() error {
	if d.Name == "" {
		return errors.New("name is required")
	}

	return nil
}

func TestLoadAndValidateReadsFileByDefault(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "adapter-*.json")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(tmpFile.Name()) })

	payload, err := json.Marshal(adapterDescriptor{
		Name:        "node",
		UpstreamURL: "https://registry.npmjs.org",
		CacheTTL:    "15m",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tmpFile.Name(), payload, 0o600))

	cfg := NewConfig(nil)

	var dst adapterDescriptor
	require.NoError(t, cfg.LoadAndValidate(context.Background(), tmpFile.Name(), &dst))
	require.Equal(t, "node", dst.Name)
	require.Equal(t, "https://registry.npmjs.org", dst.UpstreamURL)
}

func TestLoadAndValidateRejectsInvalidConfig(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "adapter-*.json")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(tmpFile.Name()) })

	require.NoError(t, os.WriteFile(tmpFile.Name(), []byte(`{"upstream_url":"https://example.test"}`), 0o600))

	cfg := NewConfig(nil)

	var dst adapterDescriptor
	err = cfg.LoadAndValidate(context.Background(), tmpFile.Name(), &dst)
	require.Error(t, err)
}

func TestLoadAndValidateUnknownSourceErrors(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "bogus")

	cfg := NewConfig(nil)

	var dst adapterDescriptor
	err := cfg.LoadAndValidate(context.Background(), "/dev/null", &dst)
	require.Error(t, err)
}

func TestMergeOverlayBytesOverridesOnlyPresentFields(t *testing.T) {
	dst := adapterDescriptor{
		Name:        "node",
		UpstreamURL: "https://registry.npmjs.org",
		CacheTTL:    "15m",
	}

	overlay := []byte(`{"cache_ttl":"30m"}`)
	require.NoError(t, MergeOverlayBytes(&dst, overlay))

	require.Equal(t, "node", dst.Name)
	require.Equal(t, "30m", dst.CacheTTL)
}
