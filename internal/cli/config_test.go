package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &Config{
		Version:   "0.1",
		ServerURL: "http://localhost:8330",
		APIKey:    "token-abc",
		Scanner: ScannerState{
			ScannerID:         "0198b2cc-0000-7000-8000-000000000001",
			EventID:           "0198b2cc-0000-7000-8000-000000000002",
			Name:              "front gate",
			Credential:        "aaa.bbb.ccc",
			DeviceFingerprint: "host-00112233",
		},
	}
	require.NoError(t, cfg.WriteConfig(path))

	// State files carry credentials; they must not be world readable.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, LoadConfig(path))
	loaded := GetConfig()
	assert.Equal(t, cfg.ServerURL, loaded.ServerURL)
	assert.Equal(t, cfg.APIKey, loaded.APIKey)
	assert.Equal(t, cfg.Scanner, loaded.Scanner)
}

func TestLoadConfigDefaultsScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: localhost:8330\n"), 0600))

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "http://localhost:8330", GetConfig().ServerURL)
}

func TestLoadConfigRequiresServerURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"0.1\"\n"), 0600))

	assert.Error(t, LoadConfig(path))
}
