package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admitd.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

const validConfig = `
format_version = "0.1"
server_hostname = "local.admitd.test"
server_port = "8330"

[trust]
master_secret = "an-acceptably-long-master-secret-value!!"

[auth]
single_operator_mode = true
default_operator_id = "default-operator"

[db]
host = "localhost"
port = 5432
dbname = "admitd"
user = "admitd"
password = "admitd"
sslmode = "disable"
`

func TestLoadConfigValid(t *testing.T) {
	require.NoError(t, LoadConfig(writeConfig(t, validConfig)))
	assert.Equal(t, "8330", Config().ServerPort)
	// defaults filled in
	assert.Equal(t, 2048, Config().Trust.RSAKeySizeBits)
	d, err := Config().Trust.GetRegistrationTokenValidity()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)
	assert.Equal(t, Config().Trust.MasterSecret, Config().Auth.KeyEncryptionPasswd)
}

func TestLoadConfigShortMasterSecret(t *testing.T) {
	body := `
format_version = "0.1"
server_port = "8330"

[trust]
master_secret = "too-short"

[db]
host = "localhost"
port = 5432
dbname = "admitd"
user = "admitd"
password = "admitd"
sslmode = "disable"
`
	err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master_secret")
}

func TestLoadConfigPlaceholderMasterSecret(t *testing.T) {
	body := `
format_version = "0.1"
server_port = "8330"

[trust]
master_secret = "change-this-master-secret-before-deploying!"

[db]
host = "localhost"
port = 5432
dbname = "admitd"
user = "admitd"
password = "admitd"
sslmode = "disable"
`
	err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholder")
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv(MasterSecretEnvVar, "environment-supplied-master-secret-value")
	require.NoError(t, LoadConfig(writeConfig(t, validConfig)))
	assert.Equal(t, "environment-supplied-master-secret-value", Config().Trust.MasterSecret)
}

func TestLoadConfigWeakKeySize(t *testing.T) {
	body := validConfig + "\n"
	require.NoError(t, LoadConfig(writeConfig(t, body)))

	weak := `
format_version = "0.1"
server_port = "8330"

[trust]
master_secret = "an-acceptably-long-master-secret-value!!"
rsa_key_size_bits = 1024

[db]
host = "localhost"
port = 5432
dbname = "admitd"
user = "admitd"
password = "admitd"
sslmode = "disable"
`
	err := LoadConfig(writeConfig(t, weak))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rsa_key_size_bits")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"15m", 15 * time.Minute, false},
		{"12h", 12 * time.Hour, false},
		{"2d", 48 * time.Hour, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"", 0, true},
		{"15", 0, true},
		{"xm", 0, true},
		{"15s", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}
