package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
)

// DefaultConfigFile is the default name of the config file.
const DefaultConfigFile = "config.yaml"

// ScannerState is the registered-scanner identity persisted after a
// successful registration. The credential here is the scanner's bearer of
// authority at the check-in endpoint.
type ScannerState struct {
	ScannerID         string `yaml:"scanner_id"`
	EventID           string `yaml:"event_id"`
	Name              string `yaml:"name"`
	Credential        string `yaml:"credential"`
	CredentialExpiry  string `yaml:"credential_expiry"`
	DeviceFingerprint string `yaml:"device_fingerprint"`
}

// Config is the admitctl state file: server connection, operator token, and
// the registered scanner identity for this machine.
type Config struct {
	Version   string       `yaml:"version"`
	ServerURL string       `yaml:"server_url"`
	APIKey    string       `yaml:"api_key,omitempty"`
	Password  string       `yaml:"password,omitempty"`
	Scanner   ScannerState `yaml:"scanner,omitempty"`
}

var config *Config

// GetDefaultConfigPath returns the OS-specific config file path
// (e.g. ~/.config/admitctl/config.yaml on Linux).
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "admitctl", DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the given file, or the default
// location when file is empty.
func LoadConfig(file string) error {
	if file == "" {
		var err error
		file, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	yamlStr, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	var c Config
	if err = yaml.Unmarshal(yamlStr, &c); err != nil {
		return fmt.Errorf("unable to parse config file: %w", err)
	}

	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if !strings.Contains(c.ServerURL, "://") {
		c.ServerURL = "http://" + c.ServerURL
	}

	config = &c
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *Config {
	return config
}

// WriteConfig writes the configuration to the given file.
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	yamlStr, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}

	if err := os.WriteFile(file, yamlStr, os.FileMode(0600)); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// Configurator implementation for the HTTP client.

func (cfg *Config) GetServerURL() string {
	return cfg.ServerURL
}

func (cfg *Config) GetAPIKey() string {
	return cfg.APIKey
}

func (cfg *Config) GetApiVersion() string {
	return admitcommon.ApiVersion
}
