// Package config loads and validates the admitd server configuration. The
// entire credential chain of trust is rooted in the master encryption secret,
// so validation here is deliberately unforgiving: a short or placeholder secret
// prevents the server from starting at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the supported configuration file format version.
const Version = "0.1"

// placeholderSecrets are master secret values shipped in sample configs. They
// must never reach production, so they are rejected at startup.
var placeholderSecrets = map[string]bool{
	"change-this-master-secret-before-deploying!": true,
	"0123456789abcdef0123456789abcdef":            true,
}

// masterSecretMinLen is the minimum length of the master secret in bytes.
const masterSecretMinLen = 32

// MasterSecretEnvVar overrides the configured master secret when set.
const MasterSecretEnvVar = "ADMITD_MASTER_SECRET"

// TrustConfig holds the parameters of the ticket trust core.
type TrustConfig struct {
	MasterSecret              string `toml:"master_secret"`               // Master encryption secret for key custody
	RegistrationTokenValidity string `toml:"registration_token_validity"` // Validity window for scanner bootstrap codes
	ScannerCredentialValidity string `toml:"scanner_credential_validity"` // Validity of issued scanner credentials
	RSAKeySizeBits            int    `toml:"rsa_key_size_bits"`           // RSA modulus size for event key pairs
}

// GetRegistrationTokenValidity returns the bootstrap code validity as a duration.
func (t *TrustConfig) GetRegistrationTokenValidity() (time.Duration, error) {
	return ParseDuration(t.RegistrationTokenValidity)
}

// GetScannerCredentialValidity returns the scanner credential validity as a duration.
func (t *TrustConfig) GetScannerCredentialValidity() (time.Duration, error) {
	return ParseDuration(t.ScannerCredentialValidity)
}

// AuthConfig holds organizer authentication configuration.
type AuthConfig struct {
	IdentityTokenValidity string `toml:"identity_token_validity"` // Validity of organizer identity tokens
	KeyEncryptionPasswd   string `toml:"-"`                       // Set from the master secret after load
	SingleOperatorMode    bool   `toml:"single_operator_mode"`    // Whether a single operator owns all events
	DefaultOperatorID     string `toml:"default_operator_id"`     // Operator identity in single-operator mode
	OperatorPasswordHash  string `toml:"-"`                       // bcrypt hash, set at onboarding
}

// GetIdentityTokenValidity returns the identity token validity as a duration.
func (a *AuthConfig) GetIdentityTokenValidity() (time.Duration, error) {
	return ParseDuration(a.IdentityTokenValidity)
}

// AuditLogConfig holds check-in audit log configuration.
type AuditLogConfig struct {
	Path string `toml:"path"`
}

func (a *AuditLogConfig) GetPath() string {
	return a.Path
}

// ConfigParam holds all configuration parameters for the admission service.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	// Server configuration
	ServerHostName     string `toml:"server_hostname"`       // Hostname for the server
	ServerPort         string `toml:"server_port"`           // Port for the HTTP server
	HandleCORS         bool   `toml:"handle_cors"`           // Whether to handle CORS
	MaxRequestBodySize int64  `toml:"max_request_body_size"` // Maximum request body size in bytes
	SupportTLS         bool   `toml:"support_tls"`           // Whether to serve TLS
	TLSCertFile        string `toml:"tls_cert_file"`         // Path to TLS certificate file
	TLSKeyFile         string `toml:"tls_key_file"`          // Path to TLS key file
	TLSCertPEM         []byte `toml:"-"`                     // PEM encoded TLS certificate
	TLSKeyPEM          []byte `toml:"-"`                     // PEM encoded TLS key

	Trust    TrustConfig    `toml:"trust"`
	Auth     AuthConfig     `toml:"auth"`
	AuditLog AuditLogConfig `toml:"audit_log"`

	// Database configuration
	DB struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		DBName   string `toml:"dbname"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		SSLMode  string `toml:"sslmode"`
	} `toml:"db"`
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// DSN returns the database connection string.
func (c *ConfigParam) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// ParseDuration parses a duration string in the format "<number><unit>" where
// unit is one of:
//   - y: years
//   - d: days
//   - h: hours
//   - m: minutes
func ParseDuration(input string) (time.Duration, error) {
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid input format")
	}

	unit := input[len(input)-1:]
	valueStr := input[:len(input)-1]
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", err)
	}

	var duration time.Duration
	switch unit {
	case "m":
		duration = time.Duration(value) * time.Minute
	case "h":
		duration = time.Duration(value) * time.Hour
	case "d":
		duration = time.Duration(value) * 24 * time.Hour
	case "y":
		// 1 year = 365 days
		duration = time.Duration(value) * 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}

	return duration, nil
}

// ValidateConfig checks that all required configuration values are present and
// valid. A failure here is a configuration error and must prevent startup.
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateConfigFormatVersion(cfg); err != nil {
		return err
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}
	if err := validateTrustConfig(cfg); err != nil {
		return err
	}
	if err := validateAuthConfig(cfg); err != nil {
		return err
	}
	if err := validateDBConfig(cfg); err != nil {
		return err
	}
	if err := validateAuditLogConfig(cfg); err != nil {
		return err
	}
	if err := validateTLSConfig(cfg); err != nil {
		return err
	}
	return nil
}

func validateConfigFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateServerConfig(cfg *ConfigParam) error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	return nil
}

func validateTrustConfig(cfg *ConfigParam) error {
	// Environment wins over the config file so that the secret can be kept out
	// of the file entirely.
	if env := os.Getenv(MasterSecretEnvVar); env != "" {
		cfg.Trust.MasterSecret = env
	}
	if len(cfg.Trust.MasterSecret) < masterSecretMinLen {
		return fmt.Errorf("trust.master_secret must be at least %d bytes", masterSecretMinLen)
	}
	if placeholderSecrets[cfg.Trust.MasterSecret] {
		return fmt.Errorf("trust.master_secret is a placeholder value; set a real secret")
	}

	if cfg.Trust.RegistrationTokenValidity == "" {
		cfg.Trust.RegistrationTokenValidity = "15m"
	}
	if _, err := ParseDuration(cfg.Trust.RegistrationTokenValidity); err != nil {
		return fmt.Errorf("invalid trust.registration_token_validity: %v", err)
	}
	if cfg.Trust.ScannerCredentialValidity == "" {
		cfg.Trust.ScannerCredentialValidity = "1y"
	}
	if _, err := ParseDuration(cfg.Trust.ScannerCredentialValidity); err != nil {
		return fmt.Errorf("invalid trust.scanner_credential_validity: %v", err)
	}
	if cfg.Trust.RSAKeySizeBits == 0 {
		cfg.Trust.RSAKeySizeBits = 2048
	}
	if cfg.Trust.RSAKeySizeBits < 2048 {
		return fmt.Errorf("trust.rsa_key_size_bits must be at least 2048")
	}
	return nil
}

func validateAuthConfig(cfg *ConfigParam) error {
	if cfg.Auth.IdentityTokenValidity == "" {
		cfg.Auth.IdentityTokenValidity = "12h"
	}
	if _, err := ParseDuration(cfg.Auth.IdentityTokenValidity); err != nil {
		return fmt.Errorf("invalid auth.identity_token_validity: %v", err)
	}
	if cfg.Auth.SingleOperatorMode && cfg.Auth.DefaultOperatorID == "" {
		return fmt.Errorf("auth.default_operator_id is required in single operator mode")
	}
	// The service signing key is protected with the same master secret as the
	// event keys.
	cfg.Auth.KeyEncryptionPasswd = cfg.Trust.MasterSecret
	return nil
}

func validateDBConfig(cfg *ConfigParam) error {
	if cfg.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if cfg.DB.Port <= 0 {
		return fmt.Errorf("db.port must be positive")
	}
	if cfg.DB.DBName == "" {
		return fmt.Errorf("db.dbname is required")
	}
	if cfg.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	if cfg.DB.Password == "" {
		return fmt.Errorf("db.password is required")
	}
	if cfg.DB.SSLMode == "" {
		return fmt.Errorf("db.sslmode is required")
	}
	return nil
}

func validateAuditLogConfig(cfg *ConfigParam) error {
	if cfg.AuditLog.Path == "" {
		return nil // audit logging to file disabled
	}
	if err := os.MkdirAll(cfg.AuditLog.Path, 0700); err != nil {
		return fmt.Errorf("error creating audit log directory: %v", err)
	}
	return nil
}

func validateTLSConfig(cfg *ConfigParam) error {
	if !cfg.SupportTLS {
		return nil
	}
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		return fmt.Errorf("tls_cert_file and tls_key_file are required when support_tls is set")
	}
	certPEM, err := os.ReadFile(cfg.TLSCertFile)
	if err != nil {
		return fmt.Errorf("error reading tls cert file: %v", err)
	}
	keyPEM, err := os.ReadFile(cfg.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("error reading tls key file: %v", err)
	}
	cfg.TLSCertPEM = certPEM
	cfg.TLSKeyPEM = keyPEM
	return nil
}

// SetOperatorPasswordHash records the onboarded operator password hash.
func SetOperatorPasswordHash(hash string) {
	cfg.Auth.OperatorPasswordHash = hash
}

// LoadConfig loads configuration from a file and validates it.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	cfg = &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	return nil
}

var isTest = false

func IsTest() bool {
	return isTest
}

// TestInit installs an in-memory configuration suitable for unit tests. Tests
// never read a config file from disk.
func TestInit() {
	isTest = true
	cfg = &ConfigParam{
		FormatVersion:  Version,
		ServerHostName: "local.admitd.test",
		ServerPort:     "8330",
		Trust: TrustConfig{
			MasterSecret:              "unit-test-master-secret-0123456789abcdef",
			RegistrationTokenValidity: "15m",
			ScannerCredentialValidity: "1y",
			RSAKeySizeBits:            2048,
		},
		Auth: AuthConfig{
			IdentityTokenValidity: "12h",
			SingleOperatorMode:    true,
			DefaultOperatorID:     "default-operator",
		},
	}
	cfg.DB.Host = "localhost"
	cfg.DB.Port = 5432
	cfg.DB.DBName = "admitd_test"
	cfg.DB.User = "admitd"
	cfg.DB.Password = "admitd"
	cfg.DB.SSLMode = "disable"
	cfg.Auth.KeyEncryptionPasswd = cfg.Trust.MasterSecret
}
