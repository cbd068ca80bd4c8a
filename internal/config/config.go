// Package config loads and validates the countrysync YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/njoerd114/countrysync/internal/restcountries"
	"github.com/njoerd114/countrysync/internal/state"
)

// Bounds and default for request_timeout.
const (
	DefaultRequestTimeout = 30 * time.Second
	MinRequestTimeout     = time.Second
	MaxRequestTimeout     = 5 * time.Minute
)

// Environment variables that override file settings.
const (
	EnvEndpoint       = "COUNTRYSYNC_ENDPOINT"
	EnvRequestTimeout = "COUNTRYSYNC_REQUEST_TIMEOUT"
	EnvDBPath         = "COUNTRYSYNC_DB_PATH"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Endpoint is the URL returning the full country list.
	// Defaults to https://restcountries.com/v3.1/all.
	Endpoint string `yaml:"endpoint"`

	// RequestTimeout bounds the single download request.
	// Minimum 1s, maximum 5m. Defaults to 30s if unset.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// DBPath is the SQLite database file. Defaults to
	// ~/.local/share/countrysync/countries.db.
	DBPath string `yaml:"db_path"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "countrysync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/countrysync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "countrysync", "config.yaml"), nil
}

// Default returns a validated configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault is like [Load] but returns the defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default()
	}
	return cfg, err
}

// LoadDotEnv loads KEY=value pairs from a .env file into the process
// environment. Variables already set are left alone. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from COUNTRYSYNC_* variables and validates the
// result. lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		c.Endpoint = v
	}
	if v, ok := lookup(EnvRequestTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = d
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.DBPath = v
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// Write serialises the configuration to path, creating parent directories.
// The file is readable only by the owner since it may hold collector headers.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// validate applies defaults and checks that all fields are well-formed.
func (c *Config) validate() error {
	if c.Endpoint == "" {
		c.Endpoint = restcountries.DefaultEndpoint
	}
	u, err := url.ParseRequestURI(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %q must be a valid http or https URL", c.Endpoint)
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestTimeout < MinRequestTimeout {
		return fmt.Errorf("request_timeout %v is too short (minimum 1s)", c.RequestTimeout)
	}
	if c.RequestTimeout > MaxRequestTimeout {
		return fmt.Errorf("request_timeout %v is too long (maximum 5m)", c.RequestTimeout)
	}

	if c.DBPath == "" {
		p, err := state.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("db_path: %w", err)
		}
		c.DBPath = p
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
