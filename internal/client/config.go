package client

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultServer is the address of a locally running quelmap server.
	DefaultServer = "http://localhost:8000"
)

// Config holds the information needed to connect to a quelmap server.
type Config struct {
	Service Service `json:"service"`
	// DataDir is the directory holding the client's durable state
	// (history ledger, settings).
	DataDir string `json:"data-dir,omitempty"`
	// LogLevel is the zap level name used by the CLI.
	LogLevel string `json:"log-level,omitempty"`
}

// Service contains information on how to reach the quelmap server.
type Service struct {
	// Server is the URL of the quelmap server (the part before
	// /create-space, /api/...).
	Server string `json:"server"`
}

// envOverrides mirrors the config fields that may be set through the
// environment. Environment values win over the config file.
type envOverrides struct {
	Server   string `envconfig:"QUELMAP_SERVER"`
	DataDir  string `envconfig:"QUELMAP_DATA_DIR"`
	LogLevel string `envconfig:"QUELMAP_LOG_LEVEL"`
}

func NewDefault() *Config {
	return &Config{
		Service:  Service{Server: DefaultServer},
		LogLevel: "info",
	}
}

// DefaultConfigPath returns the default path to the client config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".quelmap", "client.yaml")
	}
	return filepath.Join(home, ".quelmap", "client.yaml")
}

// ParseConfigFile reads filename, applies environment overrides and
// validates the result. A missing file is not an error: defaults plus the
// environment are used.
func ParseConfigFile(filename string) (*Config, error) {
	config := NewDefault()

	contents, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, config); err != nil {
			return nil, fmt.Errorf("decoding config: %w", err)
		}
	case os.IsNotExist(err):
		// fall through to env + defaults
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if env.Server != "" {
		config.Service.Server = env.Server
	}
	if env.DataDir != "" {
		config.DataDir = env.DataDir
	}
	if env.LogLevel != "" {
		config.LogLevel = env.LogLevel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Persist writes the config to filename, creating parent directories.
func (c *Config) Persist(filename string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.WriteFile(filename, contents, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if len(c.Service.Server) == 0 {
		return fmt.Errorf("invalid configuration: no server found")
	}
	u, err := url.Parse(c.Service.Server)
	if err != nil {
		return fmt.Errorf("invalid configuration: invalid server format %q: %w", c.Service.Server, err)
	}
	if len(u.Hostname()) == 0 {
		return fmt.Errorf("invalid configuration: invalid server format %q: no hostname", c.Service.Server)
	}
	return nil
}
