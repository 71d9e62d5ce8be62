// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/vouchermacro/macro"
)

// DefaultPath is used when MACRO_CONFIG is not set.
const DefaultPath = "config.yaml"

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Macro    MacroConfig    `yaml:"macro"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port          string `yaml:"port"`
	ReadTimeout   string `yaml:"read_timeout"`
	WriteTimeout  string `yaml:"write_timeout"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// MacroConfig configures template loading and artifact naming.
type MacroConfig struct {
	TemplateName string `yaml:"template_name"`
	ArtifactName string `yaml:"artifact_name"`
	CacheTTL     string `yaml:"cache_ttl"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  "15s",
			WriteTimeout: "30s",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Macro: MacroConfig{
			TemplateName: "temp.macro",
			ArtifactName: macro.DefaultArtifactName,
			CacheTTL:     "5m",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Path returns the configuration file path from MACRO_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("MACRO_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if url := os.Getenv("PUBLIC_BASE_URL"); url != "" {
		c.Server.PublicBaseURL = url
	}
}

// Validate reports configuration the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL not configured (set DATABASE_URL or database.url)")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port not configured")
	}
	if c.Macro.TemplateName == "" {
		return fmt.Errorf("macro template name not configured")
	}
	for name, v := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"macro.cache_ttl":      c.Macro.CacheTTL,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 30*time.Second)
}

// GetCacheTTL returns the template cache TTL. Zero disables expiry.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Macro.CacheTTL, 5*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
