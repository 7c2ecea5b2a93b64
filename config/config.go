package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// ModuleReference captures metadata about the configuration source that defined an entry.
type ModuleReference struct {
	File        string `json:"file,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	Tracing  bool   `yaml:"tracing,omitempty"`
}

// MetricsConfig configures the optional metrics endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// RepositoryConfig selects the repository to connect to and the credentials to use.
type RepositoryConfig struct {
	Catalog     string `yaml:"catalog"`
	Selector    string `yaml:"selector"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

// Credentials returns the configured username and password. A non-empty
// PasswordEnv takes precedence over the inline password.
func (r RepositoryConfig) Credentials() (string, string) {
	password := r.Password
	if env := strings.TrimSpace(r.PasswordEnv); env != "" {
		password = os.Getenv(env)
	}
	return r.Username, password
}

// Config is the root configuration structure for the locator host.
type Config struct {
	Name           string           `yaml:"name,omitempty"`
	Description    string           `yaml:"description,omitempty"`
	Logging        LoggingConfig    `yaml:"logging"`
	Telemetry      TelemetryConfig  `yaml:"telemetry"`
	Metrics        MetricsConfig    `yaml:"metrics"`
	Repository     RepositoryConfig `yaml:"repository"`
	HotReload      bool             `yaml:"hot_reload,omitempty"`
	ReloadInterval Duration         `yaml:"reload_interval,omitempty"`
	Source         ModuleReference  `yaml:"-"`
}

// Load reads and decodes the configuration file from disk. A relative catalogue
// path is resolved against the directory of the configuration file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", abs, err)
	}

	var document yaml.Node
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", abs, err)
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return nil, fmt.Errorf("config %s is empty", abs)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config %s: top-level YAML document must be a mapping", abs)
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", abs, err)
	}
	cfg.Source = ModuleReference{File: abs, Name: cfg.Name, Description: cfg.Description}

	catalog := strings.TrimSpace(cfg.Repository.Catalog)
	if catalog != "" && !filepath.IsAbs(catalog) {
		catalog = filepath.Join(filepath.Dir(abs), catalog)
	}
	cfg.Repository.Catalog = catalog

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	return &cfg, nil
}

// Validate checks the structural consistency of a configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}
	if strings.TrimSpace(cfg.Repository.Catalog) == "" {
		return errors.New("repository.catalog is required")
	}
	if !isCatalogFile(cfg.Repository.Catalog) {
		return fmt.Errorf("repository.catalog %s must be a .yaml, .yml or .cue file", cfg.Repository.Catalog)
	}
	if cfg.ReloadInterval.Duration < 0 {
		return fmt.Errorf("reload_interval must not be negative")
	}
	return nil
}

// ReloadEvery returns the configured hot reload polling interval.
func (c *Config) ReloadEvery() time.Duration {
	if c == nil || c.ReloadInterval.Duration <= 0 {
		return time.Second
	}
	return c.ReloadInterval.Duration
}
