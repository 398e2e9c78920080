package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/promptelt/promptelt/internal/archive"
	"github.com/promptelt/promptelt/internal/assistant"
)

// YAMLConfig represents the top-level promptelt configuration file.
type YAMLConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Cache     CacheConfig      `yaml:"cache"`
	Snapshot  SnapshotConfig   `yaml:"snapshot"`
	Broker    BrokerConfig     `yaml:"broker"`
	Assistant assistant.Config `yaml:"assistant"`
	Archive   archive.Config   `yaml:"archive"`
	MCP       MCPConfig        `yaml:"mcp"`
	Logging   LoggingConfig    `yaml:"logging"`
	Databases []DatabaseYAML   `yaml:"databases"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	MaxBodySize     string     `yaml:"max_body_size"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RateLimit       int        `yaml:"rate_limit"` // requests per minute per client, 0 disables
	CORS            CORSConfig `yaml:"cors"`
	TLS             TLSConfig  `yaml:"tls"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// TLSConfig controls TLS termination at the server level.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CacheConfig sizes the query result cache.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// Warm lists queries executed against their database on startup.
	Warm []WarmQueryYAML `yaml:"warm"`
}

// WarmQueryYAML is a query preloaded into the cache once its database
// connects.
type WarmQueryYAML struct {
	Database string        `yaml:"database"`
	SQL      string        `yaml:"sql"`
	Params   []interface{} `yaml:"params"`
}

// SnapshotConfig controls schema snapshot retention.
type SnapshotConfig struct {
	HistoryLimit int `yaml:"history_limit"`
	// RefreshInterval re-introspects connected databases periodically.
	// Zero disables the background refresh.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// BrokerConfig tunes connection handling.
type BrokerConfig struct {
	IncludeDataOnConnect bool          `yaml:"include_data_on_connect"`
	SampleRows           int           `yaml:"sample_rows"`
	MaxOpenConns         int           `yaml:"max_open_conns"`
	MaxIdleConns         int           `yaml:"max_idle_conns"`
	ConnMaxLifetime      time.Duration `yaml:"conn_max_lifetime"`
}

// DatabaseYAML registers a database from the configuration file. Seeded
// databases are upserted by name on startup.
type DatabaseYAML struct {
	Name             string                 `yaml:"name"`
	Type             string                 `yaml:"type"`
	ConnectionString string                 `yaml:"connection_string"`
	Description      string                 `yaml:"description"`
	Metadata         map[string]interface{} `yaml:"metadata"`
	Connect          bool                   `yaml:"connect"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
	MaxRows   int    `yaml:"max_rows"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file on top of the
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAMLConfig(data)
}

// ParseYAMLConfig parses configuration data on top of the defaults.
func ParseYAMLConfig(data []byte) (*YAMLConfig, error) {
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills the assistant API key from ANTHROPIC_API_KEY or
// OPENAI_API_KEY, depending on the provider, when none is configured.
func (c *YAMLConfig) ApplyEnv() {
	if strings.TrimSpace(c.Assistant.APIKey) != "" {
		return
	}
	switch strings.ToLower(c.Assistant.Provider) {
	case "openai", "openai-compatible":
		c.Assistant.APIKey = os.Getenv("OPENAI_API_KEY")
	default:
		c.Assistant.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate checks the seeded databases and durations.
func (c *YAMLConfig) Validate() error {
	seen := make(map[string]bool, len(c.Databases))
	for i, d := range c.Databases {
		if d.Name == "" || d.Type == "" {
			return fmt.Errorf("databases[%d]: name and type are required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("databases[%d]: duplicate name %q", i, d.Name)
		}
		seen[d.Name] = true
	}
	for i, w := range c.Cache.Warm {
		if !seen[w.Database] || w.SQL == "" {
			return fmt.Errorf("cache.warm[%d]: sql and a configured database are required", i)
		}
	}
	if _, err := c.Server.ShutdownDuration(); err != nil {
		return err
	}
	if _, err := c.Server.BodyLimit(); err != nil {
		return err
	}
	return nil
}

// ShutdownDuration parses ShutdownTimeout, defaulting to 30s.
func (s ServerConfig) ShutdownDuration() (time.Duration, error) {
	if s.ShutdownTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(s.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	return d, nil
}

// BodyLimit parses MaxBodySize ("10MB", "512KiB") into bytes. An empty
// value disables the limit.
func (s ServerConfig) BodyLimit() (int64, error) {
	if strings.TrimSpace(s.MaxBodySize) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s.MaxBodySize)
	if err != nil {
		return 0, fmt.Errorf("server.max_body_size: %w", err)
	}
	return int64(n), nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "10MB",
			ShutdownTimeout: "30s",
			RateLimit:       600,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
		},
		Cache: CacheConfig{
			MaxEntries:    1000,
			DefaultTTL:    5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Snapshot: SnapshotConfig{
			HistoryLimit: 50,
		},
		Broker: BrokerConfig{
			SampleRows:      5,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Assistant: assistant.Config{
			Provider: "anthropic",
			Timeout:  60 * time.Second,
		},
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
			MaxRows:   1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultYAMLConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
