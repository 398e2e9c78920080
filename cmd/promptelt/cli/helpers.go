package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/demo"
	"github.com/promptelt/promptelt/internal/connector/duckdb"
	"github.com/promptelt/promptelt/internal/connector/mssql"
	"github.com/promptelt/promptelt/internal/connector/mysql"
	"github.com/promptelt/promptelt/internal/connector/oracle"
	"github.com/promptelt/promptelt/internal/connector/postgres"
	"github.com/promptelt/promptelt/internal/connector/snowflake"
	"github.com/promptelt/promptelt/internal/connector/sqlite"
)

// resolveDataDir returns the data directory from --data-dir,
// PROMPTELT_DATA_DIR or ~/.promptelt as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("PROMPTELT_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".promptelt")
}

// loadConfig returns the file configuration, or the defaults when no
// config file was found, with flag and environment overrides applied.
func loadConfig() (*config.YAMLConfig, error) {
	var cfg *config.YAMLConfig
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultYAMLConfig()
		cfg.ApplyEnv()
	}

	if viper.IsSet("server.port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.host") {
		cfg.Server.Host = viper.GetString("server.host")
	}
	if viper.IsSet("logging.level") {
		cfg.Logging.Level = viper.GetString("logging.level")
	}
	if viper.IsSet("logging.format") {
		cfg.Logging.Format = viper.GetString("logging.format")
	}
	if devMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr so the MCP
// stdio transport keeps stdout to itself.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newRegistry creates a connector registry with every supported database
// type registered. Types without a native driver are served by the demo
// backends.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	for _, name := range []string{"postgres", "postgresql"} {
		registry.RegisterDriver(name, postgres.New)
	}
	for _, name := range []string{"mysql", "mariadb"} {
		registry.RegisterDriver(name, mysql.New)
	}
	for _, name := range []string{"sqlserver", "mssql"} {
		registry.RegisterDriver(name, mssql.New)
	}
	registry.RegisterDriver("sqlite", sqlite.New)
	registry.RegisterDriver("snowflake", snowflake.New)
	registry.RegisterDriver("oracle", oracle.New)
	registry.RegisterDriver("duckdb", duckdb.New)
	registry.RegisterDriver("demo", demo.New)
	registry.RegisterDriver("databricks", demo.Flavor("databricks"))
	registry.RegisterDriver("salesforce", demo.Flavor("salesforce"))
	return registry
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML re-encodes v through JSON first so the YAML keys match the
// JSON field names.
func printYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// printYAMLDirect writes v with its own yaml tags.
func printYAMLDirect(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printFormatted writes v as JSON or YAML.
func printFormatted(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "", "json":
		return printJSON(w, v)
	case "yaml", "yml":
		return printYAML(w, v)
	default:
		return fmt.Errorf("unsupported format %q; use json or yaml", format)
	}
}

// openOutput returns stdout, or the named file when path is set.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
