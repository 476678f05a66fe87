// Package config loads gtd settings from defaults, a TOML file and GTD_*
// environment variables, and reloads them when the file changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. GTD_SERVER_ADDR.
const EnvPrefix = "GTD"

// Config is the full gtd configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Todoist  TodoistConfig  `mapstructure:"todoist"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the local store.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "libsql".
	Driver string `mapstructure:"driver"`
	// Path is a file path, or a libsql:// URL for the libsql driver.
	Path      string `mapstructure:"path"`
	AuthToken string `mapstructure:"auth_token"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TodoistConfig configures the Todoist client. Reloaded on file change.
type TodoistConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures log output.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Verbose    bool   `mapstructure:"verbose"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   filepath.Join(DataDir(), "gtd.db"),
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Todoist: TodoistConfig{
			BaseURL: "https://api.todoist.com/rest/v2",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/gtd/config.toml, falling back to
// ~/.config.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "gtd", "config.toml")
}

// DataDir returns the directory holding the default database.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "gtd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "gtd")
}

// Loader reads the configuration and watches its file.
type Loader struct {
	v        *viper.Viper
	path     string
	explicit bool
	logger   *log.Logger
}

// NewLoader returns a loader for path. An empty path means DefaultPath,
// which may be missing; an explicit path must exist.
func NewLoader(path string, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: path, explicit: explicit, logger: logger}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.auth_token", d.Database.AuthToken)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("todoist.base_url", d.Todoist.BaseURL)
	v.SetDefault("todoist.timeout", d.Todoist.Timeout)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.verbose", d.Log.Verbose)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Path returns the config file location.
func (l *Loader) Path() string {
	return l.path
}

// FileLoaded reports whether the last Load read a file.
func (l *Loader) FileLoaded() bool {
	return l.v.ConfigFileUsed() != "" && fileExists(l.path)
}

// Load reads the file (if present) and applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	if fileExists(l.path) {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", l.path, err)
		}
	} else if l.explicit {
		return nil, fmt.Errorf("config file %s not found", l.path)
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the new configuration each time the file is
// written. Invalid intermediate states are logged and skipped. It is a
// no-op when no file exists.
func (l *Loader) Watch(onChange func(*Config)) {
	if !fileExists(l.path) {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			l.logger.Printf("WARNING: Ignoring config change in %s: %v", e.Name, err)
			return
		}
		l.logger.Printf("Reloaded config from %s", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "libsql":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Todoist.Timeout <= 0 {
		return fmt.Errorf("todoist.timeout must be positive (got %s)", c.Todoist.Timeout)
	}
	return nil
}

// WriteDefault writes the default configuration to path as TOML. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force && fileExists(path) {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	d := Default()
	doc := map[string]any{
		"database": map[string]any{
			"driver": d.Database.Driver,
			"path":   d.Database.Path,
		},
		"server": map[string]any{
			"addr":             d.Server.Addr,
			"shutdown_timeout": d.Server.ShutdownTimeout.String(),
		},
		"todoist": map[string]any{
			"base_url": d.Todoist.BaseURL,
			"timeout":  d.Todoist.Timeout.String(),
		},
		"log": map[string]any{
			"file":         d.Log.File,
			"verbose":      d.Log.Verbose,
			"max_size_mb":  d.Log.MaxSizeMB,
			"max_backups":  d.Log.MaxBackups,
			"max_age_days": d.Log.MaxAgeDays,
		},
	}

	var buf bytes.Buffer
	buf.WriteString("# gtd configuration. Every key can be overridden with GTD_<SECTION>_<KEY>.\n\n")
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
