// Package config loads todoee settings.
//
// Settings come from, in increasing priority: built-in defaults, config.toml
// in the config directory, and TODOEE_* environment variables. An optional
// .env file in the config directory is loaded into the environment first,
// which is the usual home for the remote connection string.
//
// The config directory is $TODOEE_CONFIG_DIR, else <UserConfigDir>/todoee.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DirEnv overrides the config directory.
	DirEnv = "TODOEE_CONFIG_DIR"

	envPrefix = "TODOEE"
	fileName  = "config"
	fileType  = "toml"
)

// ErrExists is returned by WriteDefault when config.toml is already present.
var ErrExists = errors.New("config file already exists")

// Config is the effective configuration.
type Config struct {
	// Dir is the directory the configuration was loaded from. The local
	// database, .env and daemon log live here too.
	Dir string `mapstructure:"-"`

	Database      DatabaseConfig      `mapstructure:"database"`
	History       HistoryConfig       `mapstructure:"history"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	AI            AIConfig            `mapstructure:"ai"`
	Display       DisplayConfig       `mapstructure:"display"`
	Log           LogConfig           `mapstructure:"log"`
}

type DatabaseConfig struct {
	// LocalDBName is the file name of the local store inside Dir.
	LocalDBName string `mapstructure:"local_db_name"`
	// URLEnv names the environment variable holding the remote URL.
	URLEnv string `mapstructure:"url_env"`
}

type HistoryConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

type SyncConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	Interval         time.Duration `mapstructure:"interval"`
	TombstoneTTLDays int           `mapstructure:"tombstone_ttl_days"`
}

type NotificationsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	AdvanceMinutes int  `mapstructure:"advance_minutes"`
}

type AIConfig struct {
	Model     string `mapstructure:"model"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

type DisplayConfig struct {
	DateFormat string `mapstructure:"date_format"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Dir: dir,
		Database: DatabaseConfig{
			LocalDBName: "cache.db",
			URLEnv:      "TODOEE_DATABASE_URL",
		},
		History: HistoryConfig{RetentionDays: 30},
		Sync: SyncConfig{
			Timeout:          30 * time.Second,
			Interval:         5 * time.Minute,
			TombstoneTTLDays: 90,
		},
		Notifications: NotificationsConfig{Enabled: true, AdvanceMinutes: 15},
		AI: AIConfig{
			Model:     "claude-3-5-haiku-latest",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Display: DisplayConfig{DateFormat: "2006-01-02"},
		Log:     LogConfig{Level: "warn"},
	}
}

// Dir returns the config directory.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "todoee"), nil
}

// Load reads the configuration from dir, or from Dir() when dir is empty.
// A missing config.toml or .env is not an error.
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		if dir, err = Dir(); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range Default(dir).Settings() {
		v.SetDefault(key, value)
	}
	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	name := c.Database.LocalDBName
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("database.local_db_name must be a plain file name (got %q)", name)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative (got %d)", c.History.RetentionDays)
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("sync.timeout must be positive (got %s)", c.Sync.Timeout)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive (got %s)", c.Sync.Interval)
	}
	if c.Notifications.AdvanceMinutes < 0 {
		return fmt.Errorf("notifications.advance_minutes must not be negative (got %d)", c.Notifications.AdvanceMinutes)
	}
	return nil
}

// LocalDBPath is the path of the local store.
func (c *Config) LocalDBPath() string {
	return filepath.Join(c.Dir, c.Database.LocalDBName)
}

// LogPath is the path of the daemon log.
func (c *Config) LogPath() string {
	return filepath.Join(c.Dir, "daemon.log")
}

// Path is the path of config.toml.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, fileName+"."+fileType)
}

// RemoteURL returns the remote connection string, or "" when sync is off.
func (c *Config) RemoteURL() string {
	return strings.TrimSpace(os.Getenv(c.Database.URLEnv))
}

// APIKey returns the text parser API key, or "".
func (c *Config) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.AI.APIKeyEnv))
}

// Retention is history.retention_days as a duration.
func (c *Config) Retention() time.Duration {
	return days(c.History.RetentionDays)
}

// TombstoneTTL is sync.tombstone_ttl_days as a duration.
func (c *Config) TombstoneTTL() time.Duration {
	return days(c.Sync.TombstoneTTLDays)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Settings flattens c into dotted keys. Durations are rendered as strings.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"database.local_db_name":        c.Database.LocalDBName,
		"database.url_env":              c.Database.URLEnv,
		"history.retention_days":        c.History.RetentionDays,
		"sync.timeout":                  c.Sync.Timeout.String(),
		"sync.interval":                 c.Sync.Interval.String(),
		"sync.tombstone_ttl_days":       c.Sync.TombstoneTTLDays,
		"notifications.enabled":         c.Notifications.Enabled,
		"notifications.advance_minutes": c.Notifications.AdvanceMinutes,
		"ai.model":                      c.AI.Model,
		"ai.api_key_env":                c.AI.APIKeyEnv,
		"display.date_format":           c.Display.DateFormat,
		"log.level":                     c.Log.Level,
	}
}

// TOML renders c as a config.toml document.
func (c *Config) TOML() ([]byte, error) {
	tables := map[string]map[string]any{}
	for key, value := range c.Settings() {
		section, name, _ := strings.Cut(key, ".")
		if tables[section] == nil {
			tables[section] = map[string]any{}
		}
		tables[section][name] = value
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tables); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default config.toml into dir and returns its path.
// Returns ErrExists unless force is set.
func WriteDefault(dir string, force bool) (string, error) {
	cfg := Default(dir)
	path := cfg.Path()

	if _, err := os.Stat(path); err == nil && !force {
		return path, ErrExists
	} else if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := cfg.TOML()
	if err != nil {
		return "", err
	}
	header := []byte("# todoee configuration\n# Environment variables TODOEE_<SECTION>_<KEY> override these values.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
