// Package config loads the notesync configuration file.
//
// The file is YAML or TOML, chosen by extension. Defaults are applied before
// decoding, a missing file is written out with the defaults, and the result
// is checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "NOTESYNC_CONFIG"

const (
	DefaultFileName  = "config.yaml"
	DefaultDBName    = "notesync.db"
	DefaultCacheName = "local.json"
	DefaultAddr      = "127.0.0.1:8750"
)

//go:embed schema.cue
var schemaSource string

// Config is the whole configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server" toml:"server"`
	Client   ClientConfig   `json:"client" yaml:"client" toml:"client"`
	Calendar CalendarConfig `json:"calendar" yaml:"calendar" toml:"calendar"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
}

// ServerConfig configures the bundled backend.
type ServerConfig struct {
	Addr   string `json:"addr" yaml:"addr" toml:"addr"`
	DBPath string `json:"db_path" yaml:"db_path" toml:"db_path"`
	Driver string `json:"driver" yaml:"driver" toml:"driver"`
}

// ClientConfig configures the command-line client.
type ClientConfig struct {
	ServerURL   string `json:"server_url" yaml:"server_url" toml:"server_url"`
	UserID      string `json:"user_id" yaml:"user_id" toml:"user_id"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty" toml:"email,omitempty"`
	CachePath   string `json:"cache_path" yaml:"cache_path" toml:"cache_path"`
	QuietPeriod string `json:"quiet_period" yaml:"quiet_period" toml:"quiet_period"`
}

// Quiet returns the editor debounce delay.
func (c ClientConfig) Quiet() time.Duration {
	d, err := time.ParseDuration(c.QuietPeriod)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// CalendarConfig configures task reminders.
type CalendarConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty" toml:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty" toml:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty" yaml:"redirect_url,omitempty" toml:"redirect_url,omitempty"`
	CalendarID   string `json:"calendar_id" yaml:"calendar_id" toml:"calendar_id"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// SlogLevel maps Level onto slog.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:   DefaultAddr,
			DBPath: DefaultDBName,
			Driver: "sqlite3",
		},
		Client: ClientConfig{
			ServerURL:   "http://" + DefaultAddr,
			UserID:      "local",
			CachePath:   DefaultCacheName,
			QuietPeriod: "500ms",
		},
		Calendar: CalendarConfig{
			CalendarID: "primary",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ResolvePath picks the config file: the explicit path, then $NOTESYNC_CONFIG,
// then config.yaml in the user config directory.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "notesync", DefaultFileName), nil
}

// Load reads and validates the file at path. Relative database and cache
// paths are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// LoadOrCreate loads path, writing the defaults there first if it does not
// exist.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Write(path, Default()); err != nil {
			return Default(), err
		}
	}
	return Load(path)
}

// Write encodes cfg in the format implied by path's extension.
func Write(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "toml":
		data, err = toml.Marshal(cfg)
	case "yaml":
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch format(path) {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	case "yaml":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(cfg)
	}
	return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}

func (c *Config) resolve(base string) {
	if c.Server.DBPath != "" && !filepath.IsAbs(c.Server.DBPath) {
		c.Server.DBPath = filepath.Join(base, c.Server.DBPath)
	}
	if c.Client.CachePath != "" && !filepath.IsAbs(c.Client.CachePath) {
		c.Client.CachePath = filepath.Join(base, c.Client.CachePath)
	}
}
