// Package config provides Viper-based configuration loading for the bridge server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/bridge/internal/game/grid"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Name identifies this server instance in logs.
	Name string `mapstructure:"name"`
}

// WebsocketConfig holds the client-facing WebSocket listener settings.
type WebsocketConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`
	// Port is the TCP port. 0 picks a free port.
	Port int `mapstructure:"port"`
	// Path is the upgrade endpoint, e.g. "/ws".
	Path string `mapstructure:"path"`
	// ReadTimeout bounds the wait for the next client frame. 0 disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SendBuffer is the number of frames queued per connection.
	SendBuffer int `mapstructure:"send_buffer"`
	// OriginPatterns lists accepted Origin host patterns.
	OriginPatterns []string `mapstructure:"origin_patterns"`
	// StaticDir is served at "/" when set, e.g. a built client bundle.
	StaticDir string `mapstructure:"static_dir"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WebsocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds the board geometry and win policy.
type GameConfig struct {
	Cols     int `mapstructure:"cols"`
	Rows     int `mapstructure:"rows"`
	GapStart int `mapstructure:"gap_start"`
	GapEnd   int `mapstructure:"gap_end"`
	// VerifyWin makes the server check win claims against its own grid.
	VerifyWin bool `mapstructure:"verify_win"`
}

// Layout returns the board geometry.
func (g GameConfig) Layout() grid.Layout {
	return grid.Layout{
		Cols:     g.Cols,
		Rows:     g.Rows,
		GapStart: g.GapStart,
		GapEnd:   g.GapEnd,
	}
}

// DatabaseConfig holds PostgreSQL connection settings for the room archive.
type DatabaseConfig struct {
	// Enabled turns the room archive on.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Game      GameConfig      `mapstructure:"game"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Name == "" {
		errs = append(errs, "server.name must not be empty")
	}
	if err := validateWebsocket(c.Websocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Game.Layout().Validate(); err != nil {
		errs = append(errs, "game: "+err.Error())
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebsocket(w WebsocketConfig) error {
	var errs []string
	if w.Port < 0 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 0-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.ReadTimeout < 0 {
		errs = append(errs, "websocket.read_timeout must not be negative")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if w.StaticDir != "" {
		if info, err := os.Stat(w.StaticDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Sprintf("websocket.static_dir must be an existing directory, got %q", w.StaticDir))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be in [0, max_conns]")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies BRIDGE_*
// environment overrides, and validates the result. An empty path loads
// defaults and environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "bridge")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 3000)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_timeout", "0s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.origin_patterns", []string{"*"})
	v.SetDefault("websocket.static_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	layout := grid.DefaultLayout()
	v.SetDefault("game.cols", layout.Cols)
	v.SetDefault("game.rows", layout.Rows)
	v.SetDefault("game.gap_start", layout.GapStart)
	v.SetDefault("game.gap_end", layout.GapEnd)
	v.SetDefault("game.verify_win", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bridge")
	v.SetDefault("database.password", "bridge")
	v.SetDefault("database.name", "bridge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
}
