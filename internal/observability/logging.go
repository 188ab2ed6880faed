// Package observability builds the bridge server's zap loggers.
//
// NewLogger produces the root logger from the logging section of the config.
// The "json" format is for deployed servers and "console" for local play.
// Every entry from the root carries a "server" field holding the configured
// server name. Components take a child logger from Named ("relay", "ws",
// "lifecycle"). The acceptor narrows "ws" per client with ForConnection.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/bridge/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig, serverName string) (*zap.Logger, error) {
	zapCfg, err := buildConfig(cfg, serverName)
	if err != nil {
		return nil, err
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// ForConnection returns a child logger tagged with a client connection.
func ForConnection(logger *zap.Logger, connID, remoteAddr string) *zap.Logger {
	return logger.With(zap.String("conn", connID), zap.String("remote_addr", remoteAddr))
}

func buildConfig(cfg config.LoggingConfig, serverName string) (zap.Config, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if serverName != "" {
		zapCfg.InitialFields = map[string]interface{}{"server": serverName}
	}
	return zapCfg, nil
}
