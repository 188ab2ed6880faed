// Package main provides the bridge server binary: a WebSocket endpoint that
// pairs players into rooms and relays the canonical grid between them.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bridge/internal/config"
	"github.com/cory-johannsen/bridge/internal/frontend/ws"
	"github.com/cory-johannsen/bridge/internal/game/room"
	"github.com/cory-johannsen/bridge/internal/game/session"
	"github.com/cory-johannsen/bridge/internal/observability"
	"github.com/cory-johannsen/bridge/internal/relay"
	"github.com/cory-johannsen/bridge/internal/server"
	"github.com/cory-johannsen/bridge/internal/storage/postgres"
)

const healthInterval = 30 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty = defaults and BRIDGE_* environment")
	stopTimeout := flag.Duration("stop-timeout", server.DefaultStopTimeout, "upper bound on graceful shutdown")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	layout := cfg.Game.Layout()
	logger.Info("starting bridge server",
		zap.String("addr", cfg.Websocket.Addr()),
		zap.String("path", cfg.Websocket.Path),
		zap.Int("cols", layout.Cols),
		zap.Int("rows", layout.Rows),
		zap.Int("target_row", layout.TargetRow()),
		zap.Bool("verify_win", cfg.Game.VerifyWin),
	)

	lifecycle := server.NewLifecycle(logger.Named("lifecycle"), *stopTimeout)

	rooms := room.NewManager(layout)
	sessions := session.NewManager(cfg.Websocket.SendBuffer)
	relayOpts := []relay.Option{relay.WithWinVerification(cfg.Game.VerifyWin)}
	var acceptorOpts []ws.Option

	// Connect to PostgreSQL for the room archive
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	switch {
	case errors.Is(err, postgres.ErrDisabled):
		logger.Info("room archive disabled")
	case err != nil:
		logger.Fatal("connecting to database", zap.Error(err))
	default:
		archive := postgres.NewRoomArchive(pool.DB(), uuid.New())
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.String("instance", archive.InstanceID().String()),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		relayOpts = append(relayOpts, relay.WithRecorder(archive))
		acceptorOpts = append(acceptorOpts, ws.WithDatabaseCheck(func(ctx context.Context) error {
			return pool.Health(ctx, 2*time.Second)
		}))

		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				ticker := time.NewTicker(healthInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
	}

	rl := relay.New(rooms, sessions, logger.Named("relay"), relayOpts...)
	acceptor := ws.NewAcceptor(cfg.Websocket, rl, sessions, rooms, logger.Named("ws"), acceptorOpts...)

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func(context.Context) error {
			return acceptor.ListenAndServe()
		},
		StopFn: acceptor.Stop,
	})

	logger.Info("bridge server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
