// Package server runs the bridge server's long-lived services and shuts them
// down in reverse order on a termination signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultStopTimeout bounds the whole shutdown sequence.
const DefaultStopTimeout = 15 * time.Second

// Service is a long-running component.
type Service interface {
	// Start runs the service and blocks until it stops or fails.
	Start(ctx context.Context) error
	// Stop asks the service to stop; it should return once it has.
	Stop(ctx context.Context) error
}

// FuncService adapts a start/stop function pair into the Service interface.
// A nil StopFn is a no-op.
type FuncService struct {
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

// Start calls the underlying start function.
func (f *FuncService) Start(ctx context.Context) error { return f.StartFn(ctx) }

// Stop calls the underlying stop function.
func (f *FuncService) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration
	services    []namedService
	mu          sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil. A non-positive stopTimeout selects DefaultStopTimeout.
func NewLifecycle(logger *zap.Logger, stopTimeout time.Duration) *Lifecycle {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Lifecycle{
		logger:      logger,
		stopTimeout: stopTimeout,
	}
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until SIGINT/SIGTERM, ctx cancellation,
// or the first service failure, then stops every service.
//
// Postcondition: All services have been asked to stop. Returns the first
// service failure, or nil on a signal or cancellation.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	cancel()
	l.shutdown(services)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService) {
	ctx, cancel := context.WithTimeout(context.Background(), l.stopTimeout)
	defer cancel()

	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		if err := ns.service.Stop(ctx); err != nil {
			l.logger.Warn("service stop failed",
				zap.String("service", ns.name),
				zap.Error(err),
			)
			continue
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}
