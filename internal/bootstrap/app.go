// Package bootstrap loads configuration, sets up logging, and runs the
// process lifecycle for the runners it is given.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gridtrader/internal/config"
	"gridtrader/internal/core"
	"gridtrader/pkg/logging"
)

// App holds the dependencies shared across the process lifetime.
type App struct {
	Cfg    *config.Config
	Logger core.ILogger
}

// NewApp loads configuration and initializes logging.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.New(cfg.System.LogLevel)

	return &App{
		Cfg:    cfg,
		Logger: logger,
	}, nil
}

// Runner is a component that runs until ctx is canceled or it fails.
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts every runner under one errgroup and blocks until either a
// runner fails or the process receives SIGINT/SIGTERM.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			a.Logger.Error("application stopped with error", "error", err)
			return err
		}
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Shutdown flushes logs. timeout is only logged; the flush is not bounded
// by it.
func (a *App) Shutdown(timeout time.Duration) {
	a.Logger.Info("cleaning up resources", "timeout", timeout)
	if z, ok := a.Logger.(interface{ Sync() error }); ok {
		_ = z.Sync()
	}
}
