package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/controllers/restserver"
	"github.com/chrissnell/disturbancemonitor/internal/controllers/scheduler"
	"github.com/chrissnell/disturbancemonitor/internal/engine"
	"github.com/chrissnell/disturbancemonitor/internal/managers"
	"github.com/chrissnell/disturbancemonitor/internal/scenes"
	"github.com/chrissnell/disturbancemonitor/pkg/config"
)

// Run modes
const (
	ModeServe = "serve"
	ModeOnce  = "once"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application. In ModeOnce it drains the spool a single time
// and returns; in ModeServe it blocks until a shutdown signal arrives or ctx
// is cancelled.
func (a *App) Run(ctx context.Context, mode string) error {
	if mode != ModeServe && mode != ModeOnce {
		return fmt.Errorf("unsupported mode %q. Use '%s' or '%s'", mode, ModeServe, ModeOnce)
	}

	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	storageManager, err := managers.NewStorageManager(ctx, cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	defer storageManager.Close()

	spool, err := scenes.NewSpool(cfg.Engine.SpoolDir, a.logger)
	if err != nil {
		return err
	}

	processor := NewProcessor(a.configProvider, engine.New(storageManager.Store, cfg.Engine.Workers, a.logger), a.logger)

	if mode == ModeOnce {
		_, err := processor.Drain(ctx, spool)
		return err
	}

	storageManager.StartHealthMonitor(ctx, &wg, cfg.Scheduler.HealthIntervalDuration(), a.logger)

	cm := managers.NewControllerManager(a.logger)

	sched, err := scheduler.NewController(ctx, &wg, cfg.Scheduler.IntervalDuration(), func(ctx context.Context) error {
		_, err := processor.Drain(ctx, spool)
		return err
	}, a.logger)
	if err != nil {
		return err
	}
	cm.AddController(sched)

	if cfg.Server != nil {
		cm.AddController(restserver.NewController(ctx, &wg, a.configProvider, storageManager.Store,
			storageManager.Health, *cfg.Server, a.logger))
	}

	if err := cm.StartControllers(); err != nil {
		return err
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
