package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dfvmonitor/energyforecast/internal/controllers/restserver"
	"github.com/dfvmonitor/energyforecast/internal/database"
	"github.com/dfvmonitor/energyforecast/internal/log"
	"github.com/dfvmonitor/energyforecast/internal/pipeline"
	"github.com/dfvmonitor/energyforecast/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	cfg            *config.ConfigData
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance from a loaded and validated configuration
func New(cfg *config.ConfigData, configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:            cfg,
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts, err := pipeline.OptionsFromConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	// Connect to the reading store
	db := database.NewClient(a.cfg.Storage.TimescaleDB.ConnectionString, a.logger)
	if err := db.Connect(); err != nil {
		return fmt.Errorf("failed to connect to reading database: %w", err)
	}
	defer db.Close()

	service := pipeline.NewService(db, opts, a.logger)

	// Heater changes are only persisted when the configuration source can be written
	var settings config.SettingsWriter
	if !a.configProvider.IsReadOnly() {
		if w, ok := a.configProvider.(config.SettingsWriter); ok {
			settings = w
		}
	}

	rest, err := restserver.NewController(ctx, &wg, service, settings, a.cfg.REST, a.logger)
	if err != nil {
		return err
	}
	if err := rest.StartController(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
