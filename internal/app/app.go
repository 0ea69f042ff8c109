// Package app wires configuration, storage, clients and services into the
// shared application core used by cmd/etfwatch-server and the test suites.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yhlin/etfwatch/internal/clients/fbs"
	"github.com/yhlin/etfwatch/internal/clients/pocket"
	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
	"github.com/yhlin/etfwatch/internal/services/holdings"
	"github.com/yhlin/etfwatch/internal/services/warrants"
	"github.com/yhlin/etfwatch/internal/storage"
)

// App holds all initialized clients and services.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	Storage         interfaces.StorageManager
	PocketClient    interfaces.DisclosureClient
	FBSClient       interfaces.WarrantClient
	HoldingsService interfaces.HoldingsService
	WarrantService  interfaces.WarrantService
	StartupTime     time.Time

	holdingsCancel  context.CancelFunc
	warrantsCancel  context.CancelFunc
	bootstrapCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients and services.
// configPath may be empty, in which case the default resolution logic is
// used: ETFWATCH_CONFIG, then etfwatch.toml beside the binary, then the
// development config directory.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("ETFWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "etfwatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/etfwatch.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve a relative database path against the binary directory so the
	// server is self-contained wherever it is installed.
	if config.Storage.SQLite.Path != "" && !filepath.IsAbs(config.Storage.SQLite.Path) {
		config.Storage.SQLite.Path = filepath.Join(binDir, config.Storage.SQLite.Path)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	pocketOpts := []pocket.ClientOption{
		pocket.WithLogger(logger),
		pocket.WithTimeout(config.Clients.Pocket.GetTimeout()),
	}
	if config.Clients.Pocket.BaseURL != "" {
		pocketOpts = append(pocketOpts, pocket.WithBaseURL(config.Clients.Pocket.BaseURL))
	}
	if config.Clients.Pocket.DtNo != "" {
		pocketOpts = append(pocketOpts, pocket.WithDtNo(config.Clients.Pocket.DtNo))
	}
	if config.Clients.Pocket.RateLimit > 0 {
		pocketOpts = append(pocketOpts, pocket.WithRateLimit(config.Clients.Pocket.RateLimit))
	}
	pocketClient := pocket.NewClient(pocketOpts...)

	fbsOpts := []fbs.ClientOption{
		fbs.WithLogger(logger),
		fbs.WithTimeout(config.Clients.FBS.GetTimeout()),
	}
	if config.Clients.FBS.BaseURL != "" {
		fbsOpts = append(fbsOpts, fbs.WithBaseURL(config.Clients.FBS.BaseURL))
	}
	if config.Clients.FBS.RateLimit > 0 {
		fbsOpts = append(fbsOpts, fbs.WithRateLimit(config.Clients.FBS.RateLimit))
	}
	fbsClient := fbs.NewClient(fbsOpts...)

	funds := make([]models.Fund, 0, len(config.Funds))
	for _, f := range config.Funds {
		funds = append(funds, models.Fund{Code: f.Code, Name: f.Name})
	}

	holdingsService := holdings.NewService(storageManager, pocketClient, funds, logger)
	warrantService := warrants.NewService(storageManager, fbsClient, logger)

	a := &App{
		Config:          config,
		Logger:          logger,
		Storage:         storageManager,
		PocketClient:    pocketClient,
		FBSClient:       fbsClient,
		HoldingsService: holdingsService,
		WarrantService:  warrantService,
		StartupTime:     startupStart,
	}

	logger.Info().
		Str("backend", storageManager.Backend()).
		Int("funds", len(funds)).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: cancel schedulers, cancel bootstrap, close storage.
func (a *App) Close() {
	if a.holdingsCancel != nil {
		a.holdingsCancel()
		a.holdingsCancel = nil
	}
	if a.warrantsCancel != nil {
		a.warrantsCancel()
		a.warrantsCancel = nil
	}
	if a.bootstrapCancel != nil {
		a.bootstrapCancel()
		a.bootstrapCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
