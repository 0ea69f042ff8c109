// Package storage provides the relational StorageManager over the backend
// selected at startup: embedded SQLite or networked PostgreSQL. The choice
// is explicit config; a backend that cannot be opened or pinged is a fatal
// startup error, never a fallback to the other backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// ErrEmptyBatch guards replace operations: an empty batch never overwrites
// a stored day.
var ErrEmptyBatch = errors.New("refusing to replace stored day with empty batch")

// Manager implements interfaces.StorageManager over a single gorm.DB.
type Manager struct {
	db       *gorm.DB
	backend  string
	holdings *holdingStore
	changes  *changeStore
	warrants *warrantStore
	logger   *common.Logger
}

// NewManager opens the configured backend, verifies the connection and
// migrates the schema.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	backend := config.Storage.Backend

	var dial gorm.Dialector
	switch backend {
	case common.BackendSQLite:
		path := config.Storage.SQLite.Path
		if path == "" {
			return nil, fmt.Errorf("storage backend %q requires storage.sqlite.path", backend)
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory %s: %w", dir, err)
			}
		}
		dial = sqlite.Open(path)
	case common.BackendPostgres:
		dial = postgres.Open(config.Storage.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unknown storage backend %q: must be %q or %q",
			backend, common.BackendSQLite, common.BackendPostgres)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", backend, err)
	}

	m := &Manager{
		db:      db,
		backend: backend,
		logger:  logger,
	}
	m.holdings = &holdingStore{db: db, logger: logger}
	m.changes = &changeStore{db: db, logger: logger}
	m.warrants = &warrantStore{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Ping(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("%s storage unreachable: %w", backend, err)
	}

	if err := db.AutoMigrate(
		&models.Holding{},
		&models.Change{},
		&models.Warrant{},
		&models.WarrantSummary{},
	); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to migrate %s schema: %w", backend, err)
	}

	logger.Info().
		Str("backend", backend).
		Msg("Storage manager initialized")

	return m, nil
}

func (m *Manager) Holdings() interfaces.HoldingStore { return m.holdings }

func (m *Manager) Changes() interfaces.ChangeStore { return m.changes }

func (m *Manager) Warrants() interfaces.WarrantStore { return m.warrants }

// DB exposes the underlying handle for integration tests.
func (m *Manager) DB() *gorm.DB { return m.db }

// ReconcileDay replaces a fund-day's snapshot and change log atomically.
// The snapshot delete+insert and the change log delete+insert share one
// transaction; any failure rolls back both.
func (m *Manager) ReconcileDay(ctx context.Context, fundCode, date string, holdings []models.Holding, changes []models.Change) error {
	if len(holdings) == 0 {
		return fmt.Errorf("reconcile %s %s: %w", fundCode, date, ErrEmptyBatch)
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceHoldingsDay(tx, fundCode, date, holdings); err != nil {
			return err
		}
		return replaceChangesDay(tx, fundCode, date, changes)
	})
	if err != nil {
		return fmt.Errorf("reconcile %s %s: %w", fundCode, date, err)
	}

	m.logger.Debug().
		Str("fund", fundCode).
		Str("date", date).
		Int("holdings", len(holdings)).
		Int("changes", len(changes)).
		Msg("Fund day reconciled")
	return nil
}

// Ping verifies the backend connection.
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Backend returns the configured backend identifier.
func (m *Manager) Backend() string { return m.backend }

// Close releases the database connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
