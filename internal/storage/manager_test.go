package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendSQLite
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "etfwatch.db")

	m, err := NewManager(common.NewSilentLogger(), cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func testHolding(code, name string, qty int64, weight string) models.Holding {
	return models.Holding{
		InstrumentCode: code,
		InstrumentName: name,
		Weight:         decimal.RequireFromString(weight),
		Quantity:       qty,
		Unit:           "股",
	}
}

func testChange(code, name, changeType string, oldQty, newQty int64) models.Change {
	return models.Change{
		InstrumentCode: code,
		InstrumentName: name,
		ChangeType:     changeType,
		OldQuantity:    oldQty,
		NewQuantity:    newQty,
	}
}

func TestNewManager_UnknownBackendRejected(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "mysql"

	_, err := NewManager(common.NewSilentLogger(), cfg)
	if err == nil {
		t.Fatal("expected error for unknown backend, got nil")
	}
}

func TestNewManager_SQLiteRequiresPath(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendSQLite
	cfg.Storage.SQLite.Path = ""

	_, err := NewManager(common.NewSilentLogger(), cfg)
	if err == nil {
		t.Fatal("expected error for missing sqlite path, got nil")
	}
}

func TestNewManager_PostgresUnreachableFails(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendPostgres
	cfg.Storage.Postgres.Host = "127.0.0.1"
	cfg.Storage.Postgres.Port = 1 // nothing listens here

	_, err := NewManager(common.NewSilentLogger(), cfg)
	if err == nil {
		t.Fatal("expected hard failure for unreachable postgres, got nil")
	}
}

func TestReconcileDay_WritesBothStores(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	holdings := []models.Holding{
		testHolding("2330", "台積電", 1000, "12.5"),
		testHolding("2454", "聯發科", 500, "8.25"),
	}
	changes := []models.Change{
		testChange("2330", "台積電", models.ChangeTypeNew, 0, 1000),
		testChange("2454", "聯發科", models.ChangeTypeNew, 0, 500),
	}

	if err := m.ReconcileDay(ctx, "00980A", "2024-01-02", holdings, changes); err != nil {
		t.Fatalf("ReconcileDay failed: %v", err)
	}

	stored, err := m.Holdings().GetDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored holdings = %d, want 2", len(stored))
	}
	if stored[0].InstrumentCode != "2330" {
		t.Errorf("first holding = %s, want 2330 (weight order)", stored[0].InstrumentCode)
	}

	storedChanges, err := m.Changes().GetByDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetByDay failed: %v", err)
	}
	if len(storedChanges) != 2 {
		t.Fatalf("stored changes = %d, want 2", len(storedChanges))
	}
}

func TestReconcileDay_RerunIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	holdings := []models.Holding{testHolding("2330", "台積電", 1000, "12.5")}
	changes := []models.Change{testChange("2330", "台積電", models.ChangeTypeNew, 0, 1000)}

	for i := 0; i < 3; i++ {
		hs := make([]models.Holding, len(holdings))
		copy(hs, holdings)
		cs := make([]models.Change, len(changes))
		copy(cs, changes)
		if err := m.ReconcileDay(ctx, "00980A", "2024-01-02", hs, cs); err != nil {
			t.Fatalf("run %d: ReconcileDay failed: %v", i, err)
		}
	}

	stored, err := m.Holdings().GetDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored holdings after 3 runs = %d, want 1 (no duplication)", len(stored))
	}

	storedChanges, err := m.Changes().GetByDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetByDay failed: %v", err)
	}
	if len(storedChanges) != 1 {
		t.Errorf("stored changes after 3 runs = %d, want 1 (no duplication)", len(storedChanges))
	}
}

func TestReconcileDay_EmptyBatchNeverOverwrites(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	holdings := []models.Holding{testHolding("2330", "台積電", 1000, "12.5")}
	if err := m.ReconcileDay(ctx, "00980A", "2024-01-02", holdings, nil); err != nil {
		t.Fatalf("seed ReconcileDay failed: %v", err)
	}

	err := m.ReconcileDay(ctx, "00980A", "2024-01-02", nil, nil)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	stored, err := m.Holdings().GetDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored holdings = %d after empty-batch attempt, want 1 (untouched)", len(stored))
	}
}

func TestReconcileDay_RollbackLeavesBothStoresUntouched(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	seedHoldings := []models.Holding{testHolding("2330", "台積電", 1000, "12.5")}
	seedChanges := []models.Change{testChange("2330", "台積電", models.ChangeTypeNew, 0, 1000)}
	if err := m.ReconcileDay(ctx, "00980A", "2024-01-02", seedHoldings, seedChanges); err != nil {
		t.Fatalf("seed ReconcileDay failed: %v", err)
	}

	// Fault injector: fail every insert into the change log so the second
	// reconcile dies after the snapshot rewrite already ran inside the tx.
	err := m.DB().Callback().Create().After("gorm:create").Register("test_fail_changes", func(tx *gorm.DB) {
		if tx.Statement != nil && tx.Statement.Table == "holdings_changes" {
			tx.AddError(errors.New("injected change insert failure"))
		}
	})
	if err != nil {
		t.Fatalf("failed to register fault callback: %v", err)
	}
	t.Cleanup(func() { m.DB().Callback().Create().Remove("test_fail_changes") })

	newHoldings := []models.Holding{testHolding("2317", "鴻海", 700, "5.0")}
	newChanges := []models.Change{testChange("2317", "鴻海", models.ChangeTypeNew, 0, 700)}

	err = m.ReconcileDay(ctx, "00980A", "2024-01-02", newHoldings, newChanges)
	if err == nil {
		t.Fatal("expected injected failure, got nil")
	}

	m.DB().Callback().Create().Remove("test_fail_changes")

	stored, err := m.Holdings().GetDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if len(stored) != 1 || stored[0].InstrumentCode != "2330" {
		t.Errorf("snapshot after rollback = %+v, want original 2330 row", stored)
	}

	storedChanges, err := m.Changes().GetByDay(ctx, "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetByDay failed: %v", err)
	}
	if len(storedChanges) != 1 || storedChanges[0].InstrumentCode != "2330" {
		t.Errorf("change log after rollback = %+v, want original 2330 row", storedChanges)
	}
}

func TestReconcileDay_IsolatedPerFund(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.ReconcileDay(ctx, "00980A", "2024-01-02",
		[]models.Holding{testHolding("2330", "台積電", 1000, "12.5")}, nil); err != nil {
		t.Fatalf("ReconcileDay 00980A failed: %v", err)
	}
	if err := m.ReconcileDay(ctx, "00981A", "2024-01-02",
		[]models.Holding{testHolding("2330", "台積電", 2000, "9.0")}, nil); err != nil {
		t.Fatalf("ReconcileDay 00981A failed: %v", err)
	}

	// Rewriting one fund's day must not touch the other fund.
	if err := m.ReconcileDay(ctx, "00980A", "2024-01-02",
		[]models.Holding{testHolding("2454", "聯發科", 300, "4.0")}, nil); err != nil {
		t.Fatalf("ReconcileDay rewrite failed: %v", err)
	}

	other, err := m.Holdings().GetDay(ctx, "00981A", "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if len(other) != 1 || other[0].Quantity != 2000 {
		t.Errorf("00981A after 00980A rewrite = %+v, want untouched 2330/2000", other)
	}
}

func TestManager_PingAndBackend(t *testing.T) {
	m := newTestManager(t)

	if err := m.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if m.Backend() != common.BackendSQLite {
		t.Errorf("Backend() = %q, want %q", m.Backend(), common.BackendSQLite)
	}
}
