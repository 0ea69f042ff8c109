package holdings

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// --- Mock disclosure client ---

type mockDisclosureClient struct {
	data  map[string]*models.DtnoData
	errs  map[string]error
	calls []string
}

func (m *mockDisclosureClient) GetHoldings(_ context.Context, fundCode string) (*models.DtnoData, error) {
	m.calls = append(m.calls, fundCode)
	if err := m.errs[fundCode]; err != nil {
		return nil, err
	}
	return m.data[fundCode], nil
}

// --- Mock storage ---

type reconcileCall struct {
	fundCode string
	date     string
	holdings []models.Holding
	changes  []models.Change
}

type mockHoldingStore struct {
	priorDate string
	days      map[string][]models.Holding // keyed fund|date
	latest    map[string]string
	dates     []string
	joined    []models.HoldingWithChange
	cross     []models.CrossHolding
}

func (m *mockHoldingStore) ReplaceDay(_ context.Context, _, _ string, _ []models.Holding) error {
	return nil
}

func (m *mockHoldingStore) GetDay(_ context.Context, fundCode, date string) ([]models.Holding, error) {
	return m.days[fundCode+"|"+date], nil
}

func (m *mockHoldingStore) LatestPriorDate(_ context.Context, _, _ string) (string, error) {
	return m.priorDate, nil
}

func (m *mockHoldingStore) LatestDate(_ context.Context, fundCode string) (string, error) {
	return m.latest[fundCode], nil
}

func (m *mockHoldingStore) AvailableDates(_ context.Context, _ string) ([]string, error) {
	return m.dates, nil
}

func (m *mockHoldingStore) HoldingsWithChanges(_ context.Context, _, _ string) ([]models.HoldingWithChange, error) {
	return m.joined, nil
}

func (m *mockHoldingStore) CrossFundHoldings(_ context.Context, _ string) ([]models.CrossHolding, error) {
	return m.cross, nil
}

type mockChangeStore struct {
	byDay     []models.Change
	newOnDay  []models.Change
	decreased []models.Change
}

func (m *mockChangeStore) ReplaceDay(_ context.Context, _, _ string, _ []models.Change) error {
	return nil
}

func (m *mockChangeStore) GetByDay(_ context.Context, _, _ string, _ ...string) ([]models.Change, error) {
	return m.byDay, nil
}

func (m *mockChangeStore) NewOnDay(_ context.Context, _ string) ([]models.Change, error) {
	return m.newOnDay, nil
}

func (m *mockChangeStore) DecreasedOnDay(_ context.Context, _ string) ([]models.Change, error) {
	return m.decreased, nil
}

type mockStorageManager struct {
	holdings     *mockHoldingStore
	changes      *mockChangeStore
	reconciled   []reconcileCall
	reconcileErr error
}

func (m *mockStorageManager) Holdings() interfaces.HoldingStore { return m.holdings }
func (m *mockStorageManager) Changes() interfaces.ChangeStore   { return m.changes }
func (m *mockStorageManager) Warrants() interfaces.WarrantStore { return nil }

func (m *mockStorageManager) ReconcileDay(_ context.Context, fundCode, date string, holdings []models.Holding, changes []models.Change) error {
	if m.reconcileErr != nil {
		return m.reconcileErr
	}
	m.reconciled = append(m.reconciled, reconcileCall{fundCode, date, holdings, changes})
	return nil
}

func (m *mockStorageManager) Ping(_ context.Context) error { return nil }
func (m *mockStorageManager) Backend() string              { return "mock" }
func (m *mockStorageManager) Close() error                 { return nil }

// --- Helpers ---

var testFunds = []models.Fund{
	{Code: "00980A", Name: "主動野村臺灣優選"},
	{Code: "00981A", Name: "主動統一台股增長"},
}

func dtnoRow(code, name, weight, shares string) []string {
	return []string{"2024-01-02", code, name, weight, shares, "股"}
}

func newMockStorage() *mockStorageManager {
	return &mockStorageManager{
		holdings: &mockHoldingStore{
			days:   make(map[string][]models.Holding),
			latest: make(map[string]string),
		},
		changes: &mockChangeStore{},
	}
}

func newTestService(storage *mockStorageManager, client *mockDisclosureClient) *Service {
	return NewService(storage, client, testFunds, common.NewSilentLogger())
}

// --- Tests ---

func TestIngestFund_DiffsAgainstPriorSnapshot(t *testing.T) {
	storage := newMockStorage()
	storage.holdings.priorDate = "2024-01-01"
	storage.holdings.days["00980A|2024-01-01"] = []models.Holding{
		holding("AAA", "甲公司", 100, "5.0"),
		holding("BBB", "乙公司", 50, "2.5"),
	}

	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00980A": {Data: [][]string{
				dtnoRow("AAA", "甲公司", "7.0", "150"),
				dtnoRow("CCC", "丙公司", "0.5", "10"),
			}},
		},
	}

	svc := newTestService(storage, client)
	result, err := svc.IngestFund(context.Background(), "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("IngestFund failed: %v", err)
	}

	if result.Holdings != 2 || result.Changes != 3 {
		t.Errorf("result holdings/changes = %d/%d, want 2/3", result.Holdings, result.Changes)
	}
	if result.PriorDate != "2024-01-01" {
		t.Errorf("prior date = %s, want 2024-01-01", result.PriorDate)
	}
	if result.FundName != "主動野村臺灣優選" {
		t.Errorf("fund name = %s, want registry name", result.FundName)
	}

	if len(storage.reconciled) != 1 {
		t.Fatalf("reconciled %d times, want 1", len(storage.reconciled))
	}
	call := storage.reconciled[0]
	if call.fundCode != "00980A" || call.date != "2024-01-02" {
		t.Errorf("reconciled %s/%s, want 00980A/2024-01-02", call.fundCode, call.date)
	}
	if len(call.holdings) != 2 {
		t.Errorf("reconciled %d holdings, want 2", len(call.holdings))
	}

	wantChanges := []struct {
		code       string
		changeType string
		oldQty     int64
		newQty     int64
	}{
		{"AAA", models.ChangeTypeIncreased, 100, 150},
		{"CCC", models.ChangeTypeNew, 0, 10},
		{"BBB", models.ChangeTypeRemoved, 50, 0},
	}
	if len(call.changes) != len(wantChanges) {
		t.Fatalf("reconciled %d changes, want %d", len(call.changes), len(wantChanges))
	}
	for i, want := range wantChanges {
		got := call.changes[i]
		if got.InstrumentCode != want.code || got.ChangeType != want.changeType ||
			got.OldQuantity != want.oldQty || got.NewQuantity != want.newQty {
			t.Errorf("change %d = %s/%s %d→%d, want %s/%s %d→%d",
				i, got.InstrumentCode, got.ChangeType, got.OldQuantity, got.NewQuantity,
				want.code, want.changeType, want.oldQty, want.newQty)
		}
	}
}

func TestIngestFund_UnknownFund(t *testing.T) {
	client := &mockDisclosureClient{}
	svc := newTestService(newMockStorage(), client)

	_, err := svc.IngestFund(context.Background(), "00999A", "2024-01-02")
	if !errors.Is(err, ErrUnknownFund) {
		t.Fatalf("expected ErrUnknownFund, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("client called %d times for unknown fund, want 0", len(client.calls))
	}
}

func TestIngestFund_EmptyDisclosureNeverStored(t *testing.T) {
	storage := newMockStorage()
	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00980A": {Title: []string{"日期"}},
		},
	}

	svc := newTestService(storage, client)
	_, err := svc.IngestFund(context.Background(), "00980A", "2024-01-02")
	if !errors.Is(err, ErrEmptyDisclosure) {
		t.Fatalf("expected ErrEmptyDisclosure, got %v", err)
	}
	if len(storage.reconciled) != 0 {
		t.Errorf("reconciled %d times for empty disclosure, want 0", len(storage.reconciled))
	}
}

func TestIngestFund_FirstRunAllNew(t *testing.T) {
	storage := newMockStorage()
	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00980A": {Data: [][]string{
				dtnoRow("AAA", "甲公司", "5.0", "100"),
				dtnoRow("BBB", "乙公司", "2.5", "50"),
			}},
		},
	}

	svc := newTestService(storage, client)
	result, err := svc.IngestFund(context.Background(), "00980A", "2024-01-02")
	if err != nil {
		t.Fatalf("IngestFund failed: %v", err)
	}

	if result.PriorDate != "" {
		t.Errorf("prior date = %q, want empty on first run", result.PriorDate)
	}
	call := storage.reconciled[0]
	if len(call.changes) != 2 {
		t.Fatalf("reconciled %d changes, want 2", len(call.changes))
	}
	for _, c := range call.changes {
		if c.ChangeType != models.ChangeTypeNew {
			t.Errorf("change %s type = %s, want NEW", c.InstrumentCode, c.ChangeType)
		}
	}
}

func TestIngestFund_DateFromDisclosureRows(t *testing.T) {
	storage := newMockStorage()
	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00980A": {Data: [][]string{
				{"2024/01/10", "AAA", "甲公司", "5.0", "100", "股"},
			}},
		},
	}

	svc := newTestService(storage, client)
	result, err := svc.IngestFund(context.Background(), "00980A", "")
	if err != nil {
		t.Fatalf("IngestFund failed: %v", err)
	}
	if result.Date != "2024-01-10" {
		t.Errorf("date = %s, want 2024-01-10 from the disclosure rows", result.Date)
	}
	if storage.reconciled[0].date != "2024-01-10" {
		t.Errorf("stored under %s, want 2024-01-10", storage.reconciled[0].date)
	}
}

func TestIngestFund_ExplicitDateOverridesRows(t *testing.T) {
	storage := newMockStorage()
	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00980A": {Data: [][]string{
				dtnoRow("AAA", "甲公司", "5.0", "100"),
			}},
		},
	}

	svc := newTestService(storage, client)
	result, err := svc.IngestFund(context.Background(), "00980A", "2024-02-20")
	if err != nil {
		t.Fatalf("IngestFund failed: %v", err)
	}
	if result.Date != "2024-02-20" {
		t.Errorf("date = %s, want the explicit 2024-02-20 over the row date", result.Date)
	}
}

func TestIngestFund_DatelessRowsFallBackToToday(t *testing.T) {
	storage := newMockStorage()
	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00980A": {Data: [][]string{
				{"最近一日", "AAA", "甲公司", "5.0", "100", "股"},
			}},
		},
	}

	svc := newTestService(storage, client)
	result, err := svc.IngestFund(context.Background(), "00980A", "")
	if err != nil {
		t.Fatalf("IngestFund failed: %v", err)
	}
	want := time.Now().Format(models.DateFormat)
	if result.Date != want {
		t.Errorf("date = %s, want today %s", result.Date, want)
	}
}

func TestIngestAll_ContinuesPastFailures(t *testing.T) {
	storage := newMockStorage()
	client := &mockDisclosureClient{
		data: map[string]*models.DtnoData{
			"00981A": {Data: [][]string{dtnoRow("AAA", "甲公司", "5.0", "100")}},
		},
		errs: map[string]error{
			"00980A": errors.New("connection refused"),
		},
	}

	svc := newTestService(storage, client)
	results := svc.IngestAll(context.Background(), "2024-01-02")

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Error == "" {
		t.Errorf("first result should carry the fetch error")
	}
	if results[1].Error != "" || results[1].Holdings != 1 {
		t.Errorf("second result = %+v, want clean ingest of 1 holding", results[1])
	}
	if len(storage.reconciled) != 1 {
		t.Errorf("reconciled %d times, want 1", len(storage.reconciled))
	}
}

func TestHoldingsOnDay_ResolvesLatestDate(t *testing.T) {
	storage := newMockStorage()
	storage.holdings.latest["00980A"] = "2024-01-05"
	storage.holdings.joined = []models.HoldingWithChange{
		{InstrumentCode: "2330", ChangeType: models.ChangeTypeIncreased},
	}

	svc := newTestService(storage, &mockDisclosureClient{})
	rows, date, err := svc.HoldingsOnDay(context.Background(), "00980A", "")
	if err != nil {
		t.Fatalf("HoldingsOnDay failed: %v", err)
	}
	if date != "2024-01-05" {
		t.Errorf("resolved date = %s, want 2024-01-05", date)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestHoldingsOnDay_NoDataFund(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockDisclosureClient{})

	rows, date, err := svc.HoldingsOnDay(context.Background(), "00980A", "")
	if err != nil {
		t.Fatalf("HoldingsOnDay failed: %v", err)
	}
	if date != "" || len(rows) != 0 {
		t.Errorf("no-data fund returned %d rows at %q, want none", len(rows), date)
	}
}

func TestCrossFundHoldings_FillsFundNames(t *testing.T) {
	storage := newMockStorage()
	storage.holdings.dates = []string{"2024-01-02"}
	storage.holdings.cross = []models.CrossHolding{
		{
			InstrumentCode: "2330",
			FundCount:      2,
			TotalQuantity:  300,
			Funds: []models.CrossHoldingFund{
				{FundCode: "00980A", Quantity: 100},
				{FundCode: "00981A", Quantity: 200},
			},
		},
	}

	svc := newTestService(storage, &mockDisclosureClient{})
	cross, err := svc.CrossFundHoldings(context.Background(), "")
	if err != nil {
		t.Fatalf("CrossFundHoldings failed: %v", err)
	}
	if len(cross) != 1 {
		t.Fatalf("cross = %d rows, want 1", len(cross))
	}
	if cross[0].Funds[0].FundName != "主動野村臺灣優選" {
		t.Errorf("fund name = %q, want registry name", cross[0].Funds[0].FundName)
	}
	if cross[0].Funds[1].FundName != "主動統一台股增長" {
		t.Errorf("fund name = %q, want registry name", cross[0].Funds[1].FundName)
	}
}

func TestWeightChart_RendersPNG(t *testing.T) {
	storage := newMockStorage()
	storage.holdings.latest["00980A"] = "2024-01-02"
	storage.holdings.days["00980A|2024-01-02"] = []models.Holding{
		holding("2330", "台積電", 1000, "12.5"),
		holding("2454", "聯發科", 500, "8.25"),
		holding("2317", "鴻海", 700, "5.0"),
	}

	svc := newTestService(storage, &mockDisclosureClient{})
	png, err := svc.WeightChart(context.Background(), "00980A", "", 2)
	if err != nil {
		t.Fatalf("WeightChart failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("output does not start with PNG magic, got %d bytes", len(png))
	}
}

func TestWeightChart_NoData(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockDisclosureClient{})
	if _, err := svc.WeightChart(context.Background(), "00980A", "", 5); err == nil {
		t.Fatal("expected error for fund with no stored disclosures")
	}
}
