package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/splitsync/internal/metrics"
	"github.com/mmynk/splitsync/internal/middleware"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/memory"
	"github.com/mmynk/splitsync/internal/storage/sqlite"
)

// setupTestServer serves a LedgerService backed by store and returns a client for it.
func setupTestServer(t *testing.T, store storage.Store, m *metrics.Metrics) *LedgerClient {
	t.Helper()

	path, handler := NewLedgerServiceHandler(
		NewLedgerService(store, m),
		connect.WithInterceptors(middleware.LoggingInterceptor()),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewLedgerClient(http.DefaultClient, server.URL)
}

// setupSQLiteServer creates a test server over a temp SQLite database.
func setupSQLiteServer(t *testing.T) *LedgerClient {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitsync-service-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return setupTestServer(t, store, nil)
}

func tripLedger() *models.Ledger {
	return &models.Ledger{
		GroupName: "Trip",
		People: []models.Person{
			{ID: "A", Name: "Alice"},
			{ID: "B", Name: "Bob"},
			{ID: "C", Name: "Charlie"},
		},
		Expenses: []models.Expense{
			{ID: "e1", Name: "Hotel", Amount: 15000, PaidBy: "A", SplitAmong: []string{"A", "B", "C"}},
			{ID: "e2", Name: "Dinner", Amount: 9000, PaidBy: "B", SplitAmong: []string{"A", "B", "C"}},
		},
		UpdatedAt: 1000,
	}
}

func TestCreateLedger(t *testing.T) {
	client := setupSQLiteServer(t)
	ctx := context.Background()

	resp, err := client.CreateLedger(ctx, connect.NewRequest(&CreateLedgerRequest{Ledger: tripLedger()}))
	if err != nil {
		t.Fatalf("CreateLedger failed: %v", err)
	}
	if !storage.ValidGroupID(resp.Msg.GroupID) {
		t.Fatalf("expected a generated group ID, got %q", resp.Msg.GroupID)
	}

	getResp, err := client.GetLedger(ctx, connect.NewRequest(&GetLedgerRequest{GroupID: resp.Msg.GroupID}))
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if !getResp.Msg.Found {
		t.Fatal("expected ledger to be found")
	}
	got := getResp.Msg.Ledger
	if got.GroupName != "Trip" {
		t.Errorf("name: expected 'Trip', got '%s'", got.GroupName)
	}
	if len(got.People) != 3 || len(got.Expenses) != 2 {
		t.Errorf("expected 3 people and 2 expenses, got %d and %d", len(got.People), len(got.Expenses))
	}
	if got.UpdatedAt != 1000 {
		t.Errorf("updatedAt: expected 1000, got %d", got.UpdatedAt)
	}
}

func TestCreateLedger_Empty(t *testing.T) {
	client := setupSQLiteServer(t)
	ctx := context.Background()

	resp, err := client.CreateLedger(ctx, connect.NewRequest(&CreateLedgerRequest{}))
	if err != nil {
		t.Fatalf("CreateLedger failed: %v", err)
	}
	getResp, err := client.GetLedger(ctx, connect.NewRequest(&GetLedgerRequest{GroupID: resp.Msg.GroupID}))
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	got := getResp.Msg.Ledger
	if got.GroupName != models.DefaultGroupName {
		t.Errorf("name: expected default name, got '%s'", got.GroupName)
	}
	if got.People == nil || got.Expenses == nil {
		t.Error("expected empty, non-nil people and expenses")
	}
	if got.UpdatedAt == 0 {
		t.Error("expected non-zero updatedAt")
	}
}

func TestGetLedger_NotFound(t *testing.T) {
	client := setupSQLiteServer(t)

	resp, err := client.GetLedger(context.Background(), connect.NewRequest(&GetLedgerRequest{GroupID: "Missing1"}))
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if resp.Msg.Found || resp.Msg.Ledger != nil {
		t.Errorf("expected absent ledger, got %+v", resp.Msg)
	}
}

func TestInvalidRequests(t *testing.T) {
	client := setupSQLiteServer(t)
	ctx := context.Background()

	negative := tripLedger()
	negative.Expenses[0].Amount = -5

	dangling := tripLedger()
	dangling.Expenses[1].SplitAmong = []string{"A", "Z"}

	tests := []struct {
		name string
		call func() error
	}{
		{
			name: "malformed group id",
			call: func() error {
				_, err := client.GetLedger(ctx, connect.NewRequest(&GetLedgerRequest{GroupID: "not/an-id"}))
				return err
			},
		},
		{
			name: "write without ledger",
			call: func() error {
				_, err := client.WriteLedger(ctx, connect.NewRequest(&WriteLedgerRequest{GroupID: "Abcd1234"}))
				return err
			},
		},
		{
			name: "negative amount",
			call: func() error {
				_, err := client.WriteLedger(ctx, connect.NewRequest(&WriteLedgerRequest{GroupID: "Abcd1234", Ledger: negative}))
				return err
			},
		},
		{
			name: "split with unknown person",
			call: func() error {
				_, err := client.CreateLedger(ctx, connect.NewRequest(&CreateLedgerRequest{Ledger: dangling}))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if connect.CodeOf(err) != connect.CodeInvalidArgument {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestWriteLedger(t *testing.T) {
	client := setupSQLiteServer(t)
	ctx := context.Background()

	createResp, err := client.CreateLedger(ctx, connect.NewRequest(&CreateLedgerRequest{}))
	if err != nil {
		t.Fatalf("CreateLedger failed: %v", err)
	}
	groupID := createResp.Msg.GroupID

	updated := tripLedger()
	updated.UpdatedAt = time.Now().UnixMilli() + 1000
	if _, err := client.WriteLedger(ctx, connect.NewRequest(&WriteLedgerRequest{GroupID: groupID, Ledger: updated})); err != nil {
		t.Fatalf("WriteLedger failed: %v", err)
	}

	getResp, err := client.GetLedger(ctx, connect.NewRequest(&GetLedgerRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if getResp.Msg.Ledger.UpdatedAt != updated.UpdatedAt {
		t.Errorf("updatedAt: expected %d, got %d", updated.UpdatedAt, getResp.Msg.Ledger.UpdatedAt)
	}
	if len(getResp.Msg.Ledger.Expenses) != 2 {
		t.Errorf("expenses: expected 2, got %d", len(getResp.Msg.Ledger.Expenses))
	}
}

func TestWatchLedger(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := memory.New()
	defer store.Close()
	client := setupTestServer(t, store, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	groupID, err := store.Create(ctx, tripLedger())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stream, err := client.WatchLedger(ctx, connect.NewRequest(&WatchLedgerRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("WatchLedger failed: %v", err)
	}
	defer stream.Close()

	if !stream.Receive() {
		t.Fatalf("expected initial snapshot, got %v", stream.Err())
	}
	if !stream.Msg().Found || stream.Msg().Ledger.UpdatedAt != 1000 {
		t.Fatalf("initial snapshot: %+v", stream.Msg())
	}
	if n := testutil.ToFloat64(m.ActiveWatchers); n != 1 {
		t.Errorf("active watchers: expected 1, got %v", n)
	}

	next := tripLedger()
	next.GroupName = "Trip (renamed)"
	next.UpdatedAt = 2000
	if err := store.Write(ctx, groupID, next); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if !stream.Receive() {
		t.Fatalf("expected update, got %v", stream.Err())
	}
	if got := stream.Msg().Ledger; got.GroupName != "Trip (renamed)" || got.UpdatedAt != 2000 {
		t.Errorf("update: %+v", got)
	}
}

func TestWatchLedger_NotFound(t *testing.T) {
	client := setupSQLiteServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.WatchLedger(ctx, connect.NewRequest(&WatchLedgerRequest{GroupID: "Missing1"}))
	if err != nil {
		t.Fatalf("WatchLedger failed: %v", err)
	}
	defer stream.Close()

	if !stream.Receive() {
		t.Fatalf("expected a snapshot, got %v", stream.Err())
	}
	if stream.Msg().Found {
		t.Errorf("expected absent snapshot, got %+v", stream.Msg())
	}
}

func TestGetSettlements(t *testing.T) {
	client := setupSQLiteServer(t)
	ctx := context.Background()

	createResp, err := client.CreateLedger(ctx, connect.NewRequest(&CreateLedgerRequest{Ledger: tripLedger()}))
	if err != nil {
		t.Fatalf("CreateLedger failed: %v", err)
	}
	groupID := createResp.Msg.GroupID

	tests := []struct {
		name         string
		greedy       bool
		validateFunc func(t *testing.T, resp *GetSettlementsResponse)
	}{
		{
			name: "pairwise netting",
			validateFunc: func(t *testing.T, resp *GetSettlementsResponse) {
				want := []models.Settlement{
					{From: "B", To: "A", Amount: 2000},
					{From: "C", To: "A", Amount: 5000},
					{From: "C", To: "B", Amount: 3000},
				}
				if len(resp.Settlements) != len(want) {
					t.Fatalf("expected %d settlements, got %+v", len(want), resp.Settlements)
				}
				for i, s := range resp.Settlements {
					if s.From != want[i].From || s.To != want[i].To || math.Abs(s.Amount-want[i].Amount) > 0.01 {
						t.Errorf("settlement %d: expected %+v, got %+v", i, want[i], s)
					}
				}
			},
		},
		{
			name:   "greedy",
			greedy: true,
			validateFunc: func(t *testing.T, resp *GetSettlementsResponse) {
				if len(resp.Settlements) != 2 {
					t.Fatalf("expected 2 settlements, got %+v", resp.Settlements)
				}
				for _, s := range resp.Settlements {
					if s.From != "C" {
						t.Errorf("expected Charlie to pay every transfer, got %+v", s)
					}
				}
			},
		},
		{
			name: "balances and summary",
			validateFunc: func(t *testing.T, resp *GetSettlementsResponse) {
				want := map[string]float64{"A": 7000, "B": 1000, "C": -8000}
				for _, b := range resp.Balances {
					if math.Abs(b.NetBalance-want[b.PersonID]) > 0.01 {
						t.Errorf("%s net: expected %.2f, got %.2f", b.PersonID, want[b.PersonID], b.NetBalance)
					}
				}
				if math.Abs(resp.Summary.TotalExpense-24000) > 0.01 {
					t.Errorf("total: expected 24000, got %.2f", resp.Summary.TotalExpense)
				}
				if math.Abs(resp.Summary.AveragePerPerson-8000) > 0.01 {
					t.Errorf("average: expected 8000, got %.2f", resp.Summary.AveragePerPerson)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.GetSettlements(ctx, connect.NewRequest(&GetSettlementsRequest{GroupID: groupID, Greedy: tt.greedy}))
			if err != nil {
				t.Fatalf("GetSettlements failed: %v", err)
			}
			tt.validateFunc(t, resp.Msg)
		})
	}

	t.Run("unknown group", func(t *testing.T) {
		_, err := client.GetSettlements(ctx, connect.NewRequest(&GetSettlementsRequest{GroupID: "Missing1"}))
		if connect.CodeOf(err) != connect.CodeNotFound {
			t.Errorf("expected NotFound, got %v", err)
		}
	})
}

func TestStoreUnavailable(t *testing.T) {
	store := memory.New()
	defer store.Close()
	client := setupTestServer(t, store, nil)

	store.SetOffline(true)
	_, err := client.GetLedger(context.Background(), connect.NewRequest(&GetLedgerRequest{GroupID: "Abcd1234"}))
	if connect.CodeOf(err) != connect.CodeUnavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected a connect error, got %T", err)
	}
}
