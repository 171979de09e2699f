package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmynk/splitsync/internal/config"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/session"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/memory"
)

// sharedStore keeps one store alive across command runs.
type sharedStore struct{ storage.Store }

func (sharedStore) Close() error { return nil }

func run(t *testing.T, store storage.Store, args ...string) (string, error) {
	t.Helper()
	c := &cli{openStore: func(context.Context, *cli) (storage.Store, error) {
		return sharedStore{store}, nil
	}}
	var out, errOut bytes.Buffer
	err := c.execute(context.Background(), append(args, "--currency", "KRW"), &out, &errOut)
	return out.String(), err
}

func mustRun(t *testing.T, store storage.Store, args ...string) string {
	t.Helper()
	out, err := run(t, store, args...)
	if err != nil {
		t.Fatalf("splitctl %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestTripWorkflow(t *testing.T) {
	store := memory.New()
	defer store.Close()

	groupID := strings.TrimSpace(mustRun(t, store, "new", "--name", "Trip"))
	if !storage.ValidGroupID(groupID) {
		t.Fatalf("new printed %q, want a group id", groupID)
	}

	mustRun(t, store, "person", "add", groupID, "Alice", "Bob", "Charlie")
	mustRun(t, store, "expense", "add", groupID, "--name", "Hotel", "--amount", "15000", "--paid-by", "Alice")
	mustRun(t, store, "expense", "add", groupID, "--name", "Dinner", "--amount", "9000", "--paid-by", "bob")

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "pairwise netting",
			args: []string{"settle", groupID},
			want: []string{
				"Bob pays Alice ₩2,000",
				"Charlie pays Alice ₩5,000",
				"Charlie pays Bob ₩3,000",
			},
		},
		{
			name: "greedy",
			args: []string{"settle", groupID, "--greedy"},
			want: []string{
				"Charlie pays Alice ₩7,000",
				"Charlie pays Bob ₩1,000",
			},
			notWant: []string{"Bob pays Alice"},
		},
		{
			name:    "filtered to payer",
			args:    []string{"settle", groupID, "--person", "Bob", "--direction", "from"},
			want:    []string{"Bob pays Alice ₩2,000"},
			notWant: []string{"Charlie pays Bob"},
		},
		{
			name: "show",
			args: []string{"show", groupID},
			want: []string{"Trip [" + groupID + "]", "People (3)", "Expenses (2)", "Total ₩24,000, ₩8,000 per person"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustRun(t, store, tt.args...)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output unexpectedly contains %q:\n%s", w, out)
				}
			}
		})
	}

	t.Run("rename and remove person", func(t *testing.T) {
		mustRun(t, store, "rename", groupID, "Jeju")
		mustRun(t, store, "person", "rm", groupID, "Alice")

		l, err := store.Read(context.Background(), groupID)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if l.GroupName != "Jeju" || len(l.People) != 2 {
			t.Errorf("ledger = %+v", l)
		}
		if l.Expenses[0].PaidBy != "" {
			t.Errorf("Hotel PaidBy = %q, want cleared", l.Expenses[0].PaidBy)
		}

		out := mustRun(t, store, "show", groupID)
		if !strings.Contains(out, "paid by (nobody)") {
			t.Errorf("show should mark the missing payer:\n%s", out)
		}
	})

	t.Run("edit and toggle expense", func(t *testing.T) {
		l, _ := store.Read(context.Background(), groupID)
		dinner := l.Expenses[1].ID

		mustRun(t, store, "expense", "edit", groupID, dinner, "--amount", "6000")
		mustRun(t, store, "expense", "split", groupID, dinner, "Charlie")

		l, _ = store.Read(context.Background(), groupID)
		e := l.Expenses[1]
		if e.Amount != 6000 || len(e.SplitAmong) != 1 {
			t.Errorf("dinner = %+v, want 6000 split with Bob only", e)
		}

		mustRun(t, store, "expense", "rm", groupID, dinner)
		l, _ = store.Read(context.Background(), groupID)
		if len(l.Expenses) != 1 {
			t.Errorf("expenses = %d, want 1", len(l.Expenses))
		}
	})
}

func TestCommandErrors(t *testing.T) {
	store := memory.New()
	defer store.Close()
	groupID := strings.TrimSpace(mustRun(t, store, "new"))
	mustRun(t, store, "person", "add", groupID, "Alice")

	t.Run("unknown group", func(t *testing.T) {
		_, err := run(t, store, "show", "Missing1")
		if !errors.Is(err, session.ErrGroupNotFound) {
			t.Errorf("error = %v, want ErrGroupNotFound", err)
		}
	})

	t.Run("bad amount", func(t *testing.T) {
		_, err := run(t, store, "expense", "add", groupID, "--name", "x", "--amount", "lots")
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("error = %v, want ValidationError", err)
		}
	})

	t.Run("unknown person", func(t *testing.T) {
		_, err := run(t, store, "person", "rm", groupID, "Zed")
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("error = %v, want ValidationError", err)
		}
	})

	t.Run("bad direction", func(t *testing.T) {
		_, err := run(t, store, "settle", groupID, "--person", "Alice", "--direction", "sideways")
		if err == nil {
			t.Error("expected an error for an unknown direction")
		}
	})

	t.Run("store offline", func(t *testing.T) {
		store.SetOffline(true)
		defer store.SetOffline(false)
		_, err := run(t, store, "new")
		if !errors.Is(err, storage.ErrStoreUnavailable) {
			t.Errorf("error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		want     string
	}{
		{15000, "KRW", "₩15,000"},
		{3333.33, "KRW", "₩3,333"},
		{12.5, "USD", "$12.50"},
		{12.5, "ZZZ", "12.50 ZZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			if got := formatAmount(tt.amount, tt.currency); got != tt.want {
				t.Errorf("formatAmount(%v, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestResolvePerson(t *testing.T) {
	l := &models.Ledger{People: []models.Person{
		{ID: "p1", Name: "Alice"},
		{ID: "p2", Name: "Kim"},
		{ID: "p3", Name: "kim"},
	}}

	if id, err := resolvePerson(l, "p1"); err != nil || id != "p1" {
		t.Errorf("by id = %q, %v", id, err)
	}
	if id, err := resolvePerson(l, "alice"); err != nil || id != "p1" {
		t.Errorf("by name = %q, %v", id, err)
	}
	if _, err := resolvePerson(l, "Kim"); err == nil {
		t.Error("ambiguous name should fail")
	}
	if _, err := resolvePerson(l, "Lee"); err == nil {
		t.Error("unknown name should fail")
	}
}

func TestLogLevel(t *testing.T) {
	cfg := &config.Config{Log: config.LogConfig{Level: "error"}}

	if got := logLevel(cfg, false); got != "error" {
		t.Errorf("logLevel() = %q, want the configured level", got)
	}
	if got := logLevel(cfg, true); got != "debug" {
		t.Errorf("logLevel(verbose) = %q, want debug", got)
	}
}
