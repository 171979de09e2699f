package driver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mmynk/splitsync/internal/config"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage/memory"
	"github.com/mmynk/splitsync/internal/storage/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		store, err := Open(ctx, config.StoreConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "ledgers.db"),
		})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*sqlite.SQLiteStore); !ok {
			t.Errorf("expected *sqlite.SQLiteStore, got %T", store)
		}
		if _, err := store.Create(ctx, models.NewLedger("", 1)); err != nil {
			t.Errorf("Create failed: %v", err)
		}
	})

	t.Run("memory", func(t *testing.T) {
		store, err := Open(ctx, config.StoreConfig{Driver: config.DriverMemory})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*memory.Store); !ok {
			t.Errorf("expected *memory.Store, got %T", store)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := Open(ctx, config.StoreConfig{Driver: "redis"}); err == nil {
			t.Error("expected error for unknown driver")
		}
	})
}
