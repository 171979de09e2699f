// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/notify"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// maxCreateAttempts bounds retries on group ID collisions.
const maxCreateAttempts = 5

// SQLiteStore implements storage.Store using SQLite.
// Change notifications cover writes made through this store instance.
type SQLiteStore struct {
	db  *sql.DB
	hub *notify.Hub
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver. The pragma applies to every pooled
	// connection, so overlapping writers wait instead of failing fast.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, hub: notify.New()}, nil
}

// Close closes the database connection and drops all subscriptions.
func (s *SQLiteStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// Create persists a new ledger under a freshly generated group ID.
func (s *SQLiteStore) Create(ctx context.Context, ledger *models.Ledger) (string, error) {
	document, err := json.Marshal(ledger)
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger: %w", err)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		groupID := storage.NewGroupID()
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO ledgers (group_id, document, updated_at, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(group_id) DO NOTHING`,
			groupID, string(document), ledger.UpdatedAt, time.Now().UnixMilli(),
		)
		if err != nil {
			return "", storage.Unavailable("insert ledger", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue // collision, try another ID
		}

		s.hub.Publish(groupID, ledger)
		return groupID, nil
	}
	return "", storage.Unavailable("insert ledger", fmt.Errorf("no free group id after %d attempts", maxCreateAttempts))
}

// Read retrieves a ledger by group ID. It returns nil, nil when the group is unknown.
func (s *SQLiteStore) Read(ctx context.Context, groupID string) (*models.Ledger, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM ledgers WHERE group_id = ?",
		groupID,
	).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Unavailable("get ledger", err)
	}

	ledger := &models.Ledger{}
	if err := json.Unmarshal([]byte(document), ledger); err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s: %w", groupID, err)
	}
	return ledger, nil
}

// Write replaces the whole document for groupID.
func (s *SQLiteStore) Write(ctx context.Context, groupID string, ledger *models.Ledger) error {
	document, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledgers (group_id, document, updated_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		groupID, string(document), ledger.UpdatedAt, time.Now().UnixMilli(),
	)
	if err != nil {
		return storage.Unavailable("write ledger", err)
	}

	s.hub.Publish(groupID, ledger)
	return nil
}

// Subscribe registers fn for groupID and delivers the stored document.
// A failed initial read is delivered as absent.
func (s *SQLiteStore) Subscribe(ctx context.Context, groupID string, fn func(*models.Ledger)) (storage.Subscription, error) {
	sub := s.hub.Register(groupID, fn)
	ledger, err := s.Read(ctx, groupID)
	if err != nil {
		ledger = nil
	}
	sub.DeliverInitial(ledger)
	return sub, nil
}

// Watchers returns the number of live subscriptions.
func (s *SQLiteStore) Watchers() int {
	return s.hub.Count()
}
