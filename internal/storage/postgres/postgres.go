// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface.
//
// Every write sends pg_notify on the ledger_changes channel inside its
// transaction. A listener goroutine holds one pooled connection in LISTEN
// mode and re-reads changed documents for local subscribers, so writes from
// any process reach every subscriber.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/notify"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

const (
	channel           = "ledger_changes"
	maxCreateAttempts = 5
	relistenDelay     = 2 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS ledgers (
    group_id TEXT PRIMARY KEY,
    document JSONB NOT NULL,
    updated_at BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ledgers_updated_at ON ledgers(updated_at);`

// Config holds connection settings.
type Config struct {
	DSN      string
	MaxConns int
}

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	hub    *notify.Hub
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects, migrates the schema and starts the change listener.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolConf, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PostgreSQL config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConf.MaxConns = int32(cfg.MaxConns)
	}
	// One connection is pinned by the listener.
	if poolConf.MaxConns < 2 {
		poolConf.MaxConns = 2
	}
	poolConf.HealthCheckPeriod = 15 * time.Second
	poolConf.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		return nil, storage.Unavailable("create PostgreSQL pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Unavailable("connect to PostgreSQL", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:   pool,
		hub:    notify.New(),
		logger: slog.Default().With("component", "postgres"),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.listen(listenCtx)
	return s, nil
}

// Close stops the listener, drops subscriptions and closes the pool.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	s.hub.Close()
	s.pool.Close()
	return nil
}

// Create inserts a new ledger under a fresh group ID.
func (s *Store) Create(ctx context.Context, ledger *models.Ledger) (string, error) {
	document, err := json.Marshal(ledger)
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger: %w", err)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		groupID := storage.NewGroupID()
		inserted := false
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`INSERT INTO ledgers (group_id, document, updated_at) VALUES ($1, $2, $3)
				 ON CONFLICT (group_id) DO NOTHING`,
				groupID, document, ledger.UpdatedAt,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			inserted = true
			_, err = tx.Exec(ctx, "SELECT pg_notify($1, $2)", channel, groupID)
			return err
		})
		if err != nil {
			return "", storage.Unavailable("insert ledger", err)
		}
		if inserted {
			return groupID, nil
		}
	}
	return "", storage.Unavailable("insert ledger", fmt.Errorf("no free group id after %d attempts", maxCreateAttempts))
}

// Read returns the ledger for groupID, or nil, nil when it does not exist.
func (s *Store) Read(ctx context.Context, groupID string) (*models.Ledger, error) {
	var document []byte
	err := s.pool.QueryRow(ctx,
		"SELECT document FROM ledgers WHERE group_id = $1",
		groupID,
	).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Unavailable("get ledger", err)
	}

	ledger := &models.Ledger{}
	if err := json.Unmarshal(document, ledger); err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s: %w", groupID, err)
	}
	return ledger, nil
}

// Write replaces the document and notifies listeners in the same transaction.
func (s *Store) Write(ctx context.Context, groupID string, ledger *models.Ledger) error {
	document, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledgers (group_id, document, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (group_id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
			groupID, document, ledger.UpdatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", channel, groupID)
		return err
	})
	if err != nil {
		return storage.Unavailable("write ledger", err)
	}
	return nil
}

// Subscribe registers fn and delivers the stored document.
func (s *Store) Subscribe(ctx context.Context, groupID string, fn func(*models.Ledger)) (storage.Subscription, error) {
	sub := s.hub.Register(groupID, fn)
	ledger, err := s.Read(ctx, groupID)
	if err != nil {
		s.logger.Warn("Initial read for subscription failed", "group_id", groupID, "error", err)
		ledger = nil
	}
	sub.DeliverInitial(ledger)
	return sub, nil
}

// Watchers returns the number of live subscriptions.
func (s *Store) Watchers() int {
	return s.hub.Count()
}

// listen keeps a LISTEN connection open until ctx is cancelled, reconnecting
// after failures. After every (re)connect watched groups are re-read, since
// notifications sent while disconnected are lost.
func (s *Store) listen(ctx context.Context) {
	defer s.wg.Done()
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Change listener disconnected", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(relistenDelay):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	// LISTEN state must not leak back into the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logger.Debug("Change listener started", "channel", channel)

	for _, groupID := range s.hub.Groups() {
		s.refresh(ctx, groupID)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.refresh(ctx, n.Payload)
	}
}

func (s *Store) refresh(ctx context.Context, groupID string) {
	if !s.hub.Watched(groupID) {
		return
	}
	ledger, err := s.Read(ctx, groupID)
	if err != nil {
		s.logger.Warn("Failed to read changed ledger", "group_id", groupID, "error", err)
		return
	}
	s.hub.Publish(groupID, ledger)
}
