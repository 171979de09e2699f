// Package storage defines the Remote Store contract shared by every backend.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/splitsync/internal/models"
)

// ErrStoreUnavailable is wrapped by every backend failure (unreachable
// service, failed query, closed store). An absent document is not an error.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store is a document store keyed by group identifier with push notifications.
// This abstraction allows swapping storage backends (memory, SQLite,
// PostgreSQL, a remote server) without changing the sync layer.
type Store interface {
	// Create persists a new document under a freshly generated group ID.
	Create(ctx context.Context, ledger *models.Ledger) (string, error)

	// Read returns the document for groupID, or nil and no error when the
	// group does not exist.
	Read(ctx context.Context, groupID string) (*models.Ledger, error)

	// Write replaces the whole document for groupID.
	Write(ctx context.Context, groupID string, ledger *models.Ledger) error

	// Subscribe delivers the current document (nil when absent) right away,
	// then every later version written by any writer, including the caller.
	// fn is never called concurrently with itself for one subscription.
	// A failing subscription delivers nil rather than going silent.
	Subscribe(ctx context.Context, groupID string, fn func(*models.Ledger)) (Subscription, error)

	// Close releases any resources held by the store.
	Close() error
}

// Subscription is the handle returned by Store.Subscribe.
type Subscription interface {
	// Unsubscribe stops deliveries. It is safe to call more than once.
	Unsubscribe()
}

// Unavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
}
