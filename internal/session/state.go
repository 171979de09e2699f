// Package session keeps one group ledger in sync with a shared store.
//
// A Coordinator owns the local copy of a group's ledger. Local edits apply
// immediately and mark the session dirty; a debounce timer coalesces them
// into one whole-document write. Snapshots pushed by the store are merged by
// timestamp: only a snapshot newer than anything this session has seen or
// written replaces the local ledger, so echoes of our own writes and stale
// versions are ignored. Concurrent writers are resolved last-write-wins.
//
// Every event (mutation, snapshot, timer, write completion) runs on one
// goroutine per session, so the session state needs no locking.
package session

import (
	"errors"

	"github.com/mmynk/splitsync/internal/models"
)

var (
	// ErrGroupNotFound is reported when the store has no document for the
	// requested group. The session becomes terminal.
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotBound is returned by mutations issued before the session holds a ledger.
	ErrNotBound = errors.New("session not bound to a group")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("session closed")
)

// State is the lifecycle phase of a session.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateBound
	StateNotFound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateBound:
		return "bound"
	case StateNotFound:
		return "not_found"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionState is everything a session knows about its group. It is owned by
// the coordinator's event loop and handed by pointer to mutation functions.
type SessionState struct {
	GroupID string
	Ledger  *models.Ledger

	// Dirty is set by local mutations and cleared once a write covering
	// them succeeds or a newer remote snapshot replaces the ledger.
	Dirty bool

	// Revision counts local mutations.
	Revision uint64

	// LastSeen is the highest UpdatedAt observed from the store or assigned
	// to one of our writes.
	LastSeen int64

	// LastWritten is the UpdatedAt of our most recent write.
	LastWritten int64

	// Writing is the just-wrote flag: raised when a write is issued and
	// lowered shortly after it completes.
	Writing bool
}
