// Package memory provides an in-process implementation of storage.Store.
// It backs single-process deployments and tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/notify"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

var errOffline = errors.New("memory store is offline")

// Store keeps documents in a map. Every value crossing the API is copied.
type Store struct {
	mu      sync.RWMutex
	docs    map[string]*models.Ledger
	offline bool
	closed  bool
	hub     *notify.Hub
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs: make(map[string]*models.Ledger),
		hub:  notify.New(),
	}
}

// SetOffline makes every following call fail with storage.ErrStoreUnavailable
// until it is switched back.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

func (s *Store) check(op string) error {
	if s.closed {
		return storage.Unavailable(op, errors.New("store closed"))
	}
	if s.offline {
		return storage.Unavailable(op, errOffline)
	}
	return nil
}

// Create stores a copy of ledger under a new group ID.
func (s *Store) Create(ctx context.Context, ledger *models.Ledger) (string, error) {
	s.mu.Lock()
	if err := s.check("create group"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	groupID := storage.NewGroupID()
	for s.docs[groupID] != nil {
		groupID = storage.NewGroupID()
	}
	doc := ledger.Clone()
	s.docs[groupID] = doc
	s.mu.Unlock()

	s.hub.Publish(groupID, doc)
	return groupID, nil
}

// Read returns a copy of the document, or nil when the group is unknown.
func (s *Store) Read(ctx context.Context, groupID string) (*models.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("read group"); err != nil {
		return nil, err
	}
	return s.docs[groupID].Clone(), nil
}

// Write replaces the document and notifies subscribers.
func (s *Store) Write(ctx context.Context, groupID string, ledger *models.Ledger) error {
	s.mu.Lock()
	if err := s.check("write group"); err != nil {
		s.mu.Unlock()
		return err
	}
	doc := ledger.Clone()
	s.docs[groupID] = doc
	s.mu.Unlock()

	s.hub.Publish(groupID, doc)
	return nil
}

// Subscribe registers fn and delivers the current document.
func (s *Store) Subscribe(ctx context.Context, groupID string, fn func(*models.Ledger)) (storage.Subscription, error) {
	s.mu.RLock()
	err := s.check("subscribe")
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	sub := s.hub.Register(groupID, fn)
	doc, err := s.Read(ctx, groupID)
	if err != nil {
		doc = nil
	}
	sub.DeliverInitial(doc)
	return sub, nil
}

// Watchers returns the number of live subscriptions.
func (s *Store) Watchers() int {
	return s.hub.Count()
}

// Close drops all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
