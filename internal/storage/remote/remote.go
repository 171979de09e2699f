// Package remote implements storage.Store against a splitsync server, so
// sessions in separate processes share one set of documents.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/service"
	"github.com/mmynk/splitsync/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// rewatchDelay is the pause before reopening a broken watch stream.
const rewatchDelay = 2 * time.Second

// Store forwards every call to a LedgerService.
type Store struct {
	client *service.LedgerClient

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// New creates a store talking to the server at baseURL. httpClient may be
// nil to use http.DefaultClient.
func New(baseURL string, httpClient connect.HTTPClient) *Store {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Store{
		client: service.NewLedgerClient(httpClient, baseURL),
		subs:   make(map[*subscription]struct{}),
	}
}

// Create asks the server to store ledger under a new group ID.
func (s *Store) Create(ctx context.Context, ledger *models.Ledger) (string, error) {
	resp, err := s.client.CreateLedger(ctx, connect.NewRequest(&service.CreateLedgerRequest{Ledger: ledger}))
	if err != nil {
		return "", fromConnect("create group", err)
	}
	return resp.Msg.GroupID, nil
}

// Read fetches the current document, nil when the group is unknown.
func (s *Store) Read(ctx context.Context, groupID string) (*models.Ledger, error) {
	resp, err := s.client.GetLedger(ctx, connect.NewRequest(&service.GetLedgerRequest{GroupID: groupID}))
	if err != nil {
		return nil, fromConnect("read group", err)
	}
	if !resp.Msg.Found {
		return nil, nil
	}
	return resp.Msg.Ledger, nil
}

// Write replaces the document on the server.
func (s *Store) Write(ctx context.Context, groupID string, ledger *models.Ledger) error {
	_, err := s.client.WriteLedger(ctx, connect.NewRequest(&service.WriteLedgerRequest{GroupID: groupID, Ledger: ledger}))
	if err != nil {
		return fromConnect("write group", err)
	}
	return nil
}

// Subscribe opens a watch stream. The stream is reopened after failures
// until Unsubscribe; while the server cannot be reached fn receives nil.
func (s *Store) Subscribe(ctx context.Context, groupID string, fn func(*models.Ledger)) (storage.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.Unavailable("subscribe", errors.New("store closed"))
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{store: s, cancel: cancel, done: make(chan struct{})}
	s.subs[sub] = struct{}{}

	go sub.watch(watchCtx, s.client, groupID, fn)
	return sub, nil
}

// Close ends every open watch stream.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[*subscription]struct{})
	s.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
	for sub := range subs {
		<-sub.done
	}
	return nil
}

type subscription struct {
	store  *Store
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (sub *subscription) Unsubscribe() {
	sub.store.mu.Lock()
	delete(sub.store.subs, sub)
	sub.store.mu.Unlock()
	sub.stop()
}

func (sub *subscription) stop() {
	sub.once.Do(sub.cancel)
}

func (sub *subscription) watch(ctx context.Context, client *service.LedgerClient, groupID string, fn func(*models.Ledger)) {
	defer close(sub.done)
	logger := slog.With("group_id", groupID)

	for {
		err := sub.stream(ctx, client, groupID, fn)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Watch stream broken, retrying", "error", err, "retry_in", rewatchDelay)
		fn(nil)

		select {
		case <-ctx.Done():
			return
		case <-time.After(rewatchDelay):
		}
	}
}

// stream runs one watch call until it fails. The first message of every
// call is the current document, so a reconnect also catches up on changes
// missed while disconnected.
func (sub *subscription) stream(ctx context.Context, client *service.LedgerClient, groupID string, fn func(*models.Ledger)) error {
	stream, err := client.WatchLedger(ctx, connect.NewRequest(&service.WatchLedgerRequest{GroupID: groupID}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		msg := stream.Msg()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg.Found {
			fn(msg.Ledger)
		} else {
			fn(nil)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("watch stream closed by server")
}

// fromConnect turns RPC failures back into store errors. Rejected documents
// surface as validation errors; everything else is unavailability.
func fromConnect(op string, err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) && connectErr.Code() == connect.CodeInvalidArgument {
		return models.NewValidationError("ledger", "%s", connectErr.Message())
	}
	return storage.Unavailable(op, err)
}
