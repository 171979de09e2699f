package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/service"
	"github.com/mmynk/splitsync/internal/session"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/memory"
)

// setupRemote starts a ledger server over an in-memory store and returns
// the backing store plus a connected remote store.
func setupRemote(t *testing.T) (*memory.Store, *Store, *httptest.Server) {
	t.Helper()

	backing := memory.New()
	path, handler := service.NewLedgerServiceHandler(service.NewLedgerService(backing, nil))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	store := New(server.URL, server.Client())

	// Streams must end before the server can shut down.
	t.Cleanup(func() {
		store.Close()
		server.Close()
		backing.Close()
	})
	return backing, store, server
}

func TestRemoteStore(t *testing.T) {
	backing, store, _ := setupRemote(t)
	ctx := context.Background()

	groupID, err := store.Create(ctx, models.NewLedger("Trip", 1000))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !storage.ValidGroupID(groupID) {
		t.Fatalf("Create returned %q", groupID)
	}

	t.Run("Read round trip", func(t *testing.T) {
		l, err := store.Read(ctx, groupID)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if l == nil || l.GroupName != "Trip" || l.UpdatedAt != 1000 {
			t.Errorf("Read = %+v", l)
		}
	})

	t.Run("Read absent", func(t *testing.T) {
		l, err := store.Read(ctx, "Missing1")
		if err != nil || l != nil {
			t.Errorf("Read(missing) = %v, %v; want nil, nil", l, err)
		}
	})

	t.Run("Write replaces document", func(t *testing.T) {
		next := models.NewLedger("Trip 2", 2000)
		next.People = []models.Person{{ID: "a", Name: "A"}}
		if err := store.Write(ctx, groupID, next); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		l, _ := backing.Read(ctx, groupID)
		if l.GroupName != "Trip 2" || len(l.People) != 1 {
			t.Errorf("backing document = %+v", l)
		}
	})

	t.Run("Write rejects invalid document", func(t *testing.T) {
		bad := models.NewLedger("Bad", 3000)
		bad.Expenses = []models.Expense{{ID: "e", Name: "x", Amount: -1}}
		err := store.Write(ctx, groupID, bad)
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Write error = %v, want ValidationError", err)
		}
	})

	t.Run("Subscribe streams changes", func(t *testing.T) {
		got := make(chan *models.Ledger, 4)
		sub, err := store.Subscribe(ctx, groupID, func(l *models.Ledger) { got <- l })
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		select {
		case l := <-got:
			if l == nil || l.UpdatedAt != 2000 {
				t.Fatalf("initial snapshot = %+v", l)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no initial snapshot")
		}

		if err := backing.Write(ctx, groupID, models.NewLedger("Trip 3", 4000)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		select {
		case l := <-got:
			if l == nil || l.UpdatedAt != 4000 {
				t.Errorf("update = %+v", l)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no update")
		}
	})

	t.Run("Subscribe to absent group", func(t *testing.T) {
		got := make(chan *models.Ledger, 1)
		sub, err := store.Subscribe(ctx, "Missing1", func(l *models.Ledger) {
			select {
			case got <- l:
			default:
			}
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		select {
		case l := <-got:
			if l != nil {
				t.Errorf("snapshot = %+v, want nil", l)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no snapshot")
		}
	})
}

func TestRemoteStoreUnavailable(t *testing.T) {
	backing, store, _ := setupRemote(t)
	backing.SetOffline(true)

	_, err := store.Create(context.Background(), models.NewLedger("Trip", 1000))
	if !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Errorf("Create error = %v, want ErrStoreUnavailable", err)
	}
}

func TestRemoteStoreServerDown(t *testing.T) {
	_, store, server := setupRemote(t)
	server.Close()

	_, err := store.Read(context.Background(), "Abcd1234")
	if !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Errorf("Read error = %v, want ErrStoreUnavailable", err)
	}
}

func TestSessionsShareThroughServer(t *testing.T) {
	_, storeA, server := setupRemote(t)
	storeB := New(server.URL, server.Client())
	t.Cleanup(func() { storeB.Close() })
	ctx := context.Background()

	a := session.New(storeA, session.WithDebounce(time.Hour))
	defer a.Close()
	if err := a.Start(ctx, ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	b := session.New(storeB, session.WithDebounce(time.Hour))
	defer b.Close()
	if err := b.Start(ctx, a.GroupID()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := a.AddPerson("Alice"); err != nil {
		t.Fatalf("AddPerson failed: %v", err)
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if l := b.Snapshot(); l != nil && len(l.People) == 1 && l.People[0].Name == "Alice" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session b never saw the write: %+v", b.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
