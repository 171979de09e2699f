package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/splitsync/internal/calculator"
	"github.com/mmynk/splitsync/internal/metrics"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage"
)

const (
	// DefaultDebounce is the quiet period after the last edit before writing.
	DefaultDebounce = 3 * time.Second

	// DefaultEchoWindow is how long the just-wrote flag stays up after a write.
	DefaultEchoWindow = 100 * time.Millisecond

	defaultWriteTimeout = 10 * time.Second
)

type options struct {
	debounce     time.Duration
	echoWindow   time.Duration
	writeTimeout time.Duration
	groupName    string
	clock        func() int64
	scheduler    Scheduler
	newID        func() string
	logger       *slog.Logger
	metrics      *metrics.Metrics
	onChange     func(*models.Ledger)
	onError      func(error)
}

// Option configures a Coordinator.
type Option func(*options)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

// WithEchoWindow sets how long our own writes are treated as echoes.
func WithEchoWindow(d time.Duration) Option { return func(o *options) { o.echoWindow = d } }

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) Option { return func(o *options) { o.writeTimeout = d } }

// WithGroupName names groups created by Start.
func WithGroupName(name string) Option { return func(o *options) { o.groupName = name } }

// WithClock sets the source of write timestamps in milliseconds.
func WithClock(now func() int64) Option { return func(o *options) { o.clock = now } }

// WithScheduler replaces the timer implementation.
func WithScheduler(s Scheduler) Option { return func(o *options) { o.scheduler = s } }

// WithIDGenerator replaces the generator of person and expense ids.
func WithIDGenerator(f func() string) Option { return func(o *options) { o.newID = f } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics records session activity.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// OnChange registers fn to receive a copy of the ledger whenever it changes
// locally or is replaced by a remote snapshot. fn runs on the session loop
// and must not call back into the Coordinator.
func OnChange(fn func(*models.Ledger)) Option { return func(o *options) { o.onChange = fn } }

// OnError registers fn to receive store failures and ErrGroupNotFound.
// Same restrictions as OnChange.
func OnError(fn func(error)) Option { return func(o *options) { o.onError = fn } }

// Coordinator synchronizes one group session with a store.
type Coordinator struct {
	store  storage.Store
	opts   options
	logger *slog.Logger

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	st         SessionState
	state      State
	sub        storage.Subscription
	debounce   Timer
	debounceID uint64
	echo       Timer
	echoID     uint64
	ready      chan error
	inFlight   bool
	owed       bool // a debounce fired during the in-flight write
	queued     []chan error
}

// New creates a coordinator for store and starts its event loop. Call Start
// to bind it to a group and Close to release it.
func New(store storage.Store, opts ...Option) *Coordinator {
	o := options{
		debounce:     DefaultDebounce,
		echoWindow:   DefaultEchoWindow,
		writeTimeout: defaultWriteTimeout,
		clock:        func() int64 { return time.Now().UnixMilli() },
		scheduler:    realScheduler{},
		newID:        storage.NewID,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Coordinator{
		store:  store,
		opts:   o,
		logger: o.logger.With("component", "session"),
		events: make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			return
		}
	}
}

// do runs fn on the loop and waits for its result.
func (c *Coordinator) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case c.events <- func() { res <- fn() }:
	case <-c.done:
		return ErrClosed
	}
	return <-res
}

// post hands fn to the loop from timers, subscriptions and writers.
// It is dropped once the session is closed.
func (c *Coordinator) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// Start binds the session to a group. With an empty groupID a new empty
// ledger is created in the store; otherwise Start subscribes and waits for
// the first snapshot, returning ErrGroupNotFound when the group is absent.
func (c *Coordinator) Start(ctx context.Context, groupID string) error {
	err := c.do(func() error {
		if c.state != StateUninitialized {
			return fmt.Errorf("session already started (%s)", c.state)
		}
		if groupID != "" {
			c.state = StateLoading
			c.st.GroupID = groupID
			c.ready = make(chan error, 1)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if groupID == "" {
		return c.create(ctx)
	}
	return c.load(ctx, groupID)
}

func (c *Coordinator) create(ctx context.Context) error {
	ledger := models.NewLedger(c.opts.groupName, c.opts.clock())
	groupID, err := c.store.Create(ctx, ledger)
	if err != nil {
		c.logger.Error("Failed to create group", "error", err)
		return fmt.Errorf("failed to create group: %w", err)
	}

	err = c.do(func() error {
		if c.state == StateClosed {
			return ErrClosed
		}
		c.st.GroupID = groupID
		c.st.Ledger = ledger
		c.st.LastSeen = ledger.UpdatedAt
		c.state = StateBound
		c.logger.Info("Group created", "group_id", groupID)
		c.notifyChange()
		return nil
	})
	if err != nil {
		return err
	}

	// Follow changes made by other sessions from now on. The initial
	// snapshot carries our own creation timestamp and is ignored.
	sub, err := c.store.Subscribe(ctx, groupID, c.onSnapshot)
	if err != nil {
		c.logger.Warn("Failed to subscribe to new group", "group_id", groupID, "error", err)
		c.do(func() error { c.reportError(err); return nil })
		return nil
	}
	return c.attach(sub)
}

func (c *Coordinator) load(ctx context.Context, groupID string) error {
	sub, err := c.store.Subscribe(ctx, groupID, c.onSnapshot)
	if err != nil {
		c.do(func() error {
			if c.state == StateLoading {
				c.state = StateUninitialized
			}
			return nil
		})
		return fmt.Errorf("failed to subscribe to group %s: %w", groupID, err)
	}
	if err := c.attach(sub); err != nil {
		return err
	}

	var ready chan error
	c.do(func() error { ready = c.ready; return nil })
	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// attach keeps the subscription handle, or releases it at once if the
// session ended while subscribing.
func (c *Coordinator) attach(sub storage.Subscription) error {
	err := c.do(func() error {
		if c.state == StateClosed || c.state == StateNotFound {
			return ErrClosed
		}
		c.sub = sub
		return nil
	})
	if err != nil {
		sub.Unsubscribe()
		if c.State() == StateNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (c *Coordinator) onSnapshot(ledger *models.Ledger) {
	c.post(func() { c.handleSnapshot(ledger) })
}

// handleSnapshot applies the merge rule: a snapshot replaces the local
// ledger only if its UpdatedAt is newer than everything this session has
// seen or written.
func (c *Coordinator) handleSnapshot(ledger *models.Ledger) {
	switch c.state {
	case StateLoading:
		if ledger == nil {
			c.opts.metrics.Snapshot(metrics.DecisionAbsent)
			c.logger.Warn("Group does not exist", "group_id", c.st.GroupID)
			c.state = StateNotFound
			c.release()
			err := fmt.Errorf("%w: %s", ErrGroupNotFound, c.st.GroupID)
			c.reportError(err)
			c.ready <- err
			return
		}
		c.adopt(ledger)
		c.state = StateBound
		c.logger.Info("Group loaded", "group_id", c.st.GroupID, "updated_at", ledger.UpdatedAt)
		c.ready <- nil

	case StateBound:
		if ledger == nil {
			// The document vanished or the subscription failed. The local
			// ledger stays the source of truth.
			c.opts.metrics.Snapshot(metrics.DecisionAbsent)
			c.logger.Warn("Received absent snapshot for bound group", "group_id", c.st.GroupID)
			c.reportError(fmt.Errorf("subscription lost or document removed for group %s: %w", c.st.GroupID, ErrGroupNotFound))
			return
		}
		if ledger.UpdatedAt <= c.st.LastSeen {
			decision := metrics.DecisionStale
			if c.st.Writing && ledger.UpdatedAt == c.st.LastWritten {
				decision = metrics.DecisionEcho
			}
			c.opts.metrics.Snapshot(decision)
			c.logger.Debug("Ignoring snapshot",
				"group_id", c.st.GroupID,
				"decision", decision,
				"updated_at", ledger.UpdatedAt,
				"last_seen", c.st.LastSeen,
			)
			return
		}
		if c.st.Dirty {
			c.logger.Info("Newer remote snapshot replaces unsaved local edits",
				"group_id", c.st.GroupID,
				"updated_at", ledger.UpdatedAt,
			)
		}
		c.adopt(ledger)

	default:
		// Uninitialized, not found or closed: nothing to merge into.
	}
}

func (c *Coordinator) adopt(ledger *models.Ledger) {
	c.st.Ledger = ledger.Clone()
	c.st.LastSeen = ledger.UpdatedAt
	c.st.Dirty = false
	c.stopDebounce()
	c.opts.metrics.Snapshot(metrics.DecisionAdopted)
	c.notifyChange()
}

// mutate applies fn to the session state and schedules a write.
func (c *Coordinator) mutate(op string, fn func(*SessionState) error) error {
	return c.do(func() error {
		if c.state != StateBound {
			return fmt.Errorf("%w (state %s)", ErrNotBound, c.state)
		}
		if err := fn(&c.st); err != nil {
			return err
		}
		c.st.Dirty = true
		c.st.Revision++
		c.opts.metrics.Mutation(op)
		c.scheduleWrite()
		c.notifyChange()
		return nil
	})
}

// AddPerson adds a participant and returns their generated id.
func (c *Coordinator) AddPerson(name string) (string, error) {
	id := c.opts.newID()
	err := c.mutate("add_person", func(s *SessionState) error { return addPerson(s, id, name) })
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemovePerson removes a participant and clears their references from expenses.
func (c *Coordinator) RemovePerson(id string) error {
	return c.mutate("remove_person", func(s *SessionState) error { return removePerson(s, id) })
}

// AddExpense records an expense and returns its generated id.
func (c *Coordinator) AddExpense(in ExpenseInput) (string, error) {
	id := c.opts.newID()
	err := c.mutate("add_expense", func(s *SessionState) error { return addExpense(s, id, in) })
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateExpense edits an existing expense.
func (c *Coordinator) UpdateExpense(id string, patch ExpensePatch) error {
	return c.mutate("update_expense", func(s *SessionState) error { return updateExpense(s, id, patch) })
}

// TogglePersonInExpense adds the person to the expense split, or removes them
// if they are already part of it.
func (c *Coordinator) TogglePersonInExpense(expenseID, personID string) error {
	return c.mutate("toggle_split", func(s *SessionState) error { return togglePersonInExpense(s, expenseID, personID) })
}

// RemoveExpense deletes an expense.
func (c *Coordinator) RemoveExpense(id string) error {
	return c.mutate("remove_expense", func(s *SessionState) error { return removeExpense(s, id) })
}

// RenameGroup changes the group name.
func (c *Coordinator) RenameGroup(name string) error {
	return c.mutate("rename_group", func(s *SessionState) error { return renameGroup(s, name) })
}

// scheduleWrite cancels the pending debounce task and schedules a new one.
func (c *Coordinator) scheduleWrite() {
	c.stopDebounce()
	id := c.debounceID
	c.debounce = c.opts.scheduler.AfterFunc(c.opts.debounce, func() {
		c.post(func() {
			// A fire that raced with cancellation is ignored.
			if id != c.debounceID {
				return
			}
			c.debounce = nil
			c.flush(nil)
		})
	})
}

func (c *Coordinator) stopDebounce() {
	c.debounceID++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

// Flush writes pending edits now instead of waiting for the debounce window
// and returns the result of the write.
func (c *Coordinator) Flush(ctx context.Context) error {
	res := make(chan error, 1)
	if err := c.do(func() error { c.flush(res); return nil }); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// flush issues a write of the whole ledger if it is dirty. waiter, when not
// nil, receives the outcome.
func (c *Coordinator) flush(waiter chan error) {
	if waiter != nil {
		c.queued = append(c.queued, waiter)
	}
	if c.state != StateBound {
		c.reply(fmt.Errorf("%w (state %s)", ErrNotBound, c.state))
		return
	}
	if c.inFlight {
		// The next write starts when the current one completes.
		c.owed = true
		return
	}
	if !c.st.Dirty {
		c.reply(nil)
		return
	}
	c.stopDebounce()

	updatedAt := max(c.opts.clock(), c.st.LastSeen+1)
	prevSeen := c.st.LastSeen
	revision := c.st.Revision

	c.st.Ledger.UpdatedAt = updatedAt
	c.st.LastSeen = updatedAt
	c.st.LastWritten = updatedAt
	c.st.Writing = true
	c.stopEcho()
	c.inFlight = true
	c.owed = false

	doc := c.st.Ledger.Clone()
	groupID := c.st.GroupID
	waiters := c.queued
	c.queued = nil

	c.logger.Debug("Writing ledger", "group_id", groupID, "updated_at", updatedAt, "revision", revision)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.writeTimeout)
		err := c.store.Write(ctx, groupID, doc)
		cancel()
		c.post(func() { c.writeDone(updatedAt, prevSeen, revision, err, waiters) })
	}()
}

func (c *Coordinator) writeDone(updatedAt, prevSeen int64, revision uint64, err error, waiters []chan error) {
	c.inFlight = false
	owed := c.owed
	c.owed = false
	c.opts.metrics.WriteResult(err)

	if err != nil {
		// Keep the edits dirty for the next attempt. Forget the timestamp we
		// failed to publish unless a newer snapshot has moved us past it.
		if c.st.LastSeen == updatedAt {
			c.st.LastSeen = prevSeen
		}
		c.st.Writing = false
		c.logger.Error("Failed to write ledger", "group_id", c.st.GroupID, "error", err)
		err = fmt.Errorf("failed to write group %s: %w", c.st.GroupID, err)
		c.reportError(err)
		for _, w := range waiters {
			w <- err
		}
		c.reply(err)
		// Edits made after the failed document was taken have not been
		// attempted yet; the failed content itself waits for the next edit.
		if owed && c.st.Dirty && c.st.Revision != revision {
			c.flush(nil)
		}
		return
	}

	if c.st.Revision == revision {
		c.st.Dirty = false
	}
	c.logger.Info("Ledger saved", "group_id", c.st.GroupID, "updated_at", updatedAt, "dirty", c.st.Dirty)

	id := c.echoID
	c.echo = c.opts.scheduler.AfterFunc(c.opts.echoWindow, func() {
		c.post(func() {
			if id == c.echoID {
				c.st.Writing = false
				c.echo = nil
			}
		})
	})

	for _, w := range waiters {
		w <- nil
	}
	if len(c.queued) > 0 || (owed && c.st.Dirty) {
		c.flush(nil)
	}
}

func (c *Coordinator) stopEcho() {
	c.echoID++
	if c.echo != nil {
		c.echo.Stop()
		c.echo = nil
	}
}

// reply answers every queued flush waiter.
func (c *Coordinator) reply(err error) {
	for _, w := range c.queued {
		w <- err
	}
	c.queued = nil
}

func (c *Coordinator) notifyChange() {
	if c.opts.onChange != nil && c.st.Ledger != nil {
		c.opts.onChange(c.st.Ledger.Clone())
	}
}

func (c *Coordinator) reportError(err error) {
	if c.opts.onError != nil {
		c.opts.onError(err)
	}
}

// release stops timers and drops the subscription.
func (c *Coordinator) release() {
	c.stopDebounce()
	c.stopEcho()
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

// Close cancels the pending debounce task and releases the subscription
// before returning. Unsaved edits are not written; call Flush first to keep
// them. A write already in flight completes but its result is discarded.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.do(func() error {
			c.release()
			if c.state == StateLoading {
				c.ready <- ErrClosed
			}
			c.state = StateClosed
			c.reply(ErrClosed)
			return nil
		})
		close(c.quit)
		<-c.done
	})
	return nil
}

// Snapshot returns a copy of the local ledger, or nil before the session is bound.
func (c *Coordinator) Snapshot() *models.Ledger {
	var l *models.Ledger
	c.do(func() error { l = c.st.Ledger.Clone(); return nil })
	return l
}

// Settlements computes the settlements for the local ledger.
func (c *Coordinator) Settlements() []models.Settlement {
	l := c.Snapshot()
	if l == nil {
		return nil
	}
	start := time.Now()
	defer c.opts.metrics.ObserveSettle(start)
	return calculator.Settle(l)
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	state := StateClosed
	c.do(func() error { state = c.state; return nil })
	return state
}

// GroupID returns the bound group id, empty before Start.
func (c *Coordinator) GroupID() string {
	var id string
	c.do(func() error { id = c.st.GroupID; return nil })
	return id
}

// Dirty reports whether local edits are waiting to be written.
func (c *Coordinator) Dirty() bool {
	var dirty bool
	c.do(func() error { dirty = c.st.Dirty; return nil })
	return dirty
}

// Syncing reports whether a write is in flight or just completed.
func (c *Coordinator) Syncing() bool {
	var writing bool
	c.do(func() error { writing = c.inFlight || c.st.Writing; return nil })
	return writing
}
