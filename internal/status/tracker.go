// Package status tracks local sync health as a small state machine with a
// persisted snapshot and best-effort change notifications.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/kv"
	"github.com/dpavlenko/marksync/internal/logging"
)

// State is the sync health reported to the user.
type State string

const (
	StateIdle        State = "Idle"
	StateSyncing     State = "Syncing"
	StateError       State = "Error"
	StateOffline     State = "Offline"
	StateRateLimited State = "RateLimited"
)

// snapshotKey is the kv key the current snapshot is persisted under.
const snapshotKey = "sync_status"

// Snapshot is the persisted, externally visible sync status.
type Snapshot struct {
	State        State      `json:"state"`
	LastSyncTime *time.Time `json:"lastSyncTime"`
	SyncProgress int        `json:"syncProgress"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// Tracker records whatever state its callers assert; deciding when a
// transition is correct belongs to the connection manager and the engine.
// Notifications are at-most-once and best-effort: subscribers must tolerate
// missed intermediate updates and treat the persisted snapshot as ground
// truth.
type Tracker struct {
	mu           sync.Mutex
	store        kv.Store
	log          logging.Logger
	now          func() time.Time
	snap         Snapshot
	nextSub      int
	statusSubs   map[int]func(Snapshot)
	progressSubs map[int]func(int)
}

// NewTracker restores the last persisted snapshot from store, defaulting to
// Idle when none exists.
func NewTracker(ctx context.Context, store kv.Store, log logging.Logger) *Tracker {
	t := &Tracker{
		store:        store,
		log:          log.With("component", "status"),
		now:          time.Now,
		snap:         Snapshot{State: StateIdle},
		statusSubs:   make(map[int]func(Snapshot)),
		progressSubs: make(map[int]func(int)),
	}

	raw, err := store.Get(ctx, snapshotKey)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &t.snap); err != nil {
			t.log.Warn(ctx, "discarding corrupt status snapshot", "error", err)
			t.snap = Snapshot{State: StateIdle}
		}
	case errors.Is(err, common.ErrNotFound):
	default:
		t.log.Warn(ctx, "loading status snapshot", "error", err)
	}
	return t
}

// SetState transitions to next. Entering Idle stamps lastSyncTime and sets
// progress to 100; entering Syncing resets progress to 0. The snapshot is
// persisted and a status notification emitted on every call.
func (t *Tracker) SetState(ctx context.Context, next State, errorMessage ...string) {
	t.mu.Lock()
	t.snap.State = next
	t.snap.ErrorMessage = ""
	if len(errorMessage) > 0 {
		t.snap.ErrorMessage = errorMessage[0]
	}
	switch next {
	case StateIdle:
		now := t.now().UTC()
		t.snap.LastSyncTime = &now
		t.snap.SyncProgress = 100
	case StateSyncing:
		t.snap.SyncProgress = 0
	}
	snap := t.snap
	subs := t.statusSubscribers()
	// Persisting inside the critical section keeps the durable snapshot in
	// step with the in-memory one under concurrent transitions.
	t.persist(ctx, snap)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// SetProgress clamps p to [0,100], persists, and emits a progress
// notification on its own stream, independent of state changes.
func (t *Tracker) SetProgress(ctx context.Context, p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	t.mu.Lock()
	t.snap.SyncProgress = p
	snap := t.snap
	subs := make([]func(int), 0, len(t.progressSubs))
	for _, fn := range t.progressSubs {
		subs = append(subs, fn)
	}
	t.persist(ctx, snap)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Subscribe registers a status-changed callback and returns its unsubscribe
// handle. Callbacks run synchronously and must not block.
func (t *Tracker) Subscribe(fn func(Snapshot)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.statusSubs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.statusSubs, id)
	}
}

// SubscribeProgress registers a progress callback on the separate progress
// stream and returns its unsubscribe handle.
func (t *Tracker) SubscribeProgress(fn func(int)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.progressSubs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.progressSubs, id)
	}
}

func (t *Tracker) statusSubscribers() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(t.statusSubs))
	for _, fn := range t.statusSubs {
		subs = append(subs, fn)
	}
	return subs
}

func (t *Tracker) persist(ctx context.Context, snap Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		t.log.Error(ctx, "encoding status snapshot", "error", err)
		return
	}
	if err := t.store.Set(ctx, snapshotKey, raw); err != nil {
		t.log.Warn(ctx, "persisting status snapshot", "error", err)
	}
}
