package status

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dpavlenko/marksync/internal/kv"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) (*Tracker, kv.Store) {
	t.Helper()
	store := kv.NewMemStore()
	return NewTracker(context.Background(), store, logging.Discard()), store
}

func TestSetState_IdleStampsSyncTimeAndProgress(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	tr.SetState(ctx, StateSyncing)
	assert.Equal(t, 0, tr.Snapshot().SyncProgress)

	tr.SetState(ctx, StateIdle)

	snap := tr.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 100, snap.SyncProgress)
	require.NotNil(t, snap.LastSyncTime)
	assert.Equal(t, fixed, *snap.LastSyncTime)
}

func TestSetState_SyncingResetsProgress(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	tr.SetProgress(ctx, 60)
	tr.SetState(ctx, StateSyncing)

	assert.Equal(t, 0, tr.Snapshot().SyncProgress)
}

func TestSetState_ErrorCarriesMessage(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	tr.SetState(ctx, StateError, "reconnect attempts exhausted")

	snap := tr.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "reconnect attempts exhausted", snap.ErrorMessage)

	// The message does not leak into the next transition.
	tr.SetState(ctx, StateOffline)
	assert.Empty(t, tr.Snapshot().ErrorMessage)
}

func TestSetProgress_Clamps(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	tr.SetProgress(ctx, -5)
	assert.Equal(t, 0, tr.Snapshot().SyncProgress)

	tr.SetProgress(ctx, 250)
	assert.Equal(t, 100, tr.Snapshot().SyncProgress)
}

func TestNotifications(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	var states []State
	unsubStatus := tr.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	var progress []int
	unsubProgress := tr.SubscribeProgress(func(p int) { progress = append(progress, p) })

	tr.SetState(ctx, StateSyncing)
	tr.SetProgress(ctx, 40)
	tr.SetState(ctx, StateIdle)

	assert.Equal(t, []State{StateSyncing, StateIdle}, states)
	// Progress moves on its own stream; state changes do not replay there.
	assert.Equal(t, []int{40}, progress)

	unsubStatus()
	unsubProgress()
	tr.SetState(ctx, StateOffline)
	tr.SetProgress(ctx, 90)
	assert.Len(t, states, 2)
	assert.Len(t, progress, 1)
}

func TestSnapshot_PersistedAndRestored(t *testing.T) {
	store := kv.NewMemStore()
	ctx := context.Background()

	tr := NewTracker(ctx, store, logging.Discard())
	tr.SetState(ctx, StateOffline)
	tr.SetProgress(ctx, 30)

	restored := NewTracker(ctx, store, logging.Discard())
	snap := restored.Snapshot()
	assert.Equal(t, StateOffline, snap.State)
	assert.Equal(t, 30, snap.SyncProgress)
}

// stallingStore blocks the first Set until released, exposing write ordering
// under concurrent transitions.
type stallingStore struct {
	kv.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingStore) Set(ctx context.Context, key string, value []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Store.Set(ctx, key, value)
}

func TestSetState_ConcurrentTransitionsPersistInOrder(t *testing.T) {
	mem := kv.NewMemStore()
	store := &stallingStore{
		Store:   mem,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ctx := context.Background()
	tr := NewTracker(ctx, mem, logging.Discard())
	tr.store = store

	first := make(chan struct{})
	go func() {
		defer close(first)
		tr.SetState(ctx, StateSyncing)
	}()
	<-store.entered

	// A later transition must not overtake the stalled persist.
	second := make(chan struct{})
	go func() {
		defer close(second)
		tr.SetState(ctx, StateIdle)
	}()

	close(store.release)
	<-first
	<-second

	raw, err := mem.Get(ctx, snapshotKey)
	require.NoError(t, err)
	var persisted Snapshot
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, tr.Snapshot().State, persisted.State)
	assert.Equal(t, StateIdle, persisted.State)
}

func TestTracker_FreshStoreStartsIdle(t *testing.T) {
	tr, _ := newTracker(t)
	snap := tr.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.LastSyncTime)
}
