// Package engine ties the event log, the replication transport and the
// status tracker into the offline-first sync loop: local captures append
// then replicate, inbound events append back, pending events flush on every
// (re)connect.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dpavlenko/marksync/internal/anchor"
	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/connection"
	"github.com/dpavlenko/marksync/internal/events"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/dpavlenko/marksync/internal/status"
	"github.com/dpavlenko/marksync/internal/store"
	"github.com/dpavlenko/marksync/internal/transport"
	"github.com/dpavlenko/marksync/internal/vault"
)

const defaultSendTimeout = 10 * time.Second

// Engine replicates one origin's highlight log. The vault service is
// optional: nil means plaintext replication for this origin.
type Engine struct {
	store       store.Store
	tracker     *status.Tracker
	vault       *vault.Service
	domain      string
	log         logging.Logger
	anchorCfg   anchor.Config
	sendTimeout time.Duration

	mu sync.Mutex
	tr transport.Transport
}

// Option tunes the engine.
type Option func(*Engine)

// WithAnchorConfig overrides selector construction limits.
func WithAnchorConfig(cfg anchor.Config) Option {
	return func(e *Engine) { e.anchorCfg = cfg }
}

// WithSendTimeout bounds each outbound send.
func WithSendTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sendTimeout = d }
}

func New(s store.Store, tracker *status.Tracker, v *vault.Service, domain string, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		tracker:     tracker,
		vault:       v,
		domain:      domain,
		log:         log.With("component", "engine"),
		anchorCfg:   anchor.DefaultConfig(),
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind attaches the engine to the connection manager's session lifecycle.
func (e *Engine) Bind(m *connection.Manager) {
	m.OnSession(e.handleSession)
}

// CreateHighlight captures a selection: builds the selector, derives the
// content digest, appends a created-event and replicates it. Validation
// failures reach the caller directly and persist nothing; replication
// failures are reflected in the status tracker, not returned.
func (e *Engine) CreateHighlight(ctx context.Context, sel anchor.Selection, colorRole, color string) (events.Event, error) {
	selector, err := anchor.Build(sel, e.anchorCfg)
	if err != nil {
		return events.Event{}, err
	}

	record, err := events.NewRecord(selector.Exact, colorRole, color, []anchor.Selector{selector})
	if err != nil {
		return events.Event{}, err
	}

	evt := events.NewEvent(events.TypeCreated, record)
	if err := e.store.Append(ctx, evt); err != nil {
		e.tracker.SetState(ctx, status.StateError, "local event log unavailable")
		return events.Event{}, err
	}

	e.log.Debug(ctx, "highlight captured", "eventId", evt.EventID, "contentHash", record.ContentHash)
	e.replicate(ctx, evt)
	return evt, nil
}

// RemoveHighlight appends a removed-event tombstoning the given record and
// replicates it.
func (e *Engine) RemoveHighlight(ctx context.Context, record events.Record) (events.Event, error) {
	evt := events.NewEvent(events.TypeRemoved, record)
	if err := e.store.Append(ctx, evt); err != nil {
		e.tracker.SetState(ctx, status.StateError, "local event log unavailable")
		return events.Event{}, err
	}

	e.replicate(ctx, evt)
	return evt, nil
}

// Snapshot replays the log into the currently active highlights.
func (e *Engine) Snapshot(ctx context.Context) ([]events.Record, error) {
	all, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return events.Replay(all), nil
}

// Reset irreversibly wipes the local log. Logout only.
func (e *Engine) Reset(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// handleSession runs on every established session: wrap the transport in
// vault mode when configured, attach the inbound handler and flush whatever
// replication backlog accumulated offline. Append is idempotent on eventId,
// so a reconnect replaying traffic both ways is harmless.
func (e *Engine) handleSession(tr transport.Transport, userID string) {
	wrapped := transport.WithVault(tr, e.vault, e.domain, e.log)
	wrapped.OnMessage(e.handleInbound)

	e.mu.Lock()
	e.tr = wrapped
	e.mu.Unlock()

	go e.flush(context.Background())
}

// current returns the live session transport, nil while offline.
func (e *Engine) current() transport.Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tr == nil {
		return nil
	}
	select {
	case <-e.tr.Done():
		return nil
	default:
		return e.tr
	}
}

// replicate pushes one freshly appended event. Without a session it stays
// pending for the next flush.
func (e *Engine) replicate(ctx context.Context, evt events.Event) {
	tr := e.current()
	if tr == nil {
		return
	}

	e.tracker.SetState(ctx, status.StateSyncing)
	if !e.send(ctx, tr, evt) {
		return
	}
	e.tracker.SetState(ctx, status.StateIdle)
}

// flush replicates the pending backlog in replay order, driving progress as
// it goes.
func (e *Engine) flush(ctx context.Context) {
	pending, err := e.store.LoadPending(ctx)
	if err != nil {
		e.log.Error(ctx, "loading pending events", "error", err)
		e.tracker.SetState(ctx, status.StateError, "local event log unavailable")
		return
	}

	if len(pending) == 0 {
		return
	}

	tr := e.current()
	if tr == nil {
		return
	}

	e.tracker.SetState(ctx, status.StateSyncing)
	for i, evt := range pending {
		if !e.send(ctx, tr, evt) {
			return
		}
		e.tracker.SetProgress(ctx, (i+1)*100/len(pending))
	}
	e.tracker.SetState(ctx, status.StateIdle)
}

// send delivers one event and marks it replicated. Network failure surfaces
// as Offline and leaves the event pending; the reconnect flush retries it.
func (e *Engine) send(ctx context.Context, tr transport.Transport, evt events.Event) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		e.log.Error(ctx, "encoding event", "eventId", evt.EventID, "error", err)
		return false
	}

	sctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	if err := tr.Send(sctx, payload); err != nil {
		e.log.Warn(ctx, "replication send failed", "eventId", evt.EventID, "error", err)
		e.tracker.SetState(ctx, status.StateOffline)
		return false
	}

	if err := e.store.MarkReplicated(ctx, evt.EventID); err != nil {
		e.log.Error(ctx, "marking event replicated", "eventId", evt.EventID, "error", err)
		e.tracker.SetState(ctx, status.StateError, "local event log unavailable")
		return false
	}
	return true
}

// handleInbound appends one remote event, closing the replication loop.
func (e *Engine) handleInbound(payload []byte) {
	ctx := context.Background()

	var evt events.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		e.log.Warn(ctx, "dropping malformed inbound payload", "error", err)
		return
	}

	if err := e.store.AppendRemote(ctx, evt); err != nil {
		if errors.Is(err, common.ErrValidation) {
			e.log.Warn(ctx, "dropping invalid inbound event", "eventId", evt.EventID, "error", err)
			return
		}
		e.log.Error(ctx, "appending inbound event", "eventId", evt.EventID, "error", err)
		e.tracker.SetState(ctx, status.StateError, "local event log unavailable")
		return
	}

	e.log.Debug(ctx, "inbound event appended", "eventId", evt.EventID, "type", evt.Type)
}
