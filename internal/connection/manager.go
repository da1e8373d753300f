// Package connection manages the lifecycle of the replication session:
// connect/disconnect, binding to authentication state, and bounded
// reconnection with backoff.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/dpavlenko/marksync/internal/auth"
	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/dpavlenko/marksync/internal/status"
	"github.com/dpavlenko/marksync/internal/transport"
)

// State of the connection lifecycle.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateReconnecting State = "Reconnecting"
	StateFailed       State = "Failed"
)

// Config tunes the reconnect policy. The exact parameters are deliberately
// configuration, not constants.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     uint64
	DialTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialInterval: 5 * time.Second,
		MaxInterval:     5 * time.Minute,
		Multiplier:      2.0,
		MaxAttempts:     10,
		DialTimeout:     15 * time.Second,
	}
}

// Manager holds at most one replication session, bound to a user. Connect
// and Disconnect are single-flight: overlapping calls are coalesced, the
// latest caller's intent wins, and a superseded session is torn down before
// the next one dials.
type Manager struct {
	ch      transport.Channel
	tracker *status.Tracker
	log     logging.Logger
	cfg     Config

	mu        sync.Mutex
	state     State
	userID    string
	tr        transport.Transport
	cancel    context.CancelFunc
	gen       uint64
	onSession func(tr transport.Transport, userID string)
}

func NewManager(ch transport.Channel, tracker *status.Tracker, log logging.Logger, cfg Config) *Manager {
	return &Manager{
		ch:      ch,
		tracker: tracker,
		log:     log.With("component", "connection"),
		cfg:     cfg,
		state:   StateDisconnected,
	}
}

// OnSession registers the hook invoked on every successfully established
// session. The sync engine uses it to attach its inbound handler and flush
// pending events.
func (m *Manager) OnSession(fn func(tr transport.Transport, userID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSession = fn
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the user the active session is bound to, or "".
func (m *Manager) CurrentUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Connect opens a session for userID. Idempotent while a session for the
// same user is live or being established; a session for a different user is
// torn down first. The dial itself runs in the background so callers are
// never blocked on the network.
func (m *Manager) Connect(userID string) {
	if userID == "" {
		m.log.Warn(context.Background(), "ignoring connect with empty user id")
		return
	}

	m.mu.Lock()
	if m.userID == userID {
		switch m.state {
		case StateConnecting, StateConnected, StateReconnecting:
			m.mu.Unlock()
			return
		}
	}
	m.teardownLocked()
	m.userID = userID
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.log.Info(ctx, "opening session", "userId", userID)
	go m.run(ctx, gen, userID)
}

// Disconnect tears down any active session, canceling an in-flight
// reconnect first. Idempotent, including on a manager that never connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.userID = ""
	m.state = StateDisconnected
	m.mu.Unlock()
	m.log.Info(context.Background(), "session closed")
}

// BindAuth wires the manager to authentication state: login connects,
// logout disconnects. An already signed-in user connects immediately.
// Returns the unsubscribe handle.
func (m *Manager) BindAuth(p auth.Provider) func() {
	if u := p.CurrentUser(context.Background()); u != nil {
		m.Connect(u.ID)
	}
	return p.OnAuthStateChanged(func(u *auth.User) {
		if u != nil {
			m.Connect(u.ID)
		} else {
			m.Disconnect()
		}
	})
}

// teardownLocked cancels retries and closes the live transport. Callers
// hold m.mu.
func (m *Manager) teardownLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.tr != nil {
		_ = m.tr.Close()
		m.tr = nil
	}
}

// run owns one session generation: dial with backoff, hand the transport to
// the session hook, wait for it to die, repeat. It exits when superseded or
// canceled, or when retries are exhausted.
func (m *Manager) run(ctx context.Context, gen uint64, userID string) {
	for {
		tr, err := m.dial(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.fail(gen, err)
			return
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			_ = tr.Close()
			return
		}
		m.tr = tr
		m.state = StateConnected
		onSession := m.onSession
		m.mu.Unlock()

		m.log.Info(ctx, "session established", "userId", userID)
		if onSession != nil {
			onSession(tr, userID)
		}

		select {
		case <-ctx.Done():
			_ = tr.Close()
			return
		case <-tr.Done():
		}

		trErr := tr.Err()
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.tr = nil
		if errors.Is(trErr, common.ErrRateLimited) {
			m.state = StateFailed
			m.mu.Unlock()
			m.tracker.SetState(context.Background(), status.StateRateLimited)
			return
		}
		m.state = StateReconnecting
		m.mu.Unlock()

		m.log.Warn(ctx, "session lost, reconnecting", "userId", userID, "error", trErr)
		m.tracker.SetState(context.Background(), status.StateOffline)
	}
}

// dial attempts the channel with exponential backoff and jitter, bounded by
// cfg.MaxAttempts. Rate limiting aborts the retry loop immediately.
func (m *Manager) dial(ctx context.Context, userID string) (transport.Transport, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.InitialInterval
	bo.MaxInterval = m.cfg.MaxInterval
	bo.Multiplier = m.cfg.Multiplier
	bo.MaxElapsedTime = 0

	var tr transport.Transport
	op := func() error {
		dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()

		t, err := m.ch.Connect(dctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrRateLimited) {
				return backoff.Permanent(err)
			}
			m.tracker.SetState(context.Background(), status.StateOffline)
			m.log.Warn(ctx, "dial failed", "userId", userID, "error", err)
			return err
		}
		tr = t
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, m.cfg.MaxAttempts), ctx))
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// fail marks the session generation as dead and surfaces the reason through
// the status tracker.
func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateFailed
	m.mu.Unlock()

	if errors.Is(err, common.ErrRateLimited) {
		m.tracker.SetState(context.Background(), status.StateRateLimited)
		return
	}
	m.tracker.SetState(context.Background(), status.StateError,
		fmt.Sprintf("reconnect attempts exhausted: %v", err))
}
