// Package agent wires the engine together: storage, encryption, transport,
// connection lifecycle and authentication binding. All collaborators are
// assembled here once and passed down; nothing is reached through globals.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dpavlenko/marksync/internal/auth"
	"github.com/dpavlenko/marksync/internal/config"
	"github.com/dpavlenko/marksync/internal/connection"
	"github.com/dpavlenko/marksync/internal/engine"
	"github.com/dpavlenko/marksync/internal/kv"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/dpavlenko/marksync/internal/status"
	"github.com/dpavlenko/marksync/internal/store"
	"github.com/dpavlenko/marksync/internal/transport"
	"github.com/dpavlenko/marksync/internal/vault"
	bolt "go.etcd.io/bbolt"

	_ "modernc.org/sqlite"
)

// App owns the wired component graph and its shutdown order.
type App struct {
	cfg     *config.Config
	log     logging.Logger
	closers []func() error

	Engine  *engine.Engine
	Manager *connection.Manager
	Tracker *status.Tracker
	Auth    *auth.TokenProvider
}

// NewApp assembles the agent from configuration.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("no origin configured, pass -o or set origin in the config file")
	}

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	a := &App{cfg: cfg, log: log}

	db, err := store.Open(ctx, cfg.EventDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	eventStore := store.NewSQLiteStore(db)

	bdb, err := bolt.Open(cfg.KVPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening key-value store: %w", err)
	}
	a.closers = append(a.closers, bdb.Close)

	var vaultSvc *vault.Service
	if cfg.VaultEnabled {
		vaultSvc = vault.NewService()
	}

	// Namespaces are obfuscated in vault mode so the persisted store does
	// not reveal visited origins.
	statusNS, sessionNS := "status", "session"
	if vaultSvc != nil {
		statusNS = "status_" + vaultSvc.HashDomain(cfg.Origin)
		sessionNS = "session_" + vaultSvc.HashDomain(cfg.Origin)
	}
	statusKV, err := kv.NewBoltStore(bdb, statusNS)
	if err != nil {
		return nil, err
	}
	sessionKV, err := kv.NewBoltStore(bdb, sessionNS)
	if err != nil {
		return nil, err
	}

	a.Tracker = status.NewTracker(ctx, statusKV, log)
	a.Auth = auth.NewTokenProvider(ctx, sessionKV, log)

	channel := transport.NewWebsocketChannel(cfg.ChannelURL, log)
	a.Manager = connection.NewManager(channel, a.Tracker, log, connection.Config{
		InitialInterval: cfg.ReconnectInitial,
		MaxInterval:     cfg.ReconnectMax,
		Multiplier:      cfg.ReconnectMultiplier,
		MaxAttempts:     cfg.ReconnectMaxAttempts,
		DialTimeout:     cfg.DialTimeout,
	})

	a.Engine = engine.New(eventStore, a.Tracker, vaultSvc, cfg.Origin, log,
		engine.WithSendTimeout(cfg.SendTimeout))
	a.Engine.Bind(a.Manager)

	return a, nil
}

// Run binds authentication and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	unbind := a.Manager.BindAuth(a.Auth)
	defer unbind()

	a.log.Info(ctx, "agent started",
		"channel", a.cfg.ChannelURL,
		"vault", a.cfg.VaultEnabled)

	<-ctx.Done()

	a.log.Info(context.Background(), "agent stopping")
	a.Manager.Disconnect()
	return a.Close()
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
