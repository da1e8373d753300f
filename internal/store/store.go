// Package store persists the append-only highlight event log.
package store

import (
	"context"

	"github.com/dpavlenko/marksync/internal/events"
)

// Store is the durable, ordered event log.
//
// Append is idempotent on eventId, so replaying the same event (a reconnect
// re-delivering inbound traffic, a retried local write) is harmless. An
// event that fails to append is not persisted at all.
type Store interface {
	// Append durably writes a locally captured event and flags it as
	// pending replication.
	Append(ctx context.Context, e events.Event) error

	// AppendRemote durably writes an event received from the channel.
	// Remote events are never re-replicated.
	AppendRemote(ctx context.Context, e events.Event) error

	// LoadAll returns every event in replay order: ascending timestamp,
	// ties broken by lexical eventId, independent of physical write order.
	LoadAll(ctx context.Context) ([]events.Event, error)

	// LoadPending returns events awaiting replication, in replay order.
	LoadPending(ctx context.Context) ([]events.Event, error)

	// MarkReplicated records that an event reached the server.
	MarkReplicated(ctx context.Context, eventID string) error

	// Clear irreversibly wipes the log. Logout/reset only.
	Clear(ctx context.Context) error
}
