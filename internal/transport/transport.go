// Package transport abstracts the realtime bidirectional replication
// channel and its optional encrypting decorator.
package transport

import "context"

// Transport is one live replication session. The contract is identical with
// or without encryption layered on top.
type Transport interface {
	// Send delivers one payload, honoring ctx deadlines. Transport
	// failures surface as common.ErrNetwork.
	Send(ctx context.Context, payload []byte) error

	// OnMessage registers the inbound handler. At most one handler is
	// active; registering replaces the previous one. The handler runs on
	// the reader goroutine and must not block.
	OnMessage(fn func(payload []byte))

	// Close tears the session down. Idempotent.
	Close() error

	// Done is closed when the session dies, whether by Close or failure.
	Done() <-chan struct{}

	// Err reports why the session died. nil until Done is closed, and nil
	// after a clean Close.
	Err() error
}

// Channel dials replication sessions for an authenticated user.
type Channel interface {
	Connect(ctx context.Context, userID string) (Transport, error)
}
