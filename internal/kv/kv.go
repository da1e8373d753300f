// Package kv defines the namespaced persistent key-value store the engine
// depends on, plus a bbolt-backed implementation and an in-memory one for
// tests and ephemeral use.
package kv

import "context"

// Store is a minimal durable key-value namespace.
//
// Get returns common.ErrNotFound for missing keys. Clear wipes the whole
// namespace, not the backing database.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
