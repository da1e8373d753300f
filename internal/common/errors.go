// Package common defines shared constants and sentinel errors used across
// the marksync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Input validation errors: rejected synchronously, nothing is persisted.
	ErrValidation = errors.New("validation error")

	// Crypto errors: key derivation or authenticated decryption failed.
	// Unauthenticated plaintext is never returned alongside this error.
	ErrCrypto = errors.New("crypto error")

	// Storage errors: the durable store is unavailable or a write failed.
	// An event that fails to append is not considered persisted.
	ErrStorage = errors.New("storage error")

	// Network errors: the replication channel is unreachable or broke mid-flight.
	ErrNetwork = errors.New("network error")

	// ErrRateLimited is a server-signaled throttle, distinct from ErrNetwork
	// so the status tracker can surface RateLimited instead of Offline.
	ErrRateLimited = errors.New("rate limited")

	// State errors: an operation was issued against a session in the wrong
	// state, e.g. sending on a channel that never connected.
	ErrState = errors.New("illegal state")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
)
