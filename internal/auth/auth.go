// Package auth exposes the authentication state the engine binds to. The
// engine never authenticates anyone itself; it only reacts to login and
// logout signals from the host application.
package auth

import "context"

// User is the authenticated identity a replication session is bound to.
type User struct {
	ID    string
	Email string
}

// Provider is the authentication collaborator. CurrentUser returns nil when
// nobody is signed in. OnAuthStateChanged registers an observer called with
// the new user on login and nil on logout, and returns its unsubscribe
// handle.
type Provider interface {
	CurrentUser(ctx context.Context) *User
	OnAuthStateChanged(fn func(*User)) func()
}
