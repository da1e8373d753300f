package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/kv"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// tokenKey is the kv key the session token is persisted under.
const tokenKey = "session_token"

// Claims carried by the session token. The backend sets UserID; email is
// optional.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// TokenProvider implements Provider on top of a JWT session token persisted
// in the kv store. Tokens are parsed without signature verification: the
// server verifies them on connect, the client only needs the identity
// embedded in the claims.
type TokenProvider struct {
	mu      sync.Mutex
	store   kv.Store
	log     logging.Logger
	user    *User
	nextSub int
	subs    map[int]func(*User)
}

// NewTokenProvider restores any persisted session from store.
func NewTokenProvider(ctx context.Context, store kv.Store, log logging.Logger) *TokenProvider {
	p := &TokenProvider{
		store: store,
		log:   log.With("component", "auth"),
		subs:  make(map[int]func(*User)),
	}

	raw, err := store.Get(ctx, tokenKey)
	switch {
	case err == nil:
		user, err := userFromToken(string(raw))
		if err != nil {
			p.log.Warn(ctx, "discarding unparsable session token", "error", err)
			_ = store.Delete(ctx, tokenKey)
			return p
		}
		p.user = user
	case errors.Is(err, common.ErrNotFound):
	default:
		p.log.Warn(ctx, "loading session token", "error", err)
	}
	return p
}

func (p *TokenProvider) CurrentUser(ctx context.Context) *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user
}

func (p *TokenProvider) OnAuthStateChanged(fn func(*User)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// SetToken stores the session token and notifies observers of the login.
func (p *TokenProvider) SetToken(ctx context.Context, token string) error {
	user, err := userFromToken(token)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, tokenKey, []byte(token)); err != nil {
		return err
	}

	p.mu.Lock()
	p.user = user
	subs := p.subscribers()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
	return nil
}

// ClearToken drops the session and notifies observers of the logout.
func (p *TokenProvider) ClearToken(ctx context.Context) error {
	if err := p.store.Delete(ctx, tokenKey); err != nil {
		return err
	}

	p.mu.Lock()
	p.user = nil
	subs := p.subscribers()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(nil)
	}
	return nil
}

func (p *TokenProvider) subscribers() []func(*User) {
	subs := make([]func(*User), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	return subs
}

func userFromToken(token string) (*User, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: parsing session token: %v", common.ErrValidation, err)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, fmt.Errorf("%w: session token carries no user id", common.ErrValidation)
	}
	return &User{ID: id, Email: claims.Email}, nil
}
