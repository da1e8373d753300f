package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/kv"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, userID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
		Email:  email,
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newProvider(t *testing.T) (*TokenProvider, kv.Store) {
	t.Helper()
	store := kv.NewMemStore()
	return NewTokenProvider(context.Background(), store, logging.Discard()), store
}

func TestTokenProvider_LoginLogout(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	assert.Nil(t, p.CurrentUser(ctx))

	require.NoError(t, p.SetToken(ctx, signedToken(t, "user-1", "u@example.com")))

	u := p.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "user-1", u.ID)
	assert.Equal(t, "u@example.com", u.Email)

	require.NoError(t, p.ClearToken(ctx))
	assert.Nil(t, p.CurrentUser(ctx))
}

func TestTokenProvider_Observers(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	var seen []*User
	unsub := p.OnAuthStateChanged(func(u *User) { seen = append(seen, u) })

	require.NoError(t, p.SetToken(ctx, signedToken(t, "user-1", "")))
	require.NoError(t, p.ClearToken(ctx))

	require.Len(t, seen, 2)
	assert.Equal(t, "user-1", seen[0].ID)
	assert.Nil(t, seen[1])

	unsub()
	require.NoError(t, p.SetToken(ctx, signedToken(t, "user-2", "")))
	assert.Len(t, seen, 2)
}

func TestTokenProvider_RejectsMalformedToken(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	err := p.SetToken(ctx, "not.a.jwt")
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Nil(t, p.CurrentUser(ctx))
}

func TestTokenProvider_RejectsTokenWithoutUserID(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	err = p.SetToken(ctx, s)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestTokenProvider_RestoresPersistedSession(t *testing.T) {
	store := kv.NewMemStore()
	ctx := context.Background()

	p := NewTokenProvider(ctx, store, logging.Discard())
	require.NoError(t, p.SetToken(ctx, signedToken(t, "user-1", "")))

	restored := NewTokenProvider(ctx, store, logging.Discard())
	u := restored.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "user-1", u.ID)
}

func TestTokenProvider_SubjectFallback(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "subject-user"})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	require.NoError(t, p.SetToken(ctx, s))
	u := p.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "subject-user", u.ID)
}
