package vault

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	s1 := NewService()
	s2 := NewService()

	k1, err := s1.DeriveKey("example.com")
	require.NoError(t, err)
	k2, err := s2.DeriveKey("example.com")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestDeriveKey_DomainScoped(t *testing.T) {
	s := NewService()

	k1, err := s.DeriveKey("example.com")
	require.NoError(t, err)
	k2, err := s.DeriveKey("other.com")
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestDeriveKey_EmptyDomain(t *testing.T) {
	s := NewService()
	_, err := s.DeriveKey("")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	s := NewService()

	blob, err := s.Encrypt([]byte("secret"), "example.com")
	require.NoError(t, err)

	plaintext, err := s.Decrypt(blob, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plaintext)
}

func TestDecrypt_WrongDomain(t *testing.T) {
	s := NewService()

	blob, err := s.Encrypt([]byte("secret"), "example.com")
	require.NoError(t, err)

	_, err = s.Decrypt(blob, "other.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCrypto))
}

func TestDecrypt_TamperedBlob(t *testing.T) {
	s := NewService()

	blob, err := s.Encrypt([]byte("secret"), "example.com")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = s.Decrypt(tampered, "example.com")
	assert.True(t, errors.Is(err, common.ErrCrypto))
}

func TestDecrypt_MalformedBlob(t *testing.T) {
	s := NewService()

	_, err := s.Decrypt("%%%not-base64%%%", "example.com")
	assert.True(t, errors.Is(err, common.ErrCrypto))

	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	_, err = s.Decrypt(short, "example.com")
	assert.True(t, errors.Is(err, common.ErrCrypto))
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	s := NewService()

	b1, err := s.Encrypt([]byte("same plaintext"), "example.com")
	require.NoError(t, err)
	b2, err := s.Encrypt([]byte("same plaintext"), "example.com")
	require.NoError(t, err)

	assert.NotEqual(t, b1, b2)
}

func TestHashDomain(t *testing.T) {
	s := NewService()

	h1 := s.HashDomain("example.com")
	h2 := s.HashDomain("example.com")
	h3 := s.HashDomain("other.com")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "example")
}
