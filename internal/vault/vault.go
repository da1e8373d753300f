// Package vault implements the optional domain-scoped encryption layer
// ("vault mode"). Keys are derived per origin; synced payloads for a vaulted
// origin are sealed with AES-256-GCM before leaving the device.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dpavlenko/marksync/internal/common"
	"golang.org/x/crypto/argon2"
)

// saltV2 is the fixed, versioned public salt mixed into key derivation and
// domain hashing. Because derivation takes no user secret, the scheme
// obfuscates stored keys and payloads but is not confidential against an
// attacker who knows it. Bump the version suffix when rotating.
const saltV2 = "marksync-vault-salt-v2"

// NonceSize is the AES-GCM nonce length prepended to every ciphertext.
const NonceSize = 12

const keyLen = 32

// Service derives per-domain keys and seals/opens replication payloads.
// A nil *Service is valid everywhere one is optional and means plaintext
// replication.
type Service struct {
	mu   sync.Mutex
	keys map[string][]byte // derivation cache, a pure optimization
}

func NewService() *Service {
	return &Service{keys: make(map[string][]byte)}
}

// DeriveKey derives the 32-byte symmetric key for a domain with Argon2id
// over the domain string and the versioned public salt. Deterministic:
// every device derives the same key for the same domain.
func (s *Service) DeriveKey(domain string) ([]byte, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", common.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[domain]; ok {
		return k, nil
	}

	k := argon2.IDKey([]byte(domain), []byte(saltV2), 1, 64*1024, 4, keyLen)
	s.keys[domain] = k
	return k, nil
}

// Encrypt seals plaintext for the given domain and returns
// base64(nonce ‖ ciphertext). A fresh random nonce is generated per call.
func (s *Service) Encrypt(plaintext []byte, domain string) (string, error) {
	key, err := s.DeriveKey(domain)
	if err != nil {
		return "", err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce generation: %v", common.ErrCrypto, err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt for the same domain. Any
// authentication failure (wrong domain, tampered blob) yields ErrCrypto and
// no plaintext.
func (s *Service) Decrypt(blob string, domain string) ([]byte, error) {
	key, err := s.DeriveKey(domain)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64 blob", common.ErrCrypto)
	}
	if len(raw) < NonceSize {
		return nil, fmt.Errorf("%w: blob shorter than nonce", common.ErrCrypto)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := raw[:NonceSize], raw[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrCrypto)
	}
	return plaintext, nil
}

// HashDomain returns a one-way hex digest of domain+salt, used to obfuscate
// storage keys so persisted keys do not reveal visited origins. Independent
// of DeriveKey.
func (s *Service) HashDomain(domain string) string {
	sum := sha256.Sum256([]byte(domain + saltV2))
	return hex.EncodeToString(sum[:])
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return aead, nil
}
