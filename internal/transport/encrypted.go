package transport

import (
	"context"

	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/dpavlenko/marksync/internal/vault"
)

// EncryptedTransport decorates any Transport with vault-mode encryption for
// one domain. Outbound payloads are sealed before they leave; inbound blobs
// that fail authentication are dropped, never delivered.
type EncryptedTransport struct {
	inner  Transport
	vault  *vault.Service
	domain string
	log    logging.Logger
}

// WithVault wraps t for the given domain. A nil vault service means vault
// mode is off and t is returned unchanged: every caller works identically
// either way.
func WithVault(t Transport, v *vault.Service, domain string, log logging.Logger) Transport {
	if v == nil {
		return t
	}
	return &EncryptedTransport{
		inner:  t,
		vault:  v,
		domain: domain,
		log:    log.With("component", "transport", "domain", v.HashDomain(domain)),
	}
}

func (t *EncryptedTransport) Send(ctx context.Context, payload []byte) error {
	blob, err := t.vault.Encrypt(payload, t.domain)
	if err != nil {
		return err
	}
	return t.inner.Send(ctx, []byte(blob))
}

func (t *EncryptedTransport) OnMessage(fn func([]byte)) {
	t.inner.OnMessage(func(blob []byte) {
		plaintext, err := t.vault.Decrypt(string(blob), t.domain)
		if err != nil {
			t.log.Warn(context.Background(), "dropping unauthenticated inbound payload", "error", err)
			return
		}
		fn(plaintext)
	})
}

func (t *EncryptedTransport) Close() error { return t.inner.Close() }

func (t *EncryptedTransport) Done() <-chan struct{} { return t.inner.Done() }

func (t *EncryptedTransport) Err() error { return t.inner.Err() }
