// Package auth implements the challenge-sign-redeem flow gating the
// admin-only /purge and /censor endpoints: a caller requests a
// single-use nonce, signs it with an Ed25519 private key, and redeems it
// within a short TTL. Redeem requires the signer to be on a configured
// admin allow-list; RedeemSelf accepts any identity key, since /purge
// only ever acts on the signer's own data.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

type challenge struct {
	nonce     []byte
	expiresAt time.Time
	redeemed  bool
}

// Manager issues and redeems single-use challenges. Redeem verifies that
// a redemption is signed by one of the configured admin keys; RedeemSelf
// accepts any signing key.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	adminKeys  []model.PublicKey
	mu         sync.Mutex
	challenges map[string]*challenge
}

// NewManager builds a Manager. secret seeds nonce derivation and must be
// kept server-side only; adminKeys is the allow-list of Ed25519 keys
// permitted to redeem a challenge through Redeem.
func NewManager(secret []byte, ttl time.Duration, adminKeys []model.PublicKey) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	m := &Manager{secret: secret, ttl: ttl, adminKeys: adminKeys, challenges: map[string]*challenge{}}
	go m.sweepLoop()
	return m
}

// IssueChallenge hands back a fresh challenge id and the nonce the
// caller must sign with an admin private key to redeem it.
func (m *Manager) IssueChallenge() (id string, nonce []byte) {
	id = uuid.NewString()
	expiresAt := time.Now().Add(m.ttl)
	nonce = m.deriveNonce(id, expiresAt)

	m.mu.Lock()
	m.challenges[id] = &challenge{nonce: nonce, expiresAt: expiresAt}
	m.mu.Unlock()

	return id, nonce
}

// Redeem verifies that signature is a valid Ed25519 signature over the
// challenge's nonce under signerKey, that signerKey is an admin key, and
// that the challenge is unexpired and has not already been redeemed.
// Used by endpoints that act on a system other than the caller's own
// (/censor): the signer must be on the configured admin allow-list.
func (m *Manager) Redeem(id string, signerKey model.PublicKey, signature []byte) error {
	return m.redeem(id, signerKey, signature, true)
}

// RedeemSelf is like Redeem but accepts any valid identity key rather
// than requiring an admin key — used by /purge, which only ever acts on
// the signer's own system (proving ownership is enough to delete your
// own data; no elevated privilege is needed).
func (m *Manager) RedeemSelf(id string, signerKey model.PublicKey, signature []byte) error {
	return m.redeem(id, signerKey, signature, false)
}

func (m *Manager) redeem(id string, signerKey model.PublicKey, signature []byte, requireAdmin bool) error {
	nonce, err := m.takeChallenge(id)
	if err != nil {
		return err
	}

	if requireAdmin && !m.isAdminKey(signerKey) {
		return svcerr.New(svcerr.CodeUnauthorized, "not an admin key")
	}
	if err := signerKey.VerifySignature(nonce, signature); err != nil {
		return svcerr.New(svcerr.CodeVerificationFailed, "challenge signature invalid")
	}
	return nil
}

// takeChallenge atomically marks id as redeemed (so a second call, even
// with a correct signature, is rejected) and returns its nonce.
func (m *Manager) takeChallenge(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[id]
	if !ok {
		return nil, svcerr.New(svcerr.CodeInvalidOrExpiredChallenge, "unknown challenge")
	}
	if c.redeemed {
		return nil, svcerr.New(svcerr.CodeInvalidOrExpiredChallenge, "challenge already redeemed")
	}
	if time.Now().After(c.expiresAt) {
		return nil, svcerr.New(svcerr.CodeInvalidOrExpiredChallenge, "challenge expired")
	}
	c.redeemed = true
	return c.nonce, nil
}

func (m *Manager) isAdminKey(k model.PublicKey) bool {
	for _, admin := range m.adminKeys {
		if admin.Equal(k) {
			return true
		}
	}
	return false
}

// deriveNonce derives a per-challenge nonce via HKDF-SHA256 over the
// challenge id, its expiry, and the server secret. IssueChallenge keeps
// the derived nonce in the challenge map until the sweep removes it.
func (m *Manager) deriveNonce(id string, expiresAt time.Time) []byte {
	info := []byte(id)
	var expiryBytes [8]byte
	binary.BigEndian.PutUint64(expiryBytes[:], uint64(expiresAt.Unix()))

	hk := hkdf.New(sha256.New, m.secret, expiryBytes[:], info)
	out := make([]byte, 32)
	if _, err := io.ReadFull(hk, out); err != nil {
		// HKDF over a fixed-size SHA-256 output never exhausts its
		// entropy for a 32-byte request; a failure here means the
		// server secret itself is empty/misconfigured.
		panic(fmt.Sprintf("derive nonce: %v", err))
	}
	return out
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.sweepExpired()
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.challenges {
		if now.After(c.expiresAt.Add(m.ttl)) {
			delete(m.challenges, id)
		}
	}
}

// Context carries a verified admin identity through a request, letting
// handlers downstream of auth middleware know which admin key acted.
type adminKeyContextKey struct{}

func ContextWithAdminKey(ctx context.Context, k model.PublicKey) context.Context {
	return context.WithValue(ctx, adminKeyContextKey{}, k)
}

func AdminKeyFromContext(ctx context.Context) (model.PublicKey, bool) {
	k, ok := ctx.Value(adminKeyContextKey{}).(model.PublicKey)
	return k, ok
}
