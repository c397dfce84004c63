package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"careportal.org/internal/ids"
)

const defaultRefreshTTL = 14 * 24 * time.Hour

// Ledger tracks the lifecycle of long-lived refresh tokens. A record moves
// from active to exactly one of rotated, revoked or (by clock) expired; a
// non-active record is never usable again. The store's conditional
// Rotate/Revoke transitions are what guarantee single use when two requests
// race over the same token value.
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLedgerClock overrides the time source (useful for tests).
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger over the given store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store: store,
		ttl:   defaultRefreshTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue generates a cryptographically random refresh token for the user,
// persists its active record and returns the opaque "<id>.<secret>" value.
// Only the hash of the secret is stored.
func (l *Ledger) Issue(ctx context.Context, userID string) (string, *RefreshToken, error) {
	raw, rec, err := l.mint(userID)
	if err != nil {
		return "", nil, err
	}
	if err := l.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("%w: create refresh token: %v", ErrPersistence, err)
	}
	return raw, rec, nil
}

// mint builds an unpersisted active record and its opaque value.
func (l *Ledger) mint(userID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hashSecret(secret),
		Status:    TokenStatusActive,
		ExpiresAt: l.now().UTC().Add(l.ttl),
	}
	return rec.ID + "." + secret, rec, nil
}

// Validate resolves the opaque value to its active ledger record without
// consuming it. Absent, expired, revoked, rotated and hash-mismatched tokens
// all yield the same ErrAuthenticationFailed.
func (l *Ledger) Validate(ctx context.Context, raw string) (*RefreshToken, error) {
	tokenID, secret, err := splitRefreshToken(raw)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	tokens := l.store.RefreshTokens(ctx)
	rec, err := tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("%w: find refresh token: %v", ErrPersistence, err)
	}
	if !secureCompareHash(rec.TokenHash, secret) {
		// Wrong secret against a known record id: burn the record.
		_ = tokens.Revoke(ctx, rec.ID)
		return nil, ErrAuthenticationFailed
	}
	if rec.Status != TokenStatusActive || !l.now().Before(rec.ExpiresAt) {
		return nil, ErrAuthenticationFailed
	}
	return rec, nil
}

// Rotate consumes a validated record and issues its replacement for the same
// user, both inside one store transaction. The consume step is a conditional
// state transition: when two requests race over one token, exactly one passes
// and the other gets ErrAuthenticationFailed. A stolen-then-replayed old
// value lands on the losing side. When the transaction aborts, through
// cancellation or a store fault, the old record keeps its active state and
// the value stays usable.
func (l *Ledger) Rotate(ctx context.Context, rec *RefreshToken) (string, *RefreshToken, error) {
	if rec == nil {
		return "", nil, ErrAuthenticationFailed
	}
	raw, next, err := l.mint(rec.UserID)
	if err != nil {
		return "", nil, err
	}
	if err := l.store.RefreshTokens(ctx).Rotate(ctx, rec.ID, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrAuthenticationFailed
		}
		return "", nil, fmt.Errorf("%w: rotate refresh token: %v", ErrPersistence, err)
	}
	return raw, next, nil
}

// Revoke invalidates a single refresh token, typically on logout. Revoking a
// token that is unknown or already terminal is a no-op success. A value whose
// record belongs to a different user, or whose secret does not match, is
// rejected uniformly.
func (l *Ledger) Revoke(ctx context.Context, raw, userID string) error {
	tokenID, secret, err := splitRefreshToken(raw)
	if err != nil {
		return ErrAuthenticationFailed
	}

	tokens := l.store.RefreshTokens(ctx)
	rec, err := tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: find refresh token: %v", ErrPersistence, err)
	}
	if !secureCompareHash(rec.TokenHash, secret) {
		return ErrAuthenticationFailed
	}
	if userID != "" && rec.UserID != userID {
		return ErrAuthenticationFailed
	}
	if err := tokens.Revoke(ctx, rec.ID); err != nil {
		return fmt.Errorf("%w: revoke refresh token: %v", ErrPersistence, err)
	}
	return nil
}

// RevokeAll invalidates every outstanding refresh token owned by the user.
// Used on password change, forced logout and account deactivation.
func (l *Ledger) RevokeAll(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if _, err := l.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: revoke user tokens: %v", ErrPersistence, err)
	}
	return nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secureCompareHash(expectedHash, secret string) bool {
	actual := hashSecret(secret)
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
