package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"careportal.org/internal/obs"
)

// Service composes the token issuer, the refresh token ledger and the
// credential store into the four session lifecycle operations.
//
// Logout revokes only the refresh token; a session token issued before the
// logout stays usable until its own expiry. That window is bounded by the
// access TTL and is a documented trade-off, not an oversight.
type Service struct {
	store  Store
	issuer *Issuer
	ledger *Ledger
	now    func() time.Time

	issuerName string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceAccessTTL configures session token lifetime.
func WithServiceAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithServiceRefreshTTL configures refresh token lifetime.
func WithServiceRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithServiceIssuerName overrides the token issuer claim.
func WithServiceIssuerName(name string) ServiceOption {
	return func(s *Service) {
		if name = strings.TrimSpace(name); name != "" {
			s.issuerName = name
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session lifecycle service. The signing secret is
// provided once here; nothing in the package reads ambient process state.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuerName: defaultIssuerName,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}

	issuer, err := NewIssuer(secret,
		WithAccessTTL(svc.accessTTL),
		WithIssuerName(svc.issuerName),
		WithIssuerClock(svc.now),
	)
	if err != nil {
		return nil, err
	}
	svc.issuer = issuer
	svc.ledger = NewLedger(store,
		WithRefreshTTL(svc.refreshTTL),
		WithLedgerClock(svc.now),
	)
	return svc, nil
}

// Issuer exposes the session token issuer, e.g. for middleware that only
// needs validation.
func (s *Service) Issuer() *Issuer { return s.issuer }

// Ledger exposes the refresh token ledger.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Login verifies credentials and issues a fresh token pair. Unknown email,
// wrong password and a disabled account are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.CountLogin(false)
			return TokenPair{}, nil, ErrAuthenticationFailed
		}
		return TokenPair{}, nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	if !user.Active() {
		obs.CountLogin(false)
		return TokenPair{}, nil, ErrAuthenticationFailed
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.CountLogin(false)
		return TokenPair{}, nil, ErrAuthenticationFailed
	}

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.CountLogin(true)
	return pair, user, nil
}

// Refresh rotates the refresh token and issues a new pair. Roles and account
// status are re-read from the credential store, never trusted from the old
// token. Reuse of an already-rotated token is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	rec, err := s.ledger.Validate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			obs.CountRefresh(false)
		}
		return TokenPair{}, nil, err
	}

	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.CountRefresh(false)
			return TokenPair{}, nil, ErrAuthenticationFailed
		}
		return TokenPair{}, nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	if !user.Active() {
		obs.CountRefresh(false)
		return TokenPair{}, nil, ErrAuthenticationFailed
	}

	newRaw, newRec, err := s.ledger.Rotate(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			// Lost the race: someone already spent this token.
			obs.CountRefreshReplay()
			obs.CountRefresh(false)
		}
		return TokenPair{}, nil, err
	}

	accessToken, accessExp, err := s.issuer.Issue(user.ID, []string{user.Role})
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.CountRefresh(true)
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     newRaw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: newRec.ExpiresAt,
	}, user, nil
}

// ValidateSession verifies a session token and re-checks that the account is
// still active, so a deactivated account loses access before the token's
// natural expiry would cut it off.
func (s *Service) ValidateSession(ctx context.Context, sessionToken string) (*Claims, *User, error) {
	claims, err := s.issuer.Validate(sessionToken)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrAuthenticationFailed
		}
		return nil, nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	if !user.Active() {
		return nil, nil, ErrAuthenticationFailed
	}
	return claims, user, nil
}

// Logout revokes the given refresh token. Revoking an already-terminal or
// unknown token is a no-op success.
func (s *Service) Logout(ctx context.Context, refreshToken, userID string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return fmt.Errorf("%w: refresh token is required", ErrValidation)
	}
	return s.ledger.Revoke(ctx, refreshToken, userID)
}

// LogoutAll revokes every outstanding refresh token for the user ("log out
// everywhere").
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.ledger.RevokeAll(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash and
// revokes the user's entire outstanding refresh token set.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || next == "" {
		return fmt.Errorf("%w: user id and new password are required", ErrValidation)
	}

	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAuthenticationFailed
		}
		return fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	if !user.Active() {
		return ErrAuthenticationFailed
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrAuthenticationFailed
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("%w: update password: %v", ErrPersistence, err)
	}
	return s.ledger.RevokeAll(ctx, userID)
}

func (s *Service) mintPair(ctx context.Context, user *User) (TokenPair, error) {
	accessToken, accessExp, err := s.issuer.Issue(user.ID, []string{user.Role})
	if err != nil {
		return TokenPair{}, err
	}
	refreshRaw, refreshRec, err := s.ledger.Issue(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshRaw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshRec.ExpiresAt,
	}, nil
}
