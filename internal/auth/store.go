package auth

import "context"

// Store describes persistence operations required by the session subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore is the credential-store boundary.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RefreshTokenStore manages refresh token records. Rotate and Revoke are
// conditional state transitions; they are the only way a record leaves the
// active state, which is what makes rotation linearizable per token even
// when requests race.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate transitions the old record active -> rotated and persists its
	// replacement in one transaction. Returns ErrNotFound when the old
	// record is absent or no longer active (the losing side of a race).
	// Any other failure, including context cancellation, rolls back both
	// writes and leaves the old record active.
	Rotate(ctx context.Context, oldID string, next *RefreshToken) error
	// Revoke transitions active -> revoked. A no-op when the record is
	// already terminal or absent.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForUser revokes every active record owned by the user and
	// reports how many were transitioned.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}
