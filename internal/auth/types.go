package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// The back office distinguishes exactly two roles.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Refresh token record states. Active is the only state a token can be used
// from; the rest are terminal.
const (
	TokenStatusActive  = "active"
	TokenStatusRotated = "rotated"
	TokenStatusRevoked = "revoked"
)

// User is the credential-store view of a staff account. Read-only to this
// package except for password updates.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may hold a session.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// RefreshToken is a persisted ledger record. The opaque value handed to the
// client is "<id>.<secret>"; only the SHA-256 hash of the secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
