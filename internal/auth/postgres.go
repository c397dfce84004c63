package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"careportal.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(ctx context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, role, status) values($1,$2,$3,$4,$5)`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Status,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, status, created_at, updated_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, status, created_at, updated_at from users where email=$1`,
		strings.ToLower(email))
	return scanUser(row)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if tok.Status == "" {
		tok.Status = TokenStatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, status, expires_at) values($1,$2,$3,$4,$5)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.Status, tok.ExpiresAt,
	)
	return err
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, status, expires_at, created_at from refresh_tokens where id=$1`, id)
	var tok RefreshToken
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.Status, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// Rotate runs the conditional consume and the replacement insert in one
// transaction. The conditional update is the linearization point: of N
// racing callers exactly one sees RowsAffected == 1. Cancellation or an
// insert failure rolls both writes back, so the old record stays active.
func (s *refreshTokenStore) Rotate(ctx context.Context, oldID string, next *RefreshToken) error {
	if next.ID == "" {
		next.ID = ids.New()
	}
	if next.Status == "" {
		next.Status = TokenStatusActive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens set status=$2 where id=$1 and status=$3`,
		oldID, TokenStatusRotated, TokenStatusActive,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, status, expires_at) values($1,$2,$3,$4,$5)`,
		next.ID, next.UserID, next.TokenHash, next.Status, next.ExpiresAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *refreshTokenStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set status=$2 where id=$1 and status=$3`,
		id, TokenStatusRevoked, TokenStatusActive,
	)
	return err
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set status=$2 where user_id=$1 and status=$3`,
		userID, TokenStatusRevoked, TokenStatusActive,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
