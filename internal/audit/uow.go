package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"careportal.org/internal/auth"
)

// ApplyFunc writes one pending change inside the shared transaction.
type ApplyFunc func(ctx context.Context, tx *sql.Tx) error

// Change is one pending entity write tracked by the unit of work.
type Change struct {
	Table  string
	State  EntityState
	Entity any
	apply  ApplyFunc
}

// UnitOfWork is the transactional persistence boundary. Callers register
// pending writes; Commit resolves the acting user from the request context,
// stamps provenance onto every auditable change, then executes all writes in
// a single all-or-nothing transaction.
type UnitOfWork struct {
	db      *sql.DB
	now     func() time.Time
	pending []Change
}

// UnitOfWorkOption configures a UnitOfWork.
type UnitOfWorkOption func(*UnitOfWork)

// WithClock overrides the commit timestamp source (useful for tests).
func WithClock(fn func() time.Time) UnitOfWorkOption {
	return func(u *UnitOfWork) {
		if fn != nil {
			u.now = fn
		}
	}
}

// NewUnitOfWork constructs a unit of work over the shared database handle.
// A UnitOfWork is request-scoped and not safe for concurrent use.
func NewUnitOfWork(db *sql.DB, opts ...UnitOfWorkOption) *UnitOfWork {
	u := &UnitOfWork{db: db, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// RegisterNew stages an insert.
func (u *UnitOfWork) RegisterNew(table string, entity any, apply ApplyFunc) {
	u.pending = append(u.pending, Change{Table: table, State: StateAdded, Entity: entity, apply: apply})
}

// RegisterDirty stages a modification of an existing record.
func (u *UnitOfWork) RegisterDirty(table string, entity any, apply ApplyFunc) {
	u.pending = append(u.pending, Change{Table: table, State: StateModified, Entity: entity, apply: apply})
}

// Pending exposes the staged changes in registration order.
func (u *UnitOfWork) Pending() []Change { return u.pending }

// Rollback discards all staged changes without touching the database.
func (u *UnitOfWork) Rollback() { u.pending = nil }

// Commit stamps and persists all staged changes atomically. The actor is
// resolved from ctx; an unauthenticated context commits unstamped (see
// Stamp). A cancelled ctx aborts the transaction entirely; the database
// never sees a partial batch. After a successful commit the unit of work is
// empty and may be reused.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if len(u.pending) == 0 {
		return nil
	}

	Stamp(u.pending, auth.ActorIDFromContext(ctx), u.now().UTC())

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range u.pending {
		if err := c.apply(ctx, tx); err != nil {
			return fmt.Errorf("audit: apply %s: %w", c.Table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	u.pending = nil
	return nil
}
