package care

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"careportal.org/internal/audit"
	"careportal.org/internal/ids"
)

var ErrNotFound = errors.New("care: not found")

// Store persists the care domain. All writes are staged on a unit of work so
// provenance stamping and the physical commit happen in one transaction;
// reads go straight to the database.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateClient stages an insert on the unit of work.
func (s *Store) CreateClient(uow *audit.UnitOfWork, c *Client) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.Status == "" {
		c.Status = ClientStatusActive
	}
	uow.RegisterNew("clients", c, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`insert into clients(id, full_name, care_level, status, created_by, created_at, updated_by, updated_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8)`,
			c.ID, c.FullName, c.CareLevel, c.Status,
			nullString(c.CreatedBy), nullTime(c.CreatedAt),
			nullString(c.UpdatedBy), nullTime(c.UpdatedAt),
		)
		return err
	})
}

// UpdateClient stages a modification on the unit of work. The created_*
// columns are deliberately absent from the statement; they are written once
// at insert and never touched again.
func (s *Store) UpdateClient(uow *audit.UnitOfWork, c *Client) {
	uow.RegisterDirty("clients", c, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`update clients set full_name=$2, care_level=$3, status=$4, updated_by=$5, updated_at=$6 where id=$1`,
			c.ID, c.FullName, c.CareLevel, c.Status,
			nullString(c.UpdatedBy), nullTime(c.UpdatedAt),
		)
		return err
	})
}

// ReportIncident stages an incident insert on the unit of work.
func (s *Store) ReportIncident(uow *audit.UnitOfWork, in *Incident) {
	if in.ID == "" {
		in.ID = ids.New()
	}
	uow.RegisterNew("incidents", in, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`insert into incidents(id, client_id, summary, severity, occurred_at, created_by, created_at, updated_by, updated_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			in.ID, in.ClientID, in.Summary, in.Severity, in.OccurredAt,
			nullString(in.CreatedBy), nullTime(in.CreatedAt),
			nullString(in.UpdatedBy), nullTime(in.UpdatedAt),
		)
		return err
	})
}

// GetClient loads a client with its provenance.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, full_name, care_level, status, created_by, created_at, updated_by, updated_at
		 from clients where id=$1`, id)

	var (
		c                    Client
		createdBy, updatedBy sql.NullString
		createdAt, updatedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.FullName, &c.CareLevel, &c.Status,
		&createdBy, &createdAt, &updatedBy, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.CreatedBy, c.CreatedAt = createdBy.String, createdAt.Time
	c.UpdatedBy, c.UpdatedAt = updatedBy.String, updatedAt.Time
	return &c, nil
}

// ListIncidentsByClient returns a client's incidents, newest first.
func (s *Store) ListIncidentsByClient(ctx context.Context, clientID string) ([]*Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, client_id, summary, severity, occurred_at, created_by, created_at, updated_by, updated_at
		 from incidents where client_id=$1 order by occurred_at desc`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Incident
	for rows.Next() {
		var (
			in                   Incident
			createdBy, updatedBy sql.NullString
			createdAt, updatedAt sql.NullTime
		)
		if err := rows.Scan(&in.ID, &in.ClientID, &in.Summary, &in.Severity, &in.OccurredAt,
			&createdBy, &createdAt, &updatedBy, &updatedAt); err != nil {
			return nil, err
		}
		in.CreatedBy, in.CreatedAt = createdBy.String, createdAt.Time
		in.UpdatedBy, in.UpdatedAt = updatedBy.String, updatedAt.Time
		res = append(res, &in)
	}
	return res, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
