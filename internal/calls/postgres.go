package calls

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"lead-qualifier/pkg/utils"
)

//go:embed schema.sql
var Schema string

// Migrate creates the calls table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.ApplySchema(ctx, db, Schema)
}

const callColumns = `id, call_id, customer_name, company_name, phone_number, role, use_case,
       transcript, recording_url, call_status, duration,
       reconcile_status, reconcile_attempts, reconcile_error,
       revision, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	err := row.Scan(
		&c.ID,
		&c.CallID,
		&c.CustomerName,
		&c.CompanyName,
		&c.PhoneNumber,
		&c.Role,
		&c.UseCase,
		&c.Transcript,
		&c.RecordingURL,
		&c.CallStatus,
		&c.Duration,
		&c.ReconcileStatus,
		&c.ReconcileAttempts,
		&c.ReconcileError,
		&c.Revision,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// PostgresRepo implements Repository with plain SQL over database/sql (pgx stdlib).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, in NewCall) (Call, error) {
	const q = `
INSERT INTO calls (customer_name, company_name, phone_number, role, use_case)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q,
		in.CustomerName,
		in.CompanyName,
		in.PhoneNumber,
		in.Role,
		in.UseCase,
	))
}

func (r *PostgresRepo) AssignCallID(ctx context.Context, id int64, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET call_id = $1, revision = revision + 1, updated_at = NOW()
WHERE id = $2 AND call_id IS NULL
RETURNING ` + callColumns
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID, id))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Call{}, getErr
		}
		return Call{}, ErrAlreadyAssigned
	}
	return c, err
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) GetByCallID(ctx context.Context, callID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls ORDER BY created_at DESC, id DESC`
	return r.queryCalls(ctx, q)
}

func (r *PostgresRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Call, error) {
	const q = `SELECT ` + callColumns + `
FROM calls
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at DESC, id DESC`
	return r.queryCalls(ctx, q, from, to)
}

func (r *PostgresRepo) ListMedia(ctx context.Context) ([]MediaView, error) {
	const q = `
SELECT customer_name, transcript, recording_url, created_at, call_status
FROM calls
ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]MediaView, 0)
	for rows.Next() {
		var m MediaView
		if err := rows.Scan(&m.CustomerName, &m.Transcript, &m.RecordingURL, &m.CreatedAt, &m.CallStatus); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, c Call) (Call, error) {
	if c.Duration < 0 {
		return Call{}, ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET transcript = $1,
    recording_url = $2,
    call_status = $3,
    duration = $4,
    reconcile_status = $5,
    reconcile_attempts = $6,
    reconcile_error = $7,
    revision = revision + 1,
    updated_at = NOW()
WHERE id = $8 AND revision = $9
RETURNING ` + callColumns
	out, err := scanCall(r.db.QueryRowContext(ctx, q,
		c.Transcript,
		c.RecordingURL,
		c.CallStatus,
		c.Duration,
		string(c.ReconcileStatus),
		c.ReconcileAttempts,
		c.ReconcileError,
		c.ID,
		c.Revision,
	))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, c.ID); getErr != nil {
			return Call{}, getErr
		}
		return Call{}, ErrConflict
	}
	return out, err
}

func (r *PostgresRepo) queryCalls(ctx context.Context, q string, args ...any) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
