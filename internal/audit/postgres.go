package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"lead-qualifier/pkg/utils"
)

//go:embed schema.sql
var Schema string

// Migrate creates the call_events table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.ApplySchema(ctx, db, Schema)
}

// PostgresRepo is INSERT/SELECT only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_ref, type, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, q, e.ID, e.CallRef, string(e.Type), e.Message, e.Metadata, e.CreatedAt); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByCallRef(ctx context.Context, callRef string) ([]Event, error) {
	const q = `
SELECT id, call_ref, type, message, metadata, created_at
FROM call_events
WHERE call_ref = $1
ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, callRef)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CallRef, &e.Type, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
