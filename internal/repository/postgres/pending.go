package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/postify/drip-engine/internal/domain"
)

// PendingRepo implements drip.PendingQueue against PostgreSQL.
type PendingRepo struct{ db *sql.DB }

// NewPendingRepo creates a Postgres-backed pending-check queue.
func NewPendingRepo(db *sql.DB) *PendingRepo { return &PendingRepo{db: db} }

func (r *PendingRepo) Enqueue(ctx context.Context, c *domain.PendingCheck) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_drip_checks (id, user_id, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.UserID, c.DueAt, string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue check: %w", err)
	}
	return nil
}

func (r *PendingRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.PendingCheck, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, due_at, status, created_at, processed_at
		FROM pending_drip_checks
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due checks: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingCheck
	for rows.Next() {
		var (
			c         domain.PendingCheck
			status    string
			processed sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.DueAt, &status, &c.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		c.Status = domain.PendingCheckStatus(status)
		c.ProcessedAt = timePtr(processed)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PendingRepo) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_drip_checks SET status = 'processed', processed_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
