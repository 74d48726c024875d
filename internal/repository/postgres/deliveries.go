package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/postify/drip-engine/internal/domain"
)

// DeliveryRepo implements drip.DeliveryLog against PostgreSQL.
type DeliveryRepo struct{ db *sql.DB }

// NewDeliveryRepo creates a Postgres-backed delivery log.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

func (r *DeliveryRepo) Append(ctx context.Context, e *domain.DeliveryLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, user_id, template, step, sequence_id, outcome, provider_id, mode, error, queued_by, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.UserID, e.Template, e.Step, nullString(e.SequenceID), string(e.Outcome),
		nullString(e.ProviderID), string(e.Mode), nullString(e.Error), nullString(e.QueuedBy), e.SentAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) Recent(ctx context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, template, step, COALESCE(sequence_id, ''), outcome,
		       COALESCE(provider_id, ''), mode, COALESCE(error, ''), COALESCE(queued_by, ''), sent_at
		FROM email_logs
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent email logs: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryLogEntry
	for rows.Next() {
		var (
			e             domain.DeliveryLogEntry
			outcome, mode string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Template, &e.Step, &e.SequenceID, &outcome,
			&e.ProviderID, &mode, &e.Error, &e.QueuedBy, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		e.Outcome = domain.DeliveryOutcome(outcome)
		e.Mode = domain.DeliveryMode(mode)
		out = append(out, e)
	}
	return out, rows.Err()
}
