package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/service/drip"
)

// SequenceRepo implements drip.SequenceStore against PostgreSQL. Every
// mutating statement carries status = 'active' in its WHERE clause.
type SequenceRepo struct{ db *sql.DB }

// NewSequenceRepo creates a Postgres-backed sequence store.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

const sequenceColumns = `id, user_id, status, current_step, next_due_at, attempts, trigger_event,
	created_at, last_sent_at, completed_at, cancelled_at, COALESCE(cancel_reason, '')`

func scanSequence(row rowScanner) (*domain.DripSequence, error) {
	var (
		s                              domain.DripSequence
		status, reason                 string
		lastSent, completed, cancelled sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &status, &s.CurrentStep, &s.NextDueAt, &s.Attempts,
		&s.TriggerEvent, &s.CreatedAt, &lastSent, &completed, &cancelled, &reason); err != nil {
		return nil, err
	}
	s.Status = domain.SequenceStatus(status)
	s.CancelReason = domain.CancelReason(reason)
	s.LastSentAt = timePtr(lastSent)
	s.CompletedAt = timePtr(completed)
	s.CancelledAt = timePtr(cancelled)
	return &s, nil
}

func (r *SequenceRepo) Create(ctx context.Context, s *domain.DripSequence) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drip_sequences (id, user_id, status, current_step, next_due_at, attempts, trigger_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.UserID, string(s.Status), s.CurrentStep, s.NextDueAt, s.Attempts, s.TriggerEvent, s.CreatedAt)
	if isUniqueViolation(err) {
		return drip.ErrActiveSequenceExists
	}
	if err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}
	return nil
}

func (r *SequenceRepo) Get(ctx context.Context, id string) (*domain.DripSequence, error) {
	s, err := scanSequence(r.db.QueryRowContext(ctx,
		`SELECT `+sequenceColumns+` FROM drip_sequences WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, drip.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return s, nil
}

func (r *SequenceRepo) Active(ctx context.Context, userID string) (*domain.DripSequence, error) {
	s, err := scanSequence(r.db.QueryRowContext(ctx,
		`SELECT `+sequenceColumns+` FROM drip_sequences WHERE user_id = $1 AND status = 'active'`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active sequence: %w", err)
	}
	return s, nil
}

func (r *SequenceRepo) Latest(ctx context.Context, userID string) (*domain.DripSequence, error) {
	s, err := scanSequence(r.db.QueryRowContext(ctx,
		`SELECT `+sequenceColumns+` FROM drip_sequences WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sequence: %w", err)
	}
	return s, nil
}

func (r *SequenceRepo) ListActive(ctx context.Context, limit int) ([]domain.DripSequence, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sequenceColumns+` FROM drip_sequences WHERE status = 'active' ORDER BY next_due_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active sequences: %w", err)
	}
	defer rows.Close()

	var out []domain.DripSequence
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) Claim(ctx context.Context, id string, step int, now, until time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE drip_sequences SET next_due_at = $4
		WHERE id = $1 AND status = 'active' AND current_step = $2 AND next_due_at <= $3
	`, id, step, now, until)
	if err != nil {
		return false, fmt.Errorf("claim step: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *SequenceRepo) Update(ctx context.Context, id string, fromStep int, u drip.StepUpdate) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE drip_sequences SET
			status = $3,
			current_step = $4,
			next_due_at = $5,
			attempts = $6,
			last_sent_at = COALESCE($7, last_sent_at),
			completed_at = COALESCE($8, completed_at)
		WHERE id = $1 AND status = 'active' AND current_step = $2
	`, id, fromStep, string(u.Status), u.CurrentStep, u.NextDueAt, u.Attempts, nullTime(u.LastSentAt), nullTime(u.CompletedAt))
	if err != nil {
		return false, fmt.Errorf("update sequence: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *SequenceRepo) Cancel(ctx context.Context, userID string, reason domain.CancelReason, at time.Time) (*domain.DripSequence, error) {
	s, err := scanSequence(r.db.QueryRowContext(ctx, `
		UPDATE drip_sequences SET status = 'cancelled', cancel_reason = $2, cancelled_at = $3
		WHERE user_id = $1 AND status = 'active'
		RETURNING `+sequenceColumns, userID, string(reason), at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cancel sequence: %w", err)
	}
	return s, nil
}
