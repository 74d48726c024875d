package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/postify/drip-engine/internal/domain"
)

// EventRepo implements drip.EventLog against PostgreSQL.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event log.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e *domain.BehaviorEvent) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var plan sql.NullString
	if e.Plan != nil {
		plan = sql.NullString{String: *e.Plan, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO behavior_events (id, user_id, event_type, plan, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, string(e.Kind), plan, metaJSON, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepo) Latest(ctx context.Context, userID string, kind domain.EventKind) (*domain.BehaviorEvent, error) {
	var (
		e        domain.BehaviorEvent
		kindStr  string
		plan     sql.NullString
		metaJSON []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, event_type, plan, metadata, occurred_at
		FROM behavior_events
		WHERE user_id = $1 AND event_type = $2
		ORDER BY occurred_at DESC
		LIMIT 1
	`, userID, string(kind)).Scan(&e.ID, &e.UserID, &kindStr, &plan, &metaJSON, &e.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest event: %w", err)
	}

	e.Kind = domain.EventKind(kindStr)
	if plan.Valid {
		p := plan.String
		e.Plan = &p
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &e, nil
}

func (r *EventRepo) ExistsAfter(ctx context.Context, userID string, kind domain.EventKind, after time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM behavior_events
			WHERE user_id = $1 AND event_type = $2 AND occurred_at > $3
		)
	`, userID, string(kind), after).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("event exists: %w", err)
	}
	return exists, nil
}
