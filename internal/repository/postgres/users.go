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

// UserRepo implements drip.UserStore against the users table.
type UserRepo struct{ db *sql.DB }

// NewUserRepo creates a Postgres-backed user directory.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	var (
		u       domain.User
		unsubAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, subscription_plan, preferred_language,
		       email_unsubscribed, email_unsubscribed_at, COALESCE(unsubscribe_reason, '')
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.FullName, &u.Plan, &u.Locale, &u.Unsubscribed, &unsubAt, &u.UnsubscribeReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, drip.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.UnsubscribedAt = timePtr(unsubAt)
	return &u, nil
}

func (r *UserRepo) SetUnsubscribed(ctx context.Context, id string, unsubscribed bool, at time.Time, reason string) error {
	var (
		res sql.Result
		err error
	)
	if unsubscribed {
		res, err = r.db.ExecContext(ctx, `
			UPDATE users SET email_unsubscribed = true, email_unsubscribed_at = $2, unsubscribe_reason = $3
			WHERE id = $1
		`, id, at, nullString(reason))
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE users SET email_unsubscribed = false, email_unsubscribed_at = NULL, unsubscribe_reason = NULL
			WHERE id = $1
		`, id)
	}
	if err != nil {
		return fmt.Errorf("set unsubscribed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return drip.ErrUserNotFound
	}
	return nil
}
