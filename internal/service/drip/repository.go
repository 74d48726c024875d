package drip

import (
	"context"
	"time"

	"github.com/postify/drip-engine/internal/domain"
)

// EventLog is the append-only record of funnel events.
type EventLog interface {
	// Append stores e. ID and Timestamp must already be set.
	Append(ctx context.Context, e *domain.BehaviorEvent) error

	// Latest returns the most recent event of kind for the user, or nil
	// if there is none.
	Latest(ctx context.Context, userID string, kind domain.EventKind) (*domain.BehaviorEvent, error)

	// ExistsAfter reports whether an event of kind was recorded strictly
	// after the given time.
	ExistsAfter(ctx context.Context, userID string, kind domain.EventKind, after time.Time) (bool, error)
}

// StepUpdate is the finishing write for a processed step.
// A nil LastSentAt or CompletedAt leaves the stored value unchanged.
type StepUpdate struct {
	Status      domain.SequenceStatus
	CurrentStep int
	NextDueAt   time.Time
	Attempts    int
	LastSentAt  *time.Time
	CompletedAt *time.Time
}

// SequenceStore persists drip sequences. Every mutating method is
// conditional on the sequence still being active, so terminal states have
// no exits. Implementations must be safe for concurrent use.
type SequenceStore interface {
	// Create inserts s. Returns ErrActiveSequenceExists if the user already
	// has an active sequence.
	Create(ctx context.Context, s *domain.DripSequence) error

	// Get returns a sequence by id. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.DripSequence, error)

	// Active returns the user's active sequence, or nil if there is none.
	Active(ctx context.Context, userID string) (*domain.DripSequence, error)

	// Latest returns the user's most recently created sequence in any
	// status, or nil if there is none.
	Latest(ctx context.Context, userID string) (*domain.DripSequence, error)

	// ListActive returns up to limit active sequences, earliest due first.
	ListActive(ctx context.Context, limit int) ([]domain.DripSequence, error)

	// Claim pushes next_due_at to until if the sequence is still active, on
	// step, and due at now. It reports whether this caller won the step.
	Claim(ctx context.Context, id string, step int, now, until time.Time) (bool, error)

	// Update applies u if the sequence is still active and on fromStep.
	Update(ctx context.Context, id string, fromStep int, u StepUpdate) (bool, error)

	// Cancel moves the user's active sequence to cancelled and returns it,
	// or nil if the user had no active sequence.
	Cancel(ctx context.Context, userID string, reason domain.CancelReason, at time.Time) (*domain.DripSequence, error)
}

// PendingQueue holds deferred eligibility checks.
type PendingQueue interface {
	Enqueue(ctx context.Context, c *domain.PendingCheck) error

	// ListDue returns up to limit pending checks with due_at <= now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.PendingCheck, error)

	// MarkProcessed flips a check to processed if it is still pending and
	// reports whether this caller did so.
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)
}

// DeliveryLog is the append-only audit of send attempts.
type DeliveryLog interface {
	Append(ctx context.Context, e *domain.DeliveryLogEntry) error

	// Recent returns up to limit entries for the user, newest sent_at first.
	Recent(ctx context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error)
}

// UserStore reads the account fields the engine depends on.
type UserStore interface {
	// Get returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, id string) (*domain.User, error)

	// SetUnsubscribed sets or clears the marketing opt-out flag. at and
	// reason are ignored when clearing. Returns ErrUserNotFound if the user
	// doesn't exist.
	SetUnsubscribed(ctx context.Context, id string, unsubscribed bool, at time.Time, reason string) error
}
