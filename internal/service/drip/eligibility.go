package drip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/logger"
)

// Rejection explains why a user did not enter a sequence.
type Rejection string

const (
	Accepted            Rejection = ""
	RejectUserNotFound  Rejection = "user_not_found"
	RejectPaidPlan      Rejection = "paid_plan"
	RejectUnsubscribed  Rejection = "unsubscribed"
	RejectCooldown      Rejection = "cooldown"
	RejectNoPricingView Rejection = "no_pricing_view"
	RejectConverted     Rejection = "converted"
	RejectActiveExists  Rejection = "active_exists"
)

// Evaluator decides whether a user should start a new sequence and creates
// it when they should. It deliberately does not check how long ago pricing
// was viewed; that delay is carried by the pending check's due time.
type Evaluator struct {
	users     UserStore
	events    EventLog
	sequences SequenceStore
	settings  Settings
	notifier  Notifier
	recorder  Recorder
	now       func() time.Time
}

// Evaluate runs the predicate chain for userID. It returns the created
// sequence, or nil with a nil error when the user was rejected.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) (*domain.DripSequence, error) {
	seq, _, err := e.EvaluateDetailed(ctx, userID)
	return seq, err
}

// EvaluateDetailed is Evaluate plus the rejection reason.
func (e *Evaluator) EvaluateDetailed(ctx context.Context, userID string) (*domain.DripSequence, Rejection, error) {
	user, err := e.users.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, RejectUserNotFound, nil
	}
	if err != nil {
		return nil, Accepted, fmt.Errorf("load user: %w", err)
	}
	if user.IsPaid(e.settings.PaidPlans) {
		return nil, RejectPaidPlan, nil
	}
	if user.Unsubscribed {
		return nil, RejectUnsubscribed, nil
	}

	now := e.now()

	latest, err := e.sequences.Latest(ctx, userID)
	if err != nil {
		return nil, Accepted, fmt.Errorf("latest sequence: %w", err)
	}
	if latest != nil && now.Sub(latest.CreatedAt) < e.settings.Cooldown {
		return nil, RejectCooldown, nil
	}

	viewed, err := e.events.Latest(ctx, userID, domain.EventPricingViewed)
	if err != nil {
		return nil, Accepted, fmt.Errorf("latest pricing view: %w", err)
	}
	if viewed == nil {
		return nil, RejectNoPricingView, nil
	}

	converted, err := e.events.ExistsAfter(ctx, userID, domain.EventCheckoutCompleted, viewed.Timestamp)
	if err != nil {
		return nil, Accepted, fmt.Errorf("checkout lookup: %w", err)
	}
	if converted {
		return nil, RejectConverted, nil
	}

	seq := &domain.DripSequence{
		ID:           uuid.New().String(),
		UserID:       userID,
		Status:       domain.SequenceActive,
		CurrentStep:  0,
		NextDueAt:    now.Add(e.settings.Steps[0].Delay()),
		TriggerEvent: domain.TriggerPricingAbandonment,
		CreatedAt:    now,
	}
	if err := e.sequences.Create(ctx, seq); err != nil {
		if errors.Is(err, ErrActiveSequenceExists) {
			return nil, RejectActiveExists, nil
		}
		return nil, Accepted, fmt.Errorf("create sequence: %w", err)
	}

	logger.Info("drip sequence started", "user_id", userID, "sequence_id", seq.ID, "next_due_at", seq.NextDueAt)
	e.recorder.ObserveStarted()
	e.notifier.Notify(ctx, domain.LifecycleEvent{
		Type:       domain.LifecycleStarted,
		SequenceID: seq.ID,
		UserID:     userID,
		At:         now,
	})
	return seq, Accepted, nil
}
