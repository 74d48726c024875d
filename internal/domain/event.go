package domain

import "time"

// EventKind enumerates the pricing-funnel events a user can produce.
type EventKind string

const (
	EventPricingViewed     EventKind = "pricing_viewed"
	EventPlanSelected      EventKind = "plan_selected"
	EventCheckoutStarted   EventKind = "checkout_started"
	EventCheckoutCompleted EventKind = "checkout_completed"
)

// Valid reports whether k is one of the known funnel events.
func (k EventKind) Valid() bool {
	switch k {
	case EventPricingViewed, EventPlanSelected, EventCheckoutStarted, EventCheckoutCompleted:
		return true
	}
	return false
}

// BehaviorEvent is one append-only funnel event. Events are ordered by
// Timestamp only; there is no sequence number.
type BehaviorEvent struct {
	ID        string         `json:"event_id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Kind      EventKind      `json:"event_type" db:"event_type"`
	Plan      *string        `json:"plan,omitempty" db:"plan"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata"`
	Timestamp time.Time      `json:"timestamp" db:"occurred_at"`
}

// PendingCheckStatus is the lifecycle of a deferred eligibility check.
type PendingCheckStatus string

const (
	CheckPending   PendingCheckStatus = "pending"
	CheckProcessed PendingCheckStatus = "processed"
)

// PendingCheck is an eligibility check deferred until DueAt. One is created
// for every qualifying pricing_viewed event; they are never deleted.
type PendingCheck struct {
	ID          string             `json:"id" db:"id"`
	UserID      string             `json:"user_id" db:"user_id"`
	DueAt       time.Time          `json:"due_at" db:"due_at"`
	Status      PendingCheckStatus `json:"status" db:"status"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
}
