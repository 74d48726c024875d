package domain

import "time"

// SequenceStatus enumerates the lifecycle states of a drip sequence.
type SequenceStatus string

const (
	SequenceActive    SequenceStatus = "active"
	SequenceCompleted SequenceStatus = "completed"
	SequenceCancelled SequenceStatus = "cancelled"
)

// CancelReason records why an active sequence was stopped early.
type CancelReason string

const (
	CancelConverted    CancelReason = "converted"
	CancelUnsubscribed CancelReason = "unsubscribed"
)

// TriggerPricingAbandonment is the only trigger that starts a sequence today.
const TriggerPricingAbandonment = "pricing_abandonment"

// DripSequence is one user's run through the campaign script.
// CurrentStep is a 0-based index into the step definitions.
type DripSequence struct {
	ID           string         `json:"sequence_id" db:"id"`
	UserID       string         `json:"user_id" db:"user_id"`
	Status       SequenceStatus `json:"status" db:"status"`
	CurrentStep  int            `json:"current_step" db:"current_step"`
	NextDueAt    time.Time      `json:"next_due_at" db:"next_due_at"`
	Attempts     int            `json:"attempts" db:"attempts"`
	TriggerEvent string         `json:"trigger_event" db:"trigger_event"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	LastSentAt   *time.Time     `json:"last_sent_at,omitempty" db:"last_sent_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt  *time.Time     `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason CancelReason   `json:"cancel_reason,omitempty" db:"cancel_reason"`
}

// IsTerminal returns true if no transition can leave the current status.
func (s *DripSequence) IsTerminal() bool {
	return s.Status == SequenceCompleted || s.Status == SequenceCancelled
}

// IsDue reports whether the current step may run at now.
func (s *DripSequence) IsDue(now time.Time) bool {
	return !now.Before(s.NextDueAt)
}

// StepDefinition is one message in the campaign script. DelayHours is
// relative to the previous step's execution, or to creation for step 0.
type StepDefinition struct {
	DelayHours int    `json:"delay_hours" yaml:"delay_hours"`
	Template   string `json:"template" yaml:"template"`
}

// Delay returns DelayHours as a duration.
func (d StepDefinition) Delay() time.Duration {
	return time.Duration(d.DelayHours) * time.Hour
}

// DefaultSteps is the stock three-message abandonment script.
func DefaultSteps() []StepDefinition {
	return []StepDefinition{
		{DelayHours: 2, Template: "reminder"},
		{DelayHours: 24, Template: "social_proof"},
		{DelayHours: 72, Template: "soft_urgency"},
	}
}
