package domain

import "time"

// LifecycleType names a state change worth telling other systems about.
type LifecycleType string

const (
	LifecycleStarted   LifecycleType = "sequence_started"
	LifecycleStepSent  LifecycleType = "step_sent"
	LifecycleCompleted LifecycleType = "sequence_completed"
	LifecycleCancelled LifecycleType = "sequence_cancelled"
)

// LifecycleEvent is published after a sequence changes state. Step is
// 1-based and only set for step_sent.
type LifecycleEvent struct {
	Type       LifecycleType   `json:"type"`
	SequenceID string          `json:"sequence_id"`
	UserID     string          `json:"user_id"`
	Step       int             `json:"step,omitempty"`
	Template   string          `json:"template,omitempty"`
	Outcome    DeliveryOutcome `json:"outcome,omitempty"`
	Reason     CancelReason    `json:"reason,omitempty"`
	At         time.Time       `json:"at"`
}
