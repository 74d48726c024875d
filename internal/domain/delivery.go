package domain

import "time"

// DeliveryOutcome is the result of a single send attempt.
type DeliveryOutcome string

const (
	OutcomeSuccess DeliveryOutcome = "success"
	OutcomeError   DeliveryOutcome = "error"
)

// DeliveryMode says whether the gateway actually transmitted the message.
type DeliveryMode string

const (
	ModeMock DeliveryMode = "mock"
	ModeLive DeliveryMode = "live"
)

// DeliveryResult is what a gateway reports after a send attempt.
type DeliveryResult struct {
	Status  DeliveryOutcome `json:"status"`
	ID      string          `json:"email_id,omitempty"`
	Mode    DeliveryMode    `json:"mode"`
	Message string          `json:"message,omitempty"`
}

// DeliveryLogEntry is the append-only audit row written after every send
// attempt, whatever the outcome. Step is 1-based; SequenceID is empty for
// one-off sends that are not part of a sequence.
type DeliveryLogEntry struct {
	ID         string          `json:"id" db:"id" dynamodbav:"id"`
	UserID     string          `json:"user_id" db:"user_id" dynamodbav:"user_id"`
	Template   string          `json:"template" db:"template" dynamodbav:"template"`
	Step       int             `json:"step" db:"step" dynamodbav:"step"`
	SequenceID string          `json:"drip_sequence_id,omitempty" db:"sequence_id" dynamodbav:"sequence_id,omitempty"`
	Outcome    DeliveryOutcome `json:"status" db:"outcome" dynamodbav:"outcome"`
	ProviderID string          `json:"email_id,omitempty" db:"provider_id" dynamodbav:"provider_id,omitempty"`
	Mode       DeliveryMode    `json:"mode" db:"mode" dynamodbav:"mode"`
	Error      string          `json:"error,omitempty" db:"error" dynamodbav:"error,omitempty"`
	QueuedBy   string          `json:"queued_by,omitempty" db:"queued_by" dynamodbav:"queued_by,omitempty"`
	SentAt     time.Time       `json:"sent_at" db:"sent_at" dynamodbav:"sent_at"`
}
