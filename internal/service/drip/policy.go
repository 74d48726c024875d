package drip

import (
	"context"
	"fmt"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/mailing"
)

// FailureMode selects what happens to a step whose delivery failed.
type FailureMode string

const (
	// FailureAdvance moves on to the next step anyway. The failed message
	// is lost but recorded in the delivery log.
	FailureAdvance FailureMode = "advance"
	// FailureRetry keeps the sequence on the same step until MaxAttempts
	// sends have been tried, then advances.
	FailureRetry FailureMode = "retry"
)

// FailurePolicy parameterizes failed-step handling.
type FailurePolicy struct {
	Mode        FailureMode
	MaxAttempts int
	RetryDelay  time.Duration
}

// shouldRetry reports whether a failed step with the given prior attempts
// gets another try.
func (p FailurePolicy) shouldRetry(attempts int) bool {
	return p.Mode == FailureRetry && attempts+1 < p.MaxAttempts
}

// Settings holds the campaign script and timing rules.
type Settings struct {
	Steps           []domain.StepDefinition
	TriggerAfter    time.Duration
	Cooldown        time.Duration
	PaidPlans       []string
	BatchSize       int
	ClaimTTL        time.Duration
	DeliveryTimeout time.Duration
	Policy          FailurePolicy
}

// DefaultSettings returns the stock 72h trigger, 30 day cooldown script.
func DefaultSettings() Settings {
	return Settings{
		Steps:           domain.DefaultSteps(),
		TriggerAfter:    72 * time.Hour,
		Cooldown:        30 * 24 * time.Hour,
		PaidPlans:       domain.DefaultPaidPlans,
		BatchSize:       100,
		ClaimTTL:        10 * time.Minute,
		DeliveryTimeout: 15 * time.Second,
		Policy:          FailurePolicy{Mode: FailureAdvance},
	}
}

func (s Settings) validate() error {
	if len(s.Steps) == 0 {
		return ErrNoSteps
	}
	for i, st := range s.Steps {
		if st.DelayHours < 0 {
			return fmt.Errorf("step %d: negative delay", i)
		}
	}
	switch s.Policy.Mode {
	case FailureAdvance, FailureRetry:
	default:
		return fmt.Errorf("unknown failure mode %q", s.Policy.Mode)
	}
	return nil
}

// Renderer turns a template name into a message for one recipient.
type Renderer interface {
	Render(template, locale, displayName string) (*mailing.RenderedMessage, error)
}

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, ev domain.LifecycleEvent)
}

// Recorder receives operational measurements.
type Recorder interface {
	ObserveSweep(r SweepReport)
	ObserveDelivery(template string, outcome domain.DeliveryOutcome)
	ObserveStarted()
	ObserveCancelled(reason domain.CancelReason)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.LifecycleEvent) {}

type nopRecorder struct{}

func (nopRecorder) ObserveSweep(SweepReport) {}
func (nopRecorder) ObserveDelivery(string, domain.DeliveryOutcome) {}
func (nopRecorder) ObserveStarted() {}
func (nopRecorder) ObserveCancelled(domain.CancelReason) {}
