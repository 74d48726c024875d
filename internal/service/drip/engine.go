package drip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/mailing"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/postify/drip-engine/internal/service/drip"

// recentDeliveries is how many log entries Status returns.
const recentDeliveries = 5

// Deps are the collaborators an Engine needs. Notifier and Recorder are
// optional.
type Deps struct {
	Events     EventLog
	Sequences  SequenceStore
	Pending    PendingQueue
	Deliveries DeliveryLog
	Users      UserStore
	Renderer   Renderer
	Gateway    mailing.Gateway
	Notifier   Notifier
	Recorder   Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to drive the schedule.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine wires the evaluator, processor and sweeper together and exposes
// the operations called from the HTTP surface and the worker.
type Engine struct {
	deps     Deps
	settings Settings
	now      func() time.Time

	Evaluator *Evaluator
	Processor *Processor
	Sweeper   *Sweeper
}

// New validates settings and builds an Engine.
func New(settings Settings, deps Deps, opts ...Option) (*Engine, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = 100
	}
	if settings.DeliveryTimeout <= 0 {
		settings.DeliveryTimeout = 15 * time.Second
	}
	if settings.ClaimTTL <= 0 {
		settings.ClaimTTL = 10 * time.Minute
	}

	e := &Engine{deps: deps, settings: settings, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	clock := func() time.Time { return e.now() }
	tracer := otel.Tracer(tracerName)

	e.Evaluator = &Evaluator{
		users:     deps.Users,
		events:    deps.Events,
		sequences: deps.Sequences,
		settings:  settings,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		now:       clock,
	}
	e.Processor = &Processor{
		renderer:   deps.Renderer,
		gateway:    deps.Gateway,
		deliveries: deps.Deliveries,
		sequences:  deps.Sequences,
		settings:   settings,
		notifier:   deps.Notifier,
		recorder:   deps.Recorder,
		tracer:     tracer,
		now:        clock,
	}
	e.Sweeper = &Sweeper{
		pending:   deps.Pending,
		sequences: deps.Sequences,
		users:     deps.Users,
		evaluator: e.Evaluator,
		processor: e.Processor,
		settings:  settings,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		tracer:    tracer,
		now:       clock,
	}
	return e, nil
}

// Settings returns the effective settings.
func (e *Engine) Settings() Settings { return e.settings }

// RunOnce runs one sweep.
func (e *Engine) RunOnce(ctx context.Context) (SweepReport, error) {
	return e.Sweeper.RunOnce(ctx)
}

// RecordEvent appends a funnel event for a known user. A checkout_completed
// event cancels any active sequence; a pricing_viewed event from a
// free-tier user schedules an eligibility check after the trigger delay.
func (e *Engine) RecordEvent(ctx context.Context, userID string, kind domain.EventKind, plan *string, metadata map[string]any) (*domain.BehaviorEvent, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	user, err := e.deps.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ev := &domain.BehaviorEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Plan:      plan,
		Metadata:  metadata,
		Timestamp: now,
	}
	if err := e.deps.Events.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	switch kind {
	case domain.EventCheckoutCompleted:
		if _, err := e.OnConversion(ctx, userID); err != nil {
			return ev, err
		}
	case domain.EventPricingViewed:
		if !user.IsFree() {
			break
		}
		check := &domain.PendingCheck{
			ID:        uuid.New().String(),
			UserID:    userID,
			DueAt:     now.Add(e.settings.TriggerAfter),
			Status:    domain.CheckPending,
			CreatedAt: now,
		}
		if err := e.deps.Pending.Enqueue(ctx, check); err != nil {
			return ev, fmt.Errorf("enqueue check: %w", err)
		}
		logger.Debug("pending check scheduled", "user_id", userID, "due_at", check.DueAt)
	}
	return ev, nil
}

// OnConversion cancels the user's active sequence. It reports whether a
// sequence was cancelled.
func (e *Engine) OnConversion(ctx context.Context, userID string) (bool, error) {
	return e.cancel(ctx, userID, domain.CancelConverted)
}

// OnUnsubscribe records the opt-out and cancels the active sequence.
func (e *Engine) OnUnsubscribe(ctx context.Context, userID, reason string) (bool, error) {
	now := e.now()
	if err := e.deps.Users.SetUnsubscribed(ctx, userID, true, now, reason); err != nil {
		return false, err
	}
	logger.Info("user unsubscribed", "user_id", userID, "reason", reason)
	return e.cancel(ctx, userID, domain.CancelUnsubscribed)
}

// Resubscribe clears the opt-out flag. It does not start a sequence.
func (e *Engine) Resubscribe(ctx context.Context, userID string) error {
	if err := e.deps.Users.SetUnsubscribed(ctx, userID, false, time.Time{}, ""); err != nil {
		return err
	}
	logger.Info("user resubscribed", "user_id", userID)
	return nil
}

func (e *Engine) cancel(ctx context.Context, userID string, reason domain.CancelReason) (bool, error) {
	now := e.now()
	seq, err := e.deps.Sequences.Cancel(ctx, userID, reason, now)
	if err != nil {
		return false, fmt.Errorf("cancel sequence: %w", err)
	}
	if seq == nil {
		return false, nil
	}
	notifyCancelled(ctx, e.deps.Notifier, e.deps.Recorder, seq, reason, now)
	return true, nil
}

// StatusReport is the per-user view of subscription and sequence state.
type StatusReport struct {
	Subscribed       bool                      `json:"subscribed"`
	UnsubscribedAt   *time.Time                `json:"unsubscribed_at"`
	ActiveSequence   bool                      `json:"active_sequence"`
	SequenceID       string                    `json:"sequence_id,omitempty"`
	CurrentStep      *int                      `json:"current_step"`
	RecentDeliveries []domain.DeliveryLogEntry `json:"recent_deliveries"`
}

// Status returns the opt-out state, the active sequence and the latest
// deliveries for a user.
func (e *Engine) Status(ctx context.Context, userID string) (*StatusReport, error) {
	user, err := e.deps.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	seq, err := e.deps.Sequences.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active sequence: %w", err)
	}
	recent, err := e.deps.Deliveries.Recent(ctx, userID, recentDeliveries)
	if err != nil {
		return nil, fmt.Errorf("recent deliveries: %w", err)
	}
	if recent == nil {
		recent = []domain.DeliveryLogEntry{}
	}

	report := &StatusReport{
		Subscribed:       !user.Unsubscribed,
		UnsubscribedAt:   user.UnsubscribedAt,
		RecentDeliveries: recent,
	}
	if seq != nil {
		step := seq.CurrentStep
		report.ActiveSequence = true
		report.SequenceID = seq.ID
		report.CurrentStep = &step
	}
	return report, nil
}

// AbandonmentReport tells the frontend whether to show a reminder banner.
type AbandonmentReport struct {
	IsAbandoned        bool `json:"is_abandoned"`
	HasViewedPricing   bool `json:"has_viewed_pricing"`
	HasConverted       bool `json:"has_converted"`
	InDripCampaign     bool `json:"in_drip_campaign"`
	ShowReminderBanner bool `json:"show_reminder_banner"`
}

// AbandonmentStatus reports whether the user looked at pricing without
// converting. The banner is shown only while no sequence is running.
func (e *Engine) AbandonmentStatus(ctx context.Context, userID string) (*AbandonmentReport, error) {
	user, err := e.deps.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	viewed, err := e.deps.Events.Latest(ctx, userID, domain.EventPricingViewed)
	if err != nil {
		return nil, fmt.Errorf("latest pricing view: %w", err)
	}
	converted, err := e.deps.Events.Latest(ctx, userID, domain.EventCheckoutCompleted)
	if err != nil {
		return nil, fmt.Errorf("latest checkout: %w", err)
	}
	seq, err := e.deps.Sequences.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active sequence: %w", err)
	}

	r := &AbandonmentReport{
		HasViewedPricing: viewed != nil,
		HasConverted:     converted != nil,
		InDripCampaign:   seq != nil,
	}
	r.IsAbandoned = r.HasViewedPricing && !r.HasConverted && user.IsFree()
	r.ShowReminderBanner = r.IsAbandoned && !r.InDripCampaign
	return r, nil
}

// SendTemplate delivers a one-off template outside any sequence and logs
// it with an empty sequence id. Unknown templates fall back like any other
// render.
func (e *Engine) SendTemplate(ctx context.Context, userID, template, queuedBy string) (*domain.DeliveryLogEntry, error) {
	user, err := e.deps.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Unsubscribed {
		return nil, ErrUnsubscribed
	}

	result := e.Processor.deliver(ctx, user, template)
	e.deps.Recorder.ObserveDelivery(template, result.Status)

	entry := &domain.DeliveryLogEntry{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		Template:   template,
		Step:       0,
		Outcome:    result.Status,
		ProviderID: result.ID,
		Mode:       result.Mode,
		QueuedBy:   queuedBy,
		SentAt:     e.now(),
	}
	if result.Status != domain.OutcomeSuccess {
		entry.Error = result.Message
	}
	if err := e.deps.Deliveries.Append(ctx, entry); err != nil {
		return entry, fmt.Errorf("append delivery log: %w", err)
	}
	logger.Info("one-off email sent", "user_id", user.ID, "template", template, "queued_by", queuedBy, "status", string(result.Status))
	return entry, nil
}
