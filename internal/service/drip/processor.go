package drip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/mailing"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StepOutcome is what a call to Processor.Advance did.
type StepOutcome string

const (
	StepInactive   StepOutcome = "inactive"   // sequence is not active
	StepNotDue     StepOutcome = "not_due"    // nothing written
	StepClaimLost  StepOutcome = "claim_lost" // another runner owns the step
	StepAdvanced   StepOutcome = "advanced"
	StepRetrying   StepOutcome = "retrying"
	StepCompleted  StepOutcome = "completed" // last step sent
	StepExhausted  StepOutcome = "exhausted" // completed without sending
	StepSuperseded StepOutcome = "superseded"
)

// Sent reports whether the outcome involved a delivery attempt.
func (o StepOutcome) Sent() bool {
	switch o {
	case StepAdvanced, StepRetrying, StepCompleted, StepSuperseded:
		return true
	}
	return false
}

// Processor executes the current step of an active sequence.
type Processor struct {
	renderer   Renderer
	gateway    mailing.Gateway
	deliveries DeliveryLog
	sequences  SequenceStore
	settings   Settings
	notifier   Notifier
	recorder   Recorder
	tracer     trace.Tracer
	now        func() time.Time
}

// Advance sends the current step of seq to user if it is due, logs the
// attempt, and moves the sequence forward. A step is only sent after this
// caller wins the (sequence, step) claim, so overlapping sweeps cannot send
// it twice. The finishing write is conditional on the sequence still being
// active on the same step, so a cancellation that lands mid-send wins.
func (p *Processor) Advance(ctx context.Context, seq *domain.DripSequence, user *domain.User) (StepOutcome, error) {
	if seq.Status != domain.SequenceActive {
		return StepInactive, nil
	}

	steps := p.settings.Steps
	now := p.now()

	if seq.CurrentStep >= len(steps) {
		ok, err := p.sequences.Update(ctx, seq.ID, seq.CurrentStep, StepUpdate{
			Status:      domain.SequenceCompleted,
			CurrentStep: seq.CurrentStep,
			NextDueAt:   seq.NextDueAt,
			Attempts:    seq.Attempts,
			CompletedAt: &now,
		})
		if err != nil {
			return StepExhausted, fmt.Errorf("complete sequence: %w", err)
		}
		if !ok {
			return StepInactive, nil
		}
		p.notifyCompleted(ctx, seq, now)
		return StepExhausted, nil
	}

	if !seq.IsDue(now) {
		return StepNotDue, nil
	}

	claimed, err := p.sequences.Claim(ctx, seq.ID, seq.CurrentStep, now, now.Add(p.settings.ClaimTTL))
	if err != nil {
		return StepClaimLost, fmt.Errorf("claim step: %w", err)
	}
	if !claimed {
		return StepClaimLost, nil
	}

	step := steps[seq.CurrentStep]
	ctx, span := p.tracer.Start(ctx, "drip.Processor.Advance", trace.WithAttributes(
		attribute.String("sequence.id", seq.ID),
		attribute.Int("sequence.step", seq.CurrentStep+1),
		attribute.String("step.template", step.Template),
	))
	defer span.End()

	result := p.deliver(ctx, user, step.Template)
	p.recorder.ObserveDelivery(step.Template, result.Status)

	entry := &domain.DeliveryLogEntry{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		Template:   step.Template,
		Step:       seq.CurrentStep + 1,
		SequenceID: seq.ID,
		Outcome:    result.Status,
		ProviderID: result.ID,
		Mode:       result.Mode,
		SentAt:     now,
	}
	if result.Status != domain.OutcomeSuccess {
		entry.Error = result.Message
		span.SetStatus(codes.Error, result.Message)
	}
	logErr := p.deliveries.Append(ctx, entry)
	if logErr != nil {
		logger.Error("delivery log append failed", "sequence_id", seq.ID, "step", entry.Step, "error", logErr)
		span.RecordError(logErr)
	}

	outcome, err := p.finish(ctx, seq, result.Status, now)
	span.SetAttributes(attribute.String("step.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		return outcome, err
	}

	logger.Info("drip step processed",
		"sequence_id", seq.ID,
		"user_id", user.ID,
		"step", entry.Step,
		"template", step.Template,
		"status", string(result.Status),
		"outcome", string(outcome),
	)
	p.notifier.Notify(ctx, domain.LifecycleEvent{
		Type:       domain.LifecycleStepSent,
		SequenceID: seq.ID,
		UserID:     user.ID,
		Step:       entry.Step,
		Template:   step.Template,
		Outcome:    result.Status,
		At:         now,
	})
	if outcome == StepCompleted {
		p.notifyCompleted(ctx, seq, now)
	}

	if logErr != nil {
		return outcome, fmt.Errorf("append delivery log: %w", logErr)
	}
	return outcome, nil
}

// deliver renders and sends one template, folding every failure into an
// error result.
func (p *Processor) deliver(ctx context.Context, user *domain.User, template string) domain.DeliveryResult {
	msg, err := p.renderer.Render(template, user.Locale, user.FirstName())
	if err != nil {
		return domain.DeliveryResult{Status: domain.OutcomeError, Mode: mailing.ModeOf(p.gateway), Message: err.Error()}
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.settings.DeliveryTimeout)
	defer cancel()

	done := make(chan domain.DeliveryResult, 1)
	go func() {
		done <- p.gateway.Deliver(sendCtx, user.Email, msg.Subject, msg.Body)
	}()

	select {
	case res := <-done:
		return res
	case <-sendCtx.Done():
		return domain.DeliveryResult{
			Status:  domain.OutcomeError,
			Mode:    mailing.ModeOf(p.gateway),
			Message: fmt.Sprintf("delivery timed out: %v", sendCtx.Err()),
		}
	}
}

func (p *Processor) finish(ctx context.Context, seq *domain.DripSequence, status domain.DeliveryOutcome, now time.Time) (StepOutcome, error) {
	steps := p.settings.Steps
	policy := p.settings.Policy

	if status != domain.OutcomeSuccess && policy.shouldRetry(seq.Attempts) {
		ok, err := p.sequences.Update(ctx, seq.ID, seq.CurrentStep, StepUpdate{
			Status:      domain.SequenceActive,
			CurrentStep: seq.CurrentStep,
			NextDueAt:   now.Add(policy.RetryDelay),
			Attempts:    seq.Attempts + 1,
		})
		return updated(StepRetrying, ok, err)
	}

	next := seq.CurrentStep + 1
	if next < len(steps) {
		ok, err := p.sequences.Update(ctx, seq.ID, seq.CurrentStep, StepUpdate{
			Status:      domain.SequenceActive,
			CurrentStep: next,
			NextDueAt:   now.Add(steps[next].Delay()),
			LastSentAt:  &now,
		})
		return updated(StepAdvanced, ok, err)
	}

	ok, err := p.sequences.Update(ctx, seq.ID, seq.CurrentStep, StepUpdate{
		Status:      domain.SequenceCompleted,
		CurrentStep: next,
		NextDueAt:   now,
		LastSentAt:  &now,
		CompletedAt: &now,
	})
	return updated(StepCompleted, ok, err)
}

func updated(outcome StepOutcome, ok bool, err error) (StepOutcome, error) {
	if err != nil {
		return outcome, fmt.Errorf("update sequence: %w", err)
	}
	if !ok {
		return StepSuperseded, nil
	}
	return outcome, nil
}

func (p *Processor) notifyCompleted(ctx context.Context, seq *domain.DripSequence, now time.Time) {
	logger.Info("drip sequence completed", "sequence_id", seq.ID, "user_id", seq.UserID)
	p.notifier.Notify(ctx, domain.LifecycleEvent{
		Type:       domain.LifecycleCompleted,
		SequenceID: seq.ID,
		UserID:     seq.UserID,
		At:         now,
	})
}
