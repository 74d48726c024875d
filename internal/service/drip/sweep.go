package drip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	ChecksProcessed    int           `json:"checks_processed"`
	SequencesStarted   int           `json:"sequences_started"`
	SequencesAdvanced  int           `json:"sequences_advanced"`
	SequencesCompleted int           `json:"sequences_completed"`
	SequencesCancelled int           `json:"sequences_cancelled"`
	Failures           int           `json:"failures"`
	Duration           time.Duration `json:"duration_ns"`
}

// Sweeper runs one pass over due pending checks and active sequences.
type Sweeper struct {
	pending   PendingQueue
	sequences SequenceStore
	users     UserStore
	evaluator *Evaluator
	processor *Processor
	settings  Settings
	notifier  Notifier
	recorder  Recorder
	tracer    trace.Tracer
	now       func() time.Time
}

// RunOnce processes due pending checks, then advances active sequences.
// A failure on one item is logged and counted and the sweep moves on; the
// returned error is non-nil only when a listing query fails or ctx ends.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "drip.Sweeper.RunOnce")
	defer span.End()

	var report SweepReport
	err := s.sweep(ctx, &report)
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("sweep.checks_processed", report.ChecksProcessed),
		attribute.Int("sweep.sequences_started", report.SequencesStarted),
		attribute.Int("sweep.sequences_advanced", report.SequencesAdvanced),
		attribute.Int("sweep.failures", report.Failures),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.recorder.ObserveSweep(report)

	logger.Info("drip sweep finished",
		"checks_processed", report.ChecksProcessed,
		"sequences_started", report.SequencesStarted,
		"sequences_advanced", report.SequencesAdvanced,
		"sequences_completed", report.SequencesCompleted,
		"sequences_cancelled", report.SequencesCancelled,
		"failures", report.Failures,
		"duration", report.Duration,
	)
	return report, err
}

func (s *Sweeper) sweep(ctx context.Context, report *SweepReport) error {
	checks, err := s.pending.ListDue(ctx, s.now(), s.settings.BatchSize)
	if err != nil {
		return fmt.Errorf("list due checks: %w", err)
	}
	for i := range checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		check := checks[i]
		if err := isolate(func() error { return s.processCheck(ctx, &check, report) }); err != nil {
			report.Failures++
			logger.Error("pending check failed", "check_id", check.ID, "user_id", check.UserID, "error", err)
		}
	}

	seqs, err := s.sequences.ListActive(ctx, s.settings.BatchSize)
	if err != nil {
		return fmt.Errorf("list active sequences: %w", err)
	}
	for i := range seqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		seq := seqs[i]
		if err := isolate(func() error { return s.processSequence(ctx, &seq, report) }); err != nil {
			report.Failures++
			logger.Error("sequence step failed", "sequence_id", seq.ID, "user_id", seq.UserID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) processCheck(ctx context.Context, check *domain.PendingCheck, report *SweepReport) error {
	claimed, err := s.pending.MarkProcessed(ctx, check.ID, s.now())
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if !claimed {
		return nil
	}
	report.ChecksProcessed++

	seq, reason, err := s.evaluator.EvaluateDetailed(ctx, check.UserID)
	if err != nil {
		return err
	}
	if seq != nil {
		report.SequencesStarted++
		return nil
	}
	logger.Debug("drip eligibility rejected", "user_id", check.UserID, "reason", string(reason))
	return nil
}

func (s *Sweeper) processSequence(ctx context.Context, seq *domain.DripSequence, report *SweepReport) error {
	user, err := s.users.Get(ctx, seq.UserID)
	if errors.Is(err, ErrUserNotFound) {
		logger.Warn("drip sequence has no user, skipping", "sequence_id", seq.ID, "user_id", seq.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if user.IsPaid(s.settings.PaidPlans) {
		cancelled, err := s.sequences.Cancel(ctx, user.ID, domain.CancelConverted, s.now())
		if err != nil {
			return fmt.Errorf("cancel converted: %w", err)
		}
		if cancelled != nil {
			report.SequencesCancelled++
			notifyCancelled(ctx, s.notifier, s.recorder, cancelled, domain.CancelConverted, s.now())
		}
		return nil
	}

	outcome, err := s.processor.Advance(ctx, seq, user)
	if outcome.Sent() {
		report.SequencesAdvanced++
	}
	if outcome == StepCompleted || outcome == StepExhausted {
		report.SequencesCompleted++
	}
	return err
}

// isolate runs fn, turning a panic into an error so one bad item cannot
// stop the sweep.
func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func notifyCancelled(ctx context.Context, n Notifier, r Recorder, seq *domain.DripSequence, reason domain.CancelReason, at time.Time) {
	logger.Info("drip sequence cancelled", "sequence_id", seq.ID, "user_id", seq.UserID, "reason", string(reason))
	r.ObserveCancelled(reason)
	n.Notify(ctx, domain.LifecycleEvent{
		Type:       domain.LifecycleCancelled,
		SequenceID: seq.ID,
		UserID:     seq.UserID,
		Reason:     reason,
		At:         at,
	})
}
