// Package worker drives the drip sweep on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postify/drip-engine/internal/pkg/distlock"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"github.com/postify/drip-engine/internal/service/drip"
)

// SweepLeaseKey names the lease shared by every runner.
const SweepLeaseKey = "drip:sweep"

var (
	// ErrSweepBusy means a sweep is already running in this process.
	ErrSweepBusy = errors.New("worker: sweep already in progress")
	// ErrLeaseHeld means another process holds the sweep lease.
	ErrLeaseHeld = errors.New("worker: sweep lease held elsewhere")
)

// Sweeper runs one sweep pass. *drip.Engine satisfies it.
type Sweeper interface {
	RunOnce(ctx context.Context) (drip.SweepReport, error)
}

// LeaseObserver is told about ticks skipped for the lease.
type LeaseObserver interface {
	ObserveLeaseSkip()
}

type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// SweepRunner calls the sweeper every interval. At most one sweep runs per
// process, and across processes only the lease holder sweeps.
type SweepRunner struct {
	sweeper      Sweeper
	lock         distlock.DistLock
	interval     time.Duration
	startupDelay time.Duration
	leaseTTL     time.Duration
	observer     LeaseObserver

	inFlight atomic.Bool
	runs     int64
	skips    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// RunnerConfig holds the timings of a SweepRunner.
type RunnerConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	LeaseTTL     time.Duration
}

// NewSweepRunner creates a runner. A nil lock disables the cross-process
// lease; a nil observer is allowed.
func NewSweepRunner(sweeper Sweeper, lock distlock.DistLock, cfg RunnerConfig, observer LeaseObserver) *SweepRunner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &SweepRunner{
		sweeper:      sweeper,
		lock:         lock,
		interval:     cfg.Interval,
		startupDelay: cfg.StartupDelay,
		leaseTTL:     cfg.LeaseTTL,
		observer:     observer,
	}
}

// Start begins the ticker loop.
func (r *SweepRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("sweep runner already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())

	log.Printf("[SweepRunner] Starting with interval %v (startup delay %v)", r.interval, r.startupDelay)
	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (r *SweepRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	log.Printf("[SweepRunner] Stopping...")
	r.cancel()
	r.wg.Wait()
	log.Printf("[SweepRunner] Stopped. Sweeps: %d, lease skips: %d",
		atomic.LoadInt64(&r.runs), atomic.LoadInt64(&r.skips))
}

func (r *SweepRunner) loop() {
	defer r.wg.Done()

	if r.startupDelay > 0 {
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(r.startupDelay):
		}
	}
	r.tick()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *SweepRunner) tick() {
	_, err := r.RunNow(r.ctx)
	switch {
	case err == nil, errors.Is(err, ErrSweepBusy), errors.Is(err, ErrLeaseHeld):
	case errors.Is(err, context.Canceled):
	default:
		logger.Error("drip sweep failed", "error", err)
	}
}

// RunNow sweeps immediately if neither this process nor another one is
// already sweeping. The admin endpoint and the ticker share it.
func (r *SweepRunner) RunNow(ctx context.Context) (drip.SweepReport, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return drip.SweepReport{}, ErrSweepBusy
	}
	defer r.inFlight.Store(false)

	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			return drip.SweepReport{}, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			atomic.AddInt64(&r.skips, 1)
			if r.observer != nil {
				r.observer.ObserveLeaseSkip()
			}
			logger.Debug("sweep lease held elsewhere, skipping tick")
			return drip.SweepReport{}, ErrLeaseHeld
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.lock.Release(releaseCtx); err != nil {
				logger.Warn("release sweep lease", "error", err)
			}
		}()
	}

	sweepCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	if ext, ok := r.lock.(extender); ok && r.leaseTTL > 0 {
		go r.heartbeat(sweepCtx, ext, stopHeartbeat)
	}

	atomic.AddInt64(&r.runs, 1)
	return r.sweeper.RunOnce(sweepCtx)
}

// heartbeat keeps a TTL lease alive while a long sweep runs. Losing the
// lease cancels the sweep; claims keep the partial pass safe.
func (r *SweepRunner) heartbeat(ctx context.Context, ext extender, lost context.CancelFunc) {
	ticker := time.NewTicker(r.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ext.Extend(ctx, r.leaseTTL); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("sweep lease lost", "error", err)
				lost()
				return
			}
		}
	}
}

// Stats returns the number of sweeps run and ticks skipped for the lease.
func (r *SweepRunner) Stats() (runs, skips int64) {
	return atomic.LoadInt64(&r.runs), atomic.LoadInt64(&r.skips)
}
