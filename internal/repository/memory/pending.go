package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/postify/drip-engine/internal/domain"
)

// PendingQueue holds pending checks in insertion order.
type PendingQueue struct {
	mu     sync.Mutex
	checks []*domain.PendingCheck
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue { return &PendingQueue{} }

func (q *PendingQueue) Enqueue(_ context.Context, c *domain.PendingCheck) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *c
	q.checks = append(q.checks, &cp)
	return nil
}

func (q *PendingQueue) ListDue(_ context.Context, now time.Time, limit int) ([]domain.PendingCheck, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.PendingCheck
	for _, c := range q.checks {
		if c.Status == domain.CheckPending && !c.DueAt.After(now) {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *PendingQueue) MarkProcessed(_ context.Context, id string, at time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.checks {
		if c.ID != id {
			continue
		}
		if c.Status != domain.CheckPending {
			return false, nil
		}
		c.Status = domain.CheckProcessed
		t := at
		c.ProcessedAt = &t
		return true, nil
	}
	return false, nil
}

// All returns a copy of every check.
func (q *PendingQueue) All() []domain.PendingCheck {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.PendingCheck, len(q.checks))
	for i, c := range q.checks {
		out[i] = *c
	}
	return out
}
