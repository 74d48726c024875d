package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/postify/drip-engine/internal/domain"
)

// DeliveryLog is an append-only slice of delivery entries.
type DeliveryLog struct {
	mu      sync.Mutex
	entries []domain.DeliveryLogEntry
}

// NewDeliveryLog creates an empty log.
func NewDeliveryLog() *DeliveryLog { return &DeliveryLog{} }

func (l *DeliveryLog) Append(_ context.Context, e *domain.DeliveryLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *e)
	return nil
}

func (l *DeliveryLog) Recent(_ context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.DeliveryLogEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns every entry in append order.
func (l *DeliveryLog) Entries() []domain.DeliveryLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.DeliveryLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
