package memory

import (
	"context"
	"sync"
	"time"

	"github.com/postify/drip-engine/internal/domain"
)

// EventLog is an append-only in-memory event log.
type EventLog struct {
	mu     sync.Mutex
	events []domain.BehaviorEvent
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog { return &EventLog{} }

func (l *EventLog) Append(_ context.Context, e *domain.BehaviorEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *e)
	return nil
}

func (l *EventLog) Latest(_ context.Context, userID string, kind domain.EventKind) (*domain.BehaviorEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest *domain.BehaviorEvent
	for i := range l.events {
		e := &l.events[i]
		if e.UserID != userID || e.Kind != kind {
			continue
		}
		if latest == nil || !e.Timestamp.Before(latest.Timestamp) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (l *EventLog) ExistsAfter(_ context.Context, userID string, kind domain.EventKind, after time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.UserID == userID && e.Kind == kind && e.Timestamp.After(after) {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
