package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/service/drip"
)

// SequenceStore keeps drip sequences in a map keyed by id.
type SequenceStore struct {
	mu   sync.Mutex
	seqs map[string]*domain.DripSequence
}

// NewSequenceStore creates an empty store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{seqs: make(map[string]*domain.DripSequence)}
}

func (s *SequenceStore) Create(_ context.Context, seq *domain.DripSequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq.Status == domain.SequenceActive {
		for _, existing := range s.seqs {
			if existing.UserID == seq.UserID && existing.Status == domain.SequenceActive {
				return drip.ErrActiveSequenceExists
			}
		}
	}
	cp := *seq
	s.seqs[seq.ID] = &cp
	return nil
}

func (s *SequenceStore) Get(_ context.Context, id string) (*domain.DripSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[id]
	if !ok {
		return nil, drip.ErrNotFound
	}
	cp := *seq
	return &cp, nil
}

func (s *SequenceStore) Active(_ context.Context, userID string) (*domain.DripSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq := s.activeLocked(userID); seq != nil {
		cp := *seq
		return &cp, nil
	}
	return nil, nil
}

func (s *SequenceStore) activeLocked(userID string) *domain.DripSequence {
	for _, seq := range s.seqs {
		if seq.UserID == userID && seq.Status == domain.SequenceActive {
			return seq
		}
	}
	return nil
}

func (s *SequenceStore) Latest(_ context.Context, userID string) (*domain.DripSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.DripSequence
	for _, seq := range s.seqs {
		if seq.UserID != userID {
			continue
		}
		if latest == nil || seq.CreatedAt.After(latest.CreatedAt) {
			latest = seq
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *SequenceStore) ListActive(_ context.Context, limit int) ([]domain.DripSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DripSequence
	for _, seq := range s.seqs {
		if seq.Status == domain.SequenceActive {
			out = append(out, *seq)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextDueAt.Equal(out[j].NextDueAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextDueAt.Before(out[j].NextDueAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SequenceStore) Claim(_ context.Context, id string, step int, now, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[id]
	if !ok || seq.Status != domain.SequenceActive || seq.CurrentStep != step || seq.NextDueAt.After(now) {
		return false, nil
	}
	seq.NextDueAt = until
	return true, nil
}

func (s *SequenceStore) Update(_ context.Context, id string, fromStep int, u drip.StepUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[id]
	if !ok || seq.Status != domain.SequenceActive || seq.CurrentStep != fromStep {
		return false, nil
	}
	seq.Status = u.Status
	seq.CurrentStep = u.CurrentStep
	seq.NextDueAt = u.NextDueAt
	seq.Attempts = u.Attempts
	if u.LastSentAt != nil {
		t := *u.LastSentAt
		seq.LastSentAt = &t
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		seq.CompletedAt = &t
	}
	return true, nil
}

func (s *SequenceStore) Cancel(_ context.Context, userID string, reason domain.CancelReason, at time.Time) (*domain.DripSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.activeLocked(userID)
	if seq == nil {
		return nil, nil
	}
	seq.Status = domain.SequenceCancelled
	seq.CancelReason = reason
	t := at
	seq.CancelledAt = &t
	cp := *seq
	return &cp, nil
}

// All returns every stored sequence, oldest first.
func (s *SequenceStore) All() []domain.DripSequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DripSequence, 0, len(s.seqs))
	for _, seq := range s.seqs {
		out = append(out, *seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
