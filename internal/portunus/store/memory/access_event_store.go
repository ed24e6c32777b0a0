package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// AccessEventStore is an in-memory append-only log of access events.  One
// mutex serializes every append, which is trivially per-subject atomic.
type AccessEventStore struct {
	mu     sync.RWMutex
	events []types.AccessEvent
}

func NewAccessEventStore() *AccessEventStore {
	return &AccessEventStore{}
}

func (s *AccessEventStore) AppendResolved(_ context.Context, subjectID string, fn store.ResolveFunc) (types.AccessEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var h store.SubjectHistory
	if subjectID != "" {
		h = s.historyLocked(subjectID)
	}

	ev, err := fn(h)
	if err != nil {
		return types.AccessEvent{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.DeviceID == "" {
		ev.DeviceID = "default"
	}
	ev.SubjectID = subjectID
	ev.OccurredAt = store.ClampOccurredAt(ev.OccurredAt, h.LastOccurredAt)

	s.events = append(s.events, ev)
	return ev, nil
}

func (s *AccessEventStore) historyLocked(subjectID string) store.SubjectHistory {
	var h store.SubjectHistory
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.SubjectID != subjectID {
			continue
		}
		if h.LastOccurredAt.IsZero() {
			h.LastOccurredAt = ev.OccurredAt
		}
		if ev.Outcome == types.OutcomeGranted {
			h.LastGranted = &ev
			break
		}
	}
	return h
}

func (s *AccessEventStore) Latest(_ context.Context, subjectID string) (types.AccessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].SubjectID == subjectID {
			return s.events[i], nil
		}
	}
	return types.AccessEvent{}, fmt.Errorf("Latest %s: %w", subjectID, store.ErrNotFound)
}

func (s *AccessEventStore) List(_ context.Context, f store.EventFilter) ([]types.AccessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.NormalizedLimit()
	skip := f.Offset
	out := make([]types.AccessEvent, 0)

	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := s.events[i]
		if !matches(ev, f) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func matches(ev types.AccessEvent, f store.EventFilter) bool {
	switch {
	case f.SubjectID != "" && ev.SubjectID != f.SubjectID:
		return false
	case f.DeviceID != "" && ev.DeviceID != f.DeviceID:
		return false
	case f.Direction != "" && ev.Direction != f.Direction:
		return false
	case f.Outcome != "" && ev.Outcome != f.Outcome:
		return false
	case !f.From.IsZero() && ev.OccurredAt.Before(f.From):
		return false
	case !f.To.IsZero() && !ev.OccurredAt.Before(f.To):
		return false
	}
	return true
}

// Events returns a copy of all recorded events in append order.
func (s *AccessEventStore) Events() []types.AccessEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}
