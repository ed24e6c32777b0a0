package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// SubjectHistory is what the resolver needs to know about a subject's past
// events.  It is read under the same per-subject lock as the insert.
type SubjectHistory struct {
	LastGranted    *types.AccessEvent
	LastOccurredAt time.Time
}

// ResolveFunc builds the event to append from the subject's history.  An
// error aborts the append and is returned unchanged.
type ResolveFunc func(h SubjectHistory) (types.AccessEvent, error)

// EventFilter selects access events for List.  Zero fields do not filter.
// From is inclusive, To exclusive.
type EventFilter struct {
	SubjectID string
	DeviceID  string
	Direction types.Direction
	Outcome   types.Outcome
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// NormalizedLimit clamps Limit into (0, MaxListLimit].
func (f EventFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// AccessEventStore is the append-only audit log.
type AccessEventStore interface {
	// AppendResolved reads subjectID's history, calls fn and appends the
	// returned event, all atomically with respect to other appends for
	// the same subject.  OccurredAt is clamped so it never precedes the
	// subject's previous event.  The empty (unidentified) subject has no
	// history and is not serialized.
	AppendResolved(ctx context.Context, subjectID string, fn ResolveFunc) (types.AccessEvent, error)

	// Latest returns the most recent event of any outcome for subjectID.
	Latest(ctx context.Context, subjectID string) (types.AccessEvent, error)

	// List returns matching events newest first.
	List(ctx context.Context, f EventFilter) ([]types.AccessEvent, error)
}

// ClampOccurredAt returns t, or last when t precedes it.
func ClampOccurredAt(t, last time.Time) time.Time {
	if t.Before(last) {
		return last
	}
	return t
}
