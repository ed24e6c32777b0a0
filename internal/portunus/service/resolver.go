package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var ErrInvalidOutcome = errors.New("outcome must be granted or denied")

// Resolver turns an attempt outcome into an access event, deriving the
// direction from the subject's granted history.
type Resolver struct {
	events store.AccessEventStore
	now    func() time.Time
}

func NewResolver(es store.AccessEventStore) *Resolver {
	return &Resolver{events: es, now: time.Now}
}

// NextDirection is entry when the subject has no granted event or was last
// granted exit, and exit when last granted entry.
func NextDirection(h store.SubjectHistory) types.Direction {
	if h.LastGranted != nil && h.LastGranted.Direction == types.DirectionEntry {
		return types.DirectionExit
	}
	return types.DirectionEntry
}

// Resolve records one event for subjectID.  An empty subjectID is an
// unidentified probe and always resolves to entry.  Denied events carry
// the direction that would have applied without advancing the alternation.
func (r *Resolver) Resolve(ctx context.Context, subjectID, deviceID string, outcome types.Outcome) (types.AccessEvent, error) {
	if !outcome.Valid() {
		return types.AccessEvent{}, fmt.Errorf("Resolve: %w: %q", ErrInvalidOutcome, outcome)
	}

	deviceID = strings.TrimSpace(deviceID)
	occurredAt := r.now().UTC().Truncate(time.Millisecond)

	ev, err := r.events.AppendResolved(ctx, subjectID, func(h store.SubjectHistory) (types.AccessEvent, error) {
		dir := types.DirectionEntry
		if subjectID != "" {
			dir = NextDirection(h)
		}
		return types.AccessEvent{
			SubjectID:  subjectID,
			DeviceID:   deviceID,
			Direction:  dir,
			Outcome:    outcome,
			OccurredAt: occurredAt,
		}, nil
	})
	if err != nil {
		return types.AccessEvent{}, fmt.Errorf("Resolve %s: %w", subjectID, err)
	}
	return ev, nil
}
