package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var t0 = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func newEventStore(t *testing.T) *sqlitestore.AccessEventStore {
	t.Helper()
	conn := openTestDB(t)
	return sqlitestore.NewAccessEventStore(conn, newTestWriter(t, conn))
}

func mustAppend(t *testing.T, s *sqlitestore.AccessEventStore, subject string, dir types.Direction, out types.Outcome, device string, at time.Time) types.AccessEvent {
	t.Helper()
	ev, err := s.AppendResolved(context.Background(), subject, func(store.SubjectHistory) (types.AccessEvent, error) {
		return types.AccessEvent{Direction: dir, Outcome: out, DeviceID: device, OccurredAt: at}, nil
	})
	if err != nil {
		t.Fatalf("AppendResolved: %v", err)
	}
	return ev
}

// ═══════════════════════════════════════════════════════════════════════════
// AppendResolved
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_AppendResolved_History(t *testing.T) {
	s := newEventStore(t)

	mustAppend(t, s, "u-1", types.DirectionEntry, types.OutcomeGranted, "front", t0)
	mustAppend(t, s, "u-1", types.DirectionExit, types.OutcomeDenied, "front", t0.Add(time.Minute))

	var seen store.SubjectHistory
	ev, err := s.AppendResolved(context.Background(), "u-1", func(h store.SubjectHistory) (types.AccessEvent, error) {
		seen = h
		return types.AccessEvent{Direction: types.DirectionExit, Outcome: types.OutcomeGranted, OccurredAt: t0}, nil
	})
	if err != nil {
		t.Fatalf("AppendResolved: %v", err)
	}

	if seen.LastGranted == nil || seen.LastGranted.Direction != types.DirectionEntry {
		t.Errorf("expected last granted entry, got %+v", seen.LastGranted)
	}
	if !seen.LastOccurredAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected last occurred %v, got %v", t0.Add(time.Minute), seen.LastOccurredAt)
	}
	if !ev.OccurredAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected clamped occurred_at, got %v", ev.OccurredAt)
	}
	if ev.ID == "" || ev.DeviceID != "default" {
		t.Errorf("expected generated id and default device, got %+v", ev)
	}
}

func TestAccessEventStore_AppendResolved_ResolveErrorUnwrapped(t *testing.T) {
	s := newEventStore(t)
	boom := errors.New("boom")

	_, err := s.AppendResolved(context.Background(), "u-1", func(store.SubjectHistory) (types.AccessEvent, error) {
		return types.AccessEvent{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if errors.Is(err, store.ErrStorage) {
		t.Error("resolve failure must not be reported as storage failure")
	}
}

func TestAccessEventStore_AppendResolved_ConstraintIsStorageError(t *testing.T) {
	s := newEventStore(t)

	_, err := s.AppendResolved(context.Background(), "u-1", func(store.SubjectHistory) (types.AccessEvent, error) {
		return types.AccessEvent{Direction: "sideways", Outcome: types.OutcomeGranted}, nil
	})
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestAccessEventStore_AppendResolved_ConcurrentAlternation(t *testing.T) {
	s := newEventStore(t)
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendResolved(context.Background(), "u-1", func(h store.SubjectHistory) (types.AccessEvent, error) {
				dir := types.DirectionEntry
				if h.LastGranted != nil && h.LastGranted.Direction == types.DirectionEntry {
					dir = types.DirectionExit
				}
				return types.AccessEvent{Direction: dir, Outcome: types.OutcomeGranted, OccurredAt: t0}, nil
			})
			if err != nil {
				t.Errorf("AppendResolved: %v", err)
			}
		}()
	}
	wg.Wait()

	events, err := s.List(context.Background(), store.EventFilter{SubjectID: "u-1", Limit: n})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	// Newest first: the last append is an exit since n is even.
	for i, ev := range events {
		want := types.DirectionExit
		if i%2 == 1 {
			want = types.DirectionEntry
		}
		if ev.Direction != want {
			t.Errorf("event %d: expected %s, got %s", i, want, ev.Direction)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Queries
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_ListAndLatest(t *testing.T) {
	s := newEventStore(t)
	ctx := context.Background()

	mustAppend(t, s, "u-1", types.DirectionEntry, types.OutcomeGranted, "front", t0)
	mustAppend(t, s, "u-2", types.DirectionEntry, types.OutcomeGranted, "back", t0.Add(time.Minute))
	mustAppend(t, s, "u-1", types.DirectionExit, types.OutcomeGranted, "front", t0.Add(2*time.Minute))
	mustAppend(t, s, "", types.DirectionEntry, types.OutcomeDenied, "front", t0.Add(3*time.Minute))

	denied, err := s.List(ctx, store.EventFilter{Outcome: types.OutcomeDenied})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(denied) != 1 || denied[0].SubjectID != "" {
		t.Errorf("expected the single unidentified denial, got %+v", denied)
	}

	window, err := s.List(ctx, store.EventFilter{DeviceID: "front", From: t0.Add(time.Second), To: t0.Add(3 * time.Minute)})
	if err != nil {
		t.Fatalf("List window: %v", err)
	}
	if len(window) != 1 || window[0].Direction != types.DirectionExit {
		t.Errorf("expected one exit in window, got %+v", window)
	}

	page, err := s.List(ctx, store.EventFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 2 || !page[0].OccurredAt.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("unexpected page %+v", page)
	}

	latest, err := s.Latest(ctx, "u-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Direction != types.DirectionExit {
		t.Errorf("expected latest exit, got %s", latest.Direction)
	}
	if _, err := s.Latest(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	for device, want := range map[string]int{"front": 3, "back": 1} {
		got, err := s.List(ctx, store.EventFilter{DeviceID: device})
		if err != nil {
			t.Fatalf("List %s: %v", device, err)
		}
		if len(got) != want {
			t.Errorf("device %s: expected %d events, got %d", device, want, len(got))
		}
	}
}
