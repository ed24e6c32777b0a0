package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

func TestNextDirection(t *testing.T) {
	entry := types.AccessEvent{Direction: types.DirectionEntry, Outcome: types.OutcomeGranted}
	exit := types.AccessEvent{Direction: types.DirectionExit, Outcome: types.OutcomeGranted}

	cases := []struct {
		name string
		h    store.SubjectHistory
		want types.Direction
	}{
		{"no history", store.SubjectHistory{}, types.DirectionEntry},
		{"last entry", store.SubjectHistory{LastGranted: &entry}, types.DirectionExit},
		{"last exit", store.SubjectHistory{LastGranted: &exit}, types.DirectionEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := service.NextDirection(tc.h); got != tc.want {
				t.Errorf("NextDirection = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolve_DeniedDoesNotAdvance(t *testing.T) {
	es := memory.NewAccessEventStore()
	r := service.NewResolver(es)
	ctx := context.Background()

	steps := []struct {
		outcome types.Outcome
		want    types.Direction
	}{
		{types.OutcomeGranted, types.DirectionEntry},
		{types.OutcomeDenied, types.DirectionExit},
		{types.OutcomeDenied, types.DirectionExit},
		{types.OutcomeGranted, types.DirectionExit},
		{types.OutcomeGranted, types.DirectionEntry},
	}
	for i, s := range steps {
		ev, err := r.Resolve(ctx, "alice", "front", s.outcome)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Direction != s.want {
			t.Errorf("step %d: direction = %s, want %s", i, ev.Direction, s.want)
		}
		if ev.Outcome != s.outcome {
			t.Errorf("step %d: outcome = %s", i, ev.Outcome)
		}
	}
}

func TestResolve_SubjectsAreIndependent(t *testing.T) {
	r := service.NewResolver(memory.NewAccessEventStore())
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "alice", "front", types.OutcomeGranted); err != nil {
		t.Fatal(err)
	}
	ev, err := r.Resolve(ctx, "bob", "front", types.OutcomeGranted)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Direction != types.DirectionEntry {
		t.Errorf("bob direction = %s, want entry", ev.Direction)
	}
}

func TestResolve_UnidentifiedAlwaysEntry(t *testing.T) {
	r := service.NewResolver(memory.NewAccessEventStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev, err := r.Resolve(ctx, "", "front", types.OutcomeDenied)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Direction != types.DirectionEntry || ev.SubjectID != "" {
			t.Errorf("attempt %d: %+v", i, ev)
		}
	}
}

func TestResolve_DefaultsDeviceAndRejectsBadOutcome(t *testing.T) {
	r := service.NewResolver(memory.NewAccessEventStore())

	ev, err := r.Resolve(context.Background(), "alice", "  ", types.OutcomeGranted)
	if err != nil {
		t.Fatal(err)
	}
	if ev.DeviceID != "default" {
		t.Errorf("device_id = %q, want default", ev.DeviceID)
	}

	_, err = r.Resolve(context.Background(), "alice", "front", types.Outcome("maybe"))
	if !errors.Is(err, service.ErrInvalidOutcome) {
		t.Errorf("err = %v, want ErrInvalidOutcome", err)
	}
}
