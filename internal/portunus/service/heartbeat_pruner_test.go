package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// HeartbeatService
// ═══════════════════════════════════════════════════════════════════════════

func TestHeartbeat_KnownAndUnknownReaders(t *testing.T) {
	hs := memory.New()
	ds := memory.NewDeviceStore([]string{"SIM-READER-001"})
	svc := service.NewHeartbeatService(hs, service.NewDeviceRegistry(ds), nil, nil)
	ctx := context.Background()

	resp, err := svc.Record(ctx, types.HeartbeatRequest{DeviceID: " SIM-READER-001 ", FirmwareVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !resp.OK || !resp.Known || resp.DeviceID != "SIM-READER-001" {
		t.Errorf("resp = %+v", resp)
	}
	if _, ok := ds.LastSeen("SIM-READER-001"); !ok {
		t.Error("expected last_seen to be recorded")
	}

	resp, err = svc.Record(ctx, types.HeartbeatRequest{DeviceID: "rogue"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if resp.Known {
		t.Error("rogue reader reported as known")
	}
	if hs.Len() != 2 {
		t.Errorf("stored %d heartbeats, want 2", hs.Len())
	}
}

func TestHeartbeat_RequiresDeviceID(t *testing.T) {
	svc := service.NewHeartbeatService(memory.New(), service.NewDeviceRegistry(memory.NewDeviceStore(nil)), nil, nil)
	if _, err := svc.Record(context.Background(), types.HeartbeatRequest{}); !errors.Is(err, service.ErrInvalidDeviceID) {
		t.Errorf("err = %v, want ErrInvalidDeviceID", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// HeartbeatPruner
// ═══════════════════════════════════════════════════════════════════════════

func TestHeartbeatPruner_DisabledWhenRetentionZero(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	pruner := service.NewHeartbeatPruner(memory.New(), service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop should return immediately.
	pruner.Stop()
}

func TestHeartbeatPruner_PrunesOldRecords(t *testing.T) {
	ms := memory.New()
	ctx := context.Background()

	old := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -40),
		Request:    types.HeartbeatRequest{DeviceID: "reader-old"},
	}
	if err := ms.UpsertHeartbeat(ctx, "reader-old", old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	recent := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -1),
		Request:    types.HeartbeatRequest{DeviceID: "reader-recent"},
	}
	if err := ms.UpsertHeartbeat(ctx, "reader-recent", recent); err != nil {
		t.Fatalf("insert recent: %v", err)
	}

	log, hook := logtest.NewNullLogger()
	pruner := service.NewHeartbeatPruner(ms, service.PrunerConfig{RetentionDays: 30}, log)

	if deleted := pruner.PruneOnce(ctx); deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}
	if _, ok := ms.Last("reader-recent"); !ok {
		t.Error("recent heartbeat was pruned")
	}
	if hook.LastEntry() == nil || hook.LastEntry().Data["deleted"] != int64(1) {
		t.Errorf("expected prune to be logged, got %+v", hook.LastEntry())
	}
}

func TestHeartbeatPruner_StopIsIdempotent(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	pruner := service.NewHeartbeatPruner(memory.New(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	pruner.Stop()
	pruner.Stop()
}
