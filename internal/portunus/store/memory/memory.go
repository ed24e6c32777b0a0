// Package memory provides map-backed stores for tests and dev runs.  Data
// does not survive a restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
)

// Store keeps every reader heartbeat in arrival order.
type Store struct {
	mu   sync.RWMutex
	data []heartbeat
}

type heartbeat struct {
	deviceID string
	rec      store.HeartbeatRecord
}

func New() *Store {
	return &Store{}
}

func (s *Store) UpsertHeartbeat(_ context.Context, deviceID string, rec store.HeartbeatRecord) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, heartbeat{deviceID: deviceID, rec: rec})
	return nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	var deleted int64
	for _, hb := range s.data {
		if hb.rec.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, hb)
	}
	s.data = kept
	return deleted, nil
}

// Len reports how many heartbeats are retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Last returns the newest heartbeat from deviceID.
func (s *Store) Last(deviceID string) (store.HeartbeatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.data) - 1; i >= 0; i-- {
		if s.data[i].deviceID == deviceID {
			return s.data[i].rec, true
		}
	}
	return store.HeartbeatRecord{}, false
}
