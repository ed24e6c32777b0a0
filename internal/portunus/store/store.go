// Package store declares the persistence boundaries of the server.  Each
// interface has an in-memory, a SQLite and (for enrollments and access
// events) a Postgres implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var (
	// ErrStorage marks any failure of the backing store.  Implementations
	// wrap the driver error alongside it.
	ErrStorage = errors.New("storage failure")

	ErrNotFound = errors.New("not found")
)

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

type HeartbeatStore interface {
	UpsertHeartbeat(ctx context.Context, deviceID string, rec HeartbeatRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
