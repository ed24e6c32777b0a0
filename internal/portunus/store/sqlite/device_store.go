package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/biogate/internal/db"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

// IsKnown treats a reader as known when it is commissioned, enabled and
// not revoked.
func (s *DeviceStore) IsKnown(ctx context.Context, readerID string) (bool, error) {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return false, nil
	}

	var (
		enabled      int
		commissioned sql.NullInt64
		revoked      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT enabled, commissioned_at_ms, revoked_at_ms
FROM readers
WHERE reader_id = ?;
`, readerID).Scan(&enabled, &commissioned, &revoked)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("IsKnown", err)
	}

	return enabled == 1 && commissioned.Valid && !revoked.Valid, nil
}

// MarkSeen records contact from readerID, creating a disabled row for a
// reader never seen before.
func (s *DeviceStore) MarkSeen(ctx context.Context, readerID string, _ bool, t time.Time) error {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := toMs(t)

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureReader(ctx, tx, readerID, ms); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
UPDATE readers
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE reader_id = ?;
`, ms, ms, readerID)
		return err
	})
	if err != nil {
		return storageErr("MarkSeen", err)
	}
	return nil
}
