package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/biogate/internal/db"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// UpsertHeartbeat appends a heartbeat row and refreshes the reader's
// snapshot columns.
func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, readerID string, rec store.HeartbeatRecord) error {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := toMs(rec.ReceivedAt)

	fw := strings.TrimSpace(rec.Request.FirmwareVersion)
	ip := strings.TrimSpace(rec.Request.IP)
	status := strings.TrimSpace(rec.Request.Status)

	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureReader(ctx, tx, readerID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO reader_heartbeats(
  reader_id, received_at_ms, uptime_ms, fw_version, status, ip
) VALUES (?, ?, ?, ?, ?, ?);
`, readerID, recvMs, uptimeMs, fw, status, ip); err != nil {
			return fmt.Errorf("insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE readers
SET last_seen_at_ms = ?,
    last_ip = ?,
    last_fw_version = ?,
    last_status = ?,
    updated_at_ms = ?
WHERE reader_id = ?;
`, recvMs, ip, fw, status, recvMs, readerID); err != nil {
			return fmt.Errorf("update reader snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return storageErr("UpsertHeartbeat", err)
	}
	return nil
}

// PruneOlderThan deletes heartbeat rows received before cutoff and returns
// how many went.  Reader snapshot columns are untouched.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM reader_heartbeats
WHERE received_at_ms < ?;
`, toMs(cutoff))
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, storageErr("PruneOlderThan", err)
	}
	return deleted, nil
}
