package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/codec"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
)

// ensureReader guarantees a readers row exists for readerID so foreign keys
// from reader_heartbeats hold.  New rows start disabled and uncommissioned.
//
// Must be called inside an existing transaction.
func ensureReader(ctx context.Context, tx *sql.Tx, readerID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO readers(
  reader_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, readerID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureReader %s: %w", readerID, err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrStorage, err)
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMs(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// decodeCiphertext returns the stored bytes.  A corrupt encoding is passed
// through raw so the matching engine rejects (and logs) it like any other
// undecryptable record.
func decodeCiphertext(s string) []byte {
	b, err := codec.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return b
}
