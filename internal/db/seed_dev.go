package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// KnownReaders are commissioned alongside the default simulator.
	KnownReaders []string
	// DefaultReader is the id of the simulated reader; "SIM-READER-001"
	// when empty.
	DefaultReader string
}

// SeedDev commissions the dev readers so heartbeats and verifications from
// them are accepted.  It is idempotent.
func SeedDev(ctx context.Context, conn *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	def := strings.TrimSpace(opt.DefaultReader)
	if def == "" {
		def = "SIM-READER-001"
	}

	readers := append([]string{def}, opt.KnownReaders...)
	seen := make(map[string]struct{}, len(readers))

	for _, id := range readers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		name := id
		if id == def {
			name = "Simulated Reader"
		}

		if _, err := conn.ExecContext(ctx, `
INSERT INTO readers(
  reader_id, display_name,
  enabled, commissioned_at_ms,
  created_at_ms, updated_at_ms
) VALUES (?, ?, 1, ?, ?, ?)
ON CONFLICT(reader_id) DO UPDATE SET
  display_name = excluded.display_name,
  enabled = 1,
  commissioned_at_ms = COALESCE(readers.commissioned_at_ms, excluded.commissioned_at_ms),
  updated_at_ms = excluded.updated_at_ms;
`, id, name, now, now, now); err != nil {
			return fmt.Errorf("seed reader %s: %w", id, err)
		}
	}

	return nil
}
