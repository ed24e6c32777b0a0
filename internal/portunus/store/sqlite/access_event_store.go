package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portunus/biogate/internal/db"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

// resolveError carries a ResolveFunc failure out of the writer unchanged.
type resolveError struct{ err error }

func (e resolveError) Error() string { return e.err.Error() }
func (e resolveError) Unwrap() error { return e.err }

const eventColumns = `event_id, subject_id, direction, outcome, device_id, occurred_at_ms`

func scanEvent(row rowScanner) (types.AccessEvent, error) {
	var (
		ev  types.AccessEvent
		dir string
		out string
		ms  int64
	)
	if err := row.Scan(&ev.ID, &ev.SubjectID, &dir, &out, &ev.DeviceID, &ms); err != nil {
		return types.AccessEvent{}, err
	}
	ev.Direction = types.Direction(dir)
	ev.Outcome = types.Outcome(out)
	ev.OccurredAt = fromMs(ms)
	return ev, nil
}

// AppendResolved runs inside the single writer, so the history read and the
// insert cannot interleave with any other append.
func (s *AccessEventStore) AppendResolved(ctx context.Context, subjectID string, fn store.ResolveFunc) (types.AccessEvent, error) {
	var ev types.AccessEvent

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var h store.SubjectHistory
		if subjectID != "" {
			var err error
			if h, err = historyTx(ctx, tx, subjectID); err != nil {
				return err
			}
		}

		out, err := fn(h)
		if err != nil {
			return resolveError{err}
		}
		if out.ID == "" {
			out.ID = uuid.NewString()
		}
		if out.DeviceID == "" {
			out.DeviceID = "default"
		}
		out.SubjectID = subjectID
		out.OccurredAt = store.ClampOccurredAt(out.OccurredAt.UTC().Truncate(time.Millisecond), h.LastOccurredAt)

		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?);
`, out.ID, out.SubjectID, string(out.Direction), string(out.Outcome), out.DeviceID, toMs(out.OccurredAt)); err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		ev = out
		return nil
	})

	var re resolveError
	if errors.As(err, &re) {
		return types.AccessEvent{}, re.err
	}
	if err != nil {
		return types.AccessEvent{}, storageErr("AppendResolved", err)
	}
	return ev, nil
}

func historyTx(ctx context.Context, tx *sql.Tx, subjectID string) (store.SubjectHistory, error) {
	var h store.SubjectHistory

	last, err := scanEvent(tx.QueryRowContext(ctx, `
SELECT `+eventColumns+` FROM access_events
WHERE subject_id = ? AND outcome = 'granted'
ORDER BY seq DESC LIMIT 1;
`, subjectID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return h, fmt.Errorf("history last granted: %w", err)
	default:
		h.LastGranted = &last
	}

	var maxMs sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
SELECT MAX(occurred_at_ms) FROM access_events WHERE subject_id = ?;
`, subjectID).Scan(&maxMs); err != nil {
		return h, fmt.Errorf("history last occurred: %w", err)
	}
	if maxMs.Valid {
		h.LastOccurredAt = fromMs(maxMs.Int64)
	}
	return h, nil
}

func (s *AccessEventStore) Latest(ctx context.Context, subjectID string) (types.AccessEvent, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, `
SELECT `+eventColumns+` FROM access_events
WHERE subject_id = ?
ORDER BY seq DESC LIMIT 1;
`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.AccessEvent{}, fmt.Errorf("Latest %s: %w", subjectID, store.ErrNotFound)
	}
	if err != nil {
		return types.AccessEvent{}, storageErr("Latest", err)
	}
	return ev, nil
}

func whereClause(f store.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, f.SubjectID)
	}
	if f.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.Direction != "" {
		conds = append(conds, "direction = ?")
		args = append(args, string(f.Direction))
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if !f.From.IsZero() {
		conds = append(conds, "occurred_at_ms >= ?")
		args = append(args, toMs(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at_ms < ?")
		args = append(args, toMs(f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *AccessEventStore) List(ctx context.Context, f store.EventFilter) ([]types.AccessEvent, error) {
	where, args := whereClause(f)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, f.NormalizedLimit(), offset)

	rows, err := s.db.QueryContext(ctx, `
SELECT `+eventColumns+` FROM access_events
`+where+`
ORDER BY seq DESC
LIMIT ? OFFSET ?;
`, args...)
	if err != nil {
		return nil, storageErr("List", err)
	}
	defer rows.Close()

	out := make([]types.AccessEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, storageErr("List scan", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("List", err)
	}
	return out, nil
}

