package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

type AccessEventStore struct {
	pool *pgxpool.Pool
}

func NewAccessEventStore(pool *pgxpool.Pool) *AccessEventStore {
	return &AccessEventStore{pool: pool}
}

const eventColumns = `event_id, subject_id, direction, outcome, device_id, occurred_at`

func scanEvent(row pgx.Row) (types.AccessEvent, error) {
	var (
		ev       types.AccessEvent
		dir, out string
	)
	if err := row.Scan(&ev.ID, &ev.SubjectID, &dir, &out, &ev.DeviceID, &ev.OccurredAt); err != nil {
		return types.AccessEvent{}, err
	}
	ev.Direction = types.Direction(dir)
	ev.Outcome = types.Outcome(out)
	ev.OccurredAt = ev.OccurredAt.UTC()
	return ev, nil
}

// AppendResolved serializes appends per subject with a transaction-scoped
// advisory lock keyed on the subject id.
func (s *AccessEventStore) AppendResolved(ctx context.Context, subjectID string, fn store.ResolveFunc) (types.AccessEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.AccessEvent{}, storageErr("AppendResolved begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var h store.SubjectHistory
	if subjectID != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, subjectID); err != nil {
			return types.AccessEvent{}, storageErr("AppendResolved lock", err)
		}
		if h, err = history(ctx, tx, subjectID); err != nil {
			return types.AccessEvent{}, storageErr("AppendResolved history", err)
		}
	}

	ev, err := fn(h)
	if err != nil {
		return types.AccessEvent{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.DeviceID == "" {
		ev.DeviceID = "default"
	}
	ev.SubjectID = subjectID
	ev.OccurredAt = store.ClampOccurredAt(ev.OccurredAt.UTC().Truncate(time.Microsecond), h.LastOccurredAt)

	if _, err := tx.Exec(ctx, `
INSERT INTO access_events (`+eventColumns+`)
VALUES ($1, $2, $3, $4, $5, $6);
`, ev.ID, ev.SubjectID, string(ev.Direction), string(ev.Outcome), ev.DeviceID, ev.OccurredAt); err != nil {
		return types.AccessEvent{}, storageErr("AppendResolved insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.AccessEvent{}, storageErr("AppendResolved commit", err)
	}
	return ev, nil
}

func history(ctx context.Context, q queryer, subjectID string) (store.SubjectHistory, error) {
	var h store.SubjectHistory

	last, err := scanEvent(q.QueryRow(ctx, `
SELECT `+eventColumns+` FROM access_events
WHERE subject_id = $1 AND outcome = 'granted'
ORDER BY seq DESC LIMIT 1;
`, subjectID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return h, err
	default:
		h.LastGranted = &last
	}

	var maxAt *time.Time
	if err := q.QueryRow(ctx, `
SELECT MAX(occurred_at) FROM access_events WHERE subject_id = $1;
`, subjectID).Scan(&maxAt); err != nil {
		return h, err
	}
	if maxAt != nil {
		h.LastOccurredAt = maxAt.UTC()
	}
	return h, nil
}

func (s *AccessEventStore) Latest(ctx context.Context, subjectID string) (types.AccessEvent, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx, `
SELECT `+eventColumns+` FROM access_events
WHERE subject_id = $1
ORDER BY seq DESC LIMIT 1;
`, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
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
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.DeviceID != "" {
		add("device_id = $%d", f.DeviceID)
	}
	if f.Direction != "" {
		add("direction = $%d", string(f.Direction))
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To.UTC())
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
	n := len(args)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM access_events
%s
ORDER BY seq DESC
LIMIT $%d OFFSET $%d;
`, eventColumns, where, n-1, n), args...)
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

