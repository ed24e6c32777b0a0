package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/codec"
	dbpkg "github.com/BrandonDHaskell/Portunus/biogate/internal/db"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

type EnrollmentStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEnrollmentStore(db *sql.DB, writer *dbpkg.Worker) *EnrollmentStore {
	return &EnrollmentStore{db: db, writer: writer}
}

const selectEnrollment = `
SELECT subject_id, template_ct, active, enrolled_at_ms, updated_at_ms
FROM enrollments WHERE subject_id = ?;
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (types.EnrolledTemplate, error) {
	var (
		rec      types.EnrolledTemplate
		ct       string
		active   int
		enrolled int64
		updated  int64
	)
	if err := row.Scan(&rec.SubjectID, &ct, &active, &enrolled, &updated); err != nil {
		return types.EnrolledTemplate{}, err
	}
	rec.Ciphertext = decodeCiphertext(ct)
	rec.Active = active == 1
	rec.EnrolledAt = fromMs(enrolled)
	rec.UpdatedAt = fromMs(updated)
	return rec, nil
}

func (s *EnrollmentStore) Upsert(ctx context.Context, subjectID string, ciphertext []byte, at time.Time) (types.EnrolledTemplate, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ms := toMs(at)
	ct := codec.EncodeToString(ciphertext)

	var out types.EnrolledTemplate
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO enrollments(subject_id, template_ct, active, enrolled_at_ms, updated_at_ms)
VALUES (?, ?, 1, ?, ?)
ON CONFLICT(subject_id) DO UPDATE SET
  template_ct   = excluded.template_ct,
  updated_at_ms = excluded.updated_at_ms;
`, subjectID, ct, ms, ms); err != nil {
			return err
		}

		rec, err := scanEnrollment(tx.QueryRowContext(ctx, selectEnrollment, subjectID))
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return types.EnrolledTemplate{}, storageErr("Upsert", err)
	}
	return out, nil
}

func (s *EnrollmentStore) Get(ctx context.Context, subjectID string) (types.EnrolledTemplate, error) {
	rec, err := scanEnrollment(s.db.QueryRowContext(ctx, selectEnrollment, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.EnrolledTemplate{}, fmt.Errorf("Get %s: %w", subjectID, store.ErrNotFound)
	}
	if err != nil {
		return types.EnrolledTemplate{}, storageErr("Get", err)
	}
	return rec, nil
}

func (s *EnrollmentStore) SetActive(ctx context.Context, subjectID string, active bool, at time.Time) (types.EnrolledTemplate, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var flag int
	if active {
		flag = 1
	}

	var out types.EnrolledTemplate
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE enrollments SET active = ?, updated_at_ms = ? WHERE subject_id = ?;
`, flag, toMs(at), subjectID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}

		rec, err := scanEnrollment(tx.QueryRowContext(ctx, selectEnrollment, subjectID))
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return types.EnrolledTemplate{}, fmt.Errorf("SetActive %s: %w", subjectID, store.ErrNotFound)
	}
	if err != nil {
		return types.EnrolledTemplate{}, storageErr("SetActive", err)
	}
	return out, nil
}

// ActivePopulation reads the population in one statement, so it is a
// consistent snapshot even while enrollments are being written.
func (s *EnrollmentStore) ActivePopulation(ctx context.Context) ([]types.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT subject_id, template_ct FROM enrollments
WHERE active = 1
ORDER BY subject_id;
`)
	if err != nil {
		return nil, storageErr("ActivePopulation", err)
	}
	defer rows.Close()

	out := make([]types.Candidate, 0)
	for rows.Next() {
		var id, ct string
		if err := rows.Scan(&id, &ct); err != nil {
			return nil, storageErr("ActivePopulation scan", err)
		}
		out = append(out, types.Candidate{SubjectID: id, Ciphertext: decodeCiphertext(ct)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ActivePopulation", err)
	}
	return out, nil
}
