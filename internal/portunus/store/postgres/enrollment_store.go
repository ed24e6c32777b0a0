package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/codec"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

type EnrollmentStore struct {
	pool *pgxpool.Pool
}

func NewEnrollmentStore(pool *pgxpool.Pool) *EnrollmentStore {
	return &EnrollmentStore{pool: pool}
}

func scanEnrollment(row pgx.Row) (types.EnrolledTemplate, error) {
	var (
		rec types.EnrolledTemplate
		ct  string
	)
	if err := row.Scan(&rec.SubjectID, &ct, &rec.Active, &rec.EnrolledAt, &rec.UpdatedAt); err != nil {
		return types.EnrolledTemplate{}, err
	}
	rec.Ciphertext = decodeCiphertext(ct)
	rec.EnrolledAt = rec.EnrolledAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func (s *EnrollmentStore) Upsert(ctx context.Context, subjectID string, ciphertext []byte, at time.Time) (types.EnrolledTemplate, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rec, err := scanEnrollment(s.pool.QueryRow(ctx, `
INSERT INTO enrollments (subject_id, template_ct, active, enrolled_at, updated_at)
VALUES ($1, $2, TRUE, $3, $3)
ON CONFLICT (subject_id) DO UPDATE SET
  template_ct = EXCLUDED.template_ct,
  updated_at  = EXCLUDED.updated_at
RETURNING subject_id, template_ct, active, enrolled_at, updated_at;
`, subjectID, codec.EncodeToString(ciphertext), at))
	if err != nil {
		return types.EnrolledTemplate{}, storageErr("Upsert", err)
	}
	return rec, nil
}

func (s *EnrollmentStore) Get(ctx context.Context, subjectID string) (types.EnrolledTemplate, error) {
	rec, err := scanEnrollment(s.pool.QueryRow(ctx, `
SELECT subject_id, template_ct, active, enrolled_at, updated_at
FROM enrollments WHERE subject_id = $1;
`, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
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
	rec, err := scanEnrollment(s.pool.QueryRow(ctx, `
UPDATE enrollments SET active = $2, updated_at = $3
WHERE subject_id = $1
RETURNING subject_id, template_ct, active, enrolled_at, updated_at;
`, subjectID, active, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.EnrolledTemplate{}, fmt.Errorf("SetActive %s: %w", subjectID, store.ErrNotFound)
	}
	if err != nil {
		return types.EnrolledTemplate{}, storageErr("SetActive", err)
	}
	return rec, nil
}

func (s *EnrollmentStore) ActivePopulation(ctx context.Context) ([]types.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT subject_id, template_ct FROM enrollments
WHERE active
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
