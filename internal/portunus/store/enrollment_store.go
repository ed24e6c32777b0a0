package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// EnrollmentStore holds at most one encrypted template per subject.
type EnrollmentStore interface {
	// Upsert stores ciphertext for subjectID.  A re-enrollment replaces the
	// ciphertext, keeps EnrolledAt and bumps UpdatedAt.  New enrollments
	// start active.
	Upsert(ctx context.Context, subjectID string, ciphertext []byte, at time.Time) (types.EnrolledTemplate, error)

	Get(ctx context.Context, subjectID string) (types.EnrolledTemplate, error)

	SetActive(ctx context.Context, subjectID string, active bool, at time.Time) (types.EnrolledTemplate, error)

	// ActivePopulation returns a consistent snapshot of every active
	// enrollment.
	ActivePopulation(ctx context.Context) ([]types.Candidate, error)
}
