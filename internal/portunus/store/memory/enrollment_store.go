package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

type EnrollmentStore struct {
	mu   sync.RWMutex
	data map[string]types.EnrolledTemplate
}

func NewEnrollmentStore() *EnrollmentStore {
	return &EnrollmentStore{data: make(map[string]types.EnrolledTemplate)}
}

func (s *EnrollmentStore) Upsert(_ context.Context, subjectID string, ciphertext []byte, at time.Time) (types.EnrolledTemplate, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[subjectID]
	if !ok {
		rec = types.EnrolledTemplate{SubjectID: subjectID, Active: true, EnrolledAt: at}
	}
	rec.Ciphertext = cloneBytes(ciphertext)
	rec.UpdatedAt = at
	s.data[subjectID] = rec
	return copyTemplate(rec), nil
}

func (s *EnrollmentStore) Get(_ context.Context, subjectID string) (types.EnrolledTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[subjectID]
	if !ok {
		return types.EnrolledTemplate{}, fmt.Errorf("Get %s: %w", subjectID, store.ErrNotFound)
	}
	return copyTemplate(rec), nil
}

func (s *EnrollmentStore) SetActive(_ context.Context, subjectID string, active bool, at time.Time) (types.EnrolledTemplate, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[subjectID]
	if !ok {
		return types.EnrolledTemplate{}, fmt.Errorf("SetActive %s: %w", subjectID, store.ErrNotFound)
	}
	rec.Active = active
	rec.UpdatedAt = at
	s.data[subjectID] = rec
	return copyTemplate(rec), nil
}

func (s *EnrollmentStore) ActivePopulation(_ context.Context) ([]types.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Candidate, 0, len(s.data))
	for _, rec := range s.data {
		if !rec.Active {
			continue
		}
		out = append(out, types.Candidate{SubjectID: rec.SubjectID, Ciphertext: cloneBytes(rec.Ciphertext)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func copyTemplate(rec types.EnrolledTemplate) types.EnrolledTemplate {
	rec.Ciphertext = cloneBytes(rec.Ciphertext)
	return rec
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
