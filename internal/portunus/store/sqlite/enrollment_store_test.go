package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Upsert / Get
// ═══════════════════════════════════════════════════════════════════════════

func TestEnrollmentStore_UpsertReplacesCiphertext(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEnrollmentStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	t0 := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	if _, err := es.Upsert(ctx, "u-1", []byte{1, 2, 3}, t0); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	rec, err := es.Upsert(ctx, "u-1", []byte{4, 5, 6, 7}, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}

	if string(rec.Ciphertext) != string([]byte{4, 5, 6, 7}) {
		t.Errorf("expected replaced ciphertext, got %v", rec.Ciphertext)
	}
	if !rec.EnrolledAt.Equal(t0) {
		t.Errorf("expected enrolled_at kept at %v, got %v", t0, rec.EnrolledAt)
	}
	if !rec.UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected updated_at bumped, got %v", rec.UpdatedAt)
	}
	if !rec.Active {
		t.Error("expected enrollment to be active")
	}

	var stored string
	if err := conn.QueryRowContext(ctx,
		`SELECT template_ct FROM enrollments WHERE subject_id = 'u-1'`).Scan(&stored); err != nil {
		t.Fatalf("query: %v", err)
	}
	if stored != "BAUGBw==" {
		t.Errorf("expected base64 at rest, got %q", stored)
	}

	got, err := es.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SubjectID != "u-1" || len(got.Ciphertext) != 4 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestEnrollmentStore_MissingSubject(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEnrollmentStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if _, err := es.Get(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := es.SetActive(ctx, "ghost", false, time.Time{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetActive: expected ErrNotFound, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ActivePopulation
// ═══════════════════════════════════════════════════════════════════════════

func TestEnrollmentStore_ActivePopulation(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewEnrollmentStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	for _, id := range []string{"carol", "alice", "bob"} {
		if _, err := es.Upsert(ctx, id, []byte(id), time.Time{}); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	if _, err := es.SetActive(ctx, "bob", false, time.Time{}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	// A corrupt row is passed through raw rather than failing the read.
	if _, err := conn.ExecContext(ctx, `
INSERT INTO enrollments(subject_id, template_ct, active, enrolled_at_ms, updated_at_ms)
VALUES ('dave', '!!not base64!!', 1, 1, 1);`); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}

	pop, err := es.ActivePopulation(ctx)
	if err != nil {
		t.Fatalf("ActivePopulation: %v", err)
	}
	if len(pop) != 3 {
		t.Fatalf("expected 3 active, got %d", len(pop))
	}
	want := []string{"alice", "carol", "dave"}
	for i, c := range pop {
		if c.SubjectID != want[i] {
			t.Errorf("pop[%d]: expected %s, got %s", i, want[i], c.SubjectID)
		}
	}
	if string(pop[0].Ciphertext) != "alice" {
		t.Errorf("expected decoded ciphertext, got %q", pop[0].Ciphertext)
	}
	if string(pop[2].Ciphertext) != "!!not base64!!" {
		t.Errorf("expected raw passthrough, got %q", pop[2].Ciphertext)
	}

	if _, err := es.SetActive(ctx, "bob", true, time.Time{}); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	pop, _ = es.ActivePopulation(ctx)
	if len(pop) != 4 {
		t.Errorf("expected 4 active after reactivation, got %d", len(pop))
	}
}
