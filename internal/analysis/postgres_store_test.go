package analysis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer store.Close()

	repo := NewRepositoryWithStore(store)
	id := AnalysisID(uuid.NewString())

	saved, err := repo.Save(ctx, Record{
		ID:              id,
		Exercise:        "squat",
		AccuracyScore:   82.4,
		CaloriesBurned:  3.21,
		DurationMinutes: 0.5,
		WeightKg:        73.5,
		ReferenceCount:  4,
		FrameCount:      900,
		DetectedFrames:  880,
		CorpusVersion:   "test",
		VideoName:       "set1.mp4",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Exercise != "squat" || got.AccuracyScore != 82.4 || got.DetectedFrames != 880 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt.Sub(saved.CreatedAt).Abs() > time.Millisecond {
		t.Errorf("created_at: got %v want %v", got.CreatedAt, saved.CreatedAt)
	}

	if _, err := repo.Save(ctx, Record{ID: id}); err == nil {
		t.Error("expected duplicate id to be rejected")
	}

	recs, err := repo.List(ctx, 1)
	if err != nil || len(recs) != 1 {
		t.Errorf("List: %d records, err %v", len(recs), err)
	}
}
