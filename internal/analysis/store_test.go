package analysis

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStore_GetPutRecord(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, ok, err := store.GetRecord(ctx, "a1")
	if err != nil || ok {
		t.Errorf("expected not found for empty store, got ok=%v err=%v", ok, err)
	}

	rec := Record{ID: "a1", Exercise: "squat", AccuracyScore: 80}
	if err := store.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	got, ok, err := store.GetRecord(ctx, "a1")
	if err != nil || !ok || got.Exercise != "squat" {
		t.Errorf("GetRecord: ok=%v err=%v got %+v", ok, err, got)
	}
}

func TestInMemoryStore_ListRecords_newest_first(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = store.PutRecord(ctx, Record{ID: "old", CreatedAt: base})
	_ = store.PutRecord(ctx, Record{ID: "new", CreatedAt: base.Add(time.Minute)})
	_ = store.PutRecord(ctx, Record{ID: "mid", CreatedAt: base.Add(time.Second)})

	got, err := store.ListRecords(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 3 || got[0].ID != "new" || got[1].ID != "mid" || got[2].ID != "old" {
		t.Errorf("unexpected order: %v", ids(got))
	}

	got, _ = store.ListRecords(ctx, 2)
	if len(got) != 2 || got[0].ID != "new" {
		t.Errorf("limit 2: got %v", ids(got))
	}
}

func ids(recs []Record) []AnalysisID {
	out := make([]AnalysisID, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
