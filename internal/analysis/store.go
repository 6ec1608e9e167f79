package analysis

import (
	"context"
	"sort"
)

// Store is the persistence abstraction for analysis records.
// Implementations can be in-memory or remote.
// The Repository uses Store for all reads and writes; callers of Repository
// do not need to know which Store is used.
type Store interface {
	GetRecord(ctx context.Context, id AnalysisID) (Record, bool, error)
	PutRecord(ctx context.Context, rec Record) error
	// ListRecords returns at most limit records, newest first.
	ListRecords(ctx context.Context, limit int) ([]Record, error)
}

// InMemoryStore is an in-memory implementation of Store. It is not safe for
// concurrent use on its own; the Repository serializes access.
type InMemoryStore struct {
	records map[AnalysisID]Record
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[AnalysisID]Record),
	}
}

// GetRecord implements Store.GetRecord.
func (s *InMemoryStore) GetRecord(_ context.Context, id AnalysisID) (Record, bool, error) {
	rec, ok := s.records[id]
	return rec, ok, nil
}

// PutRecord implements Store.PutRecord.
func (s *InMemoryStore) PutRecord(_ context.Context, rec Record) error {
	s.records[rec.ID] = rec
	return nil
}

// ListRecords implements Store.ListRecords.
func (s *InMemoryStore) ListRecords(_ context.Context, limit int) ([]Record, error) {
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
