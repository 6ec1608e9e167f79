package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"motion-scorer/internal/apperr"
)

// DefaultListLimit caps List when the caller gives no limit.
const DefaultListLimit = 50

// Repository defines the concurrency-safe contract for storing and reading
// analysis records.
type Repository interface {
	// Save stores rec, stamping CreatedAt, and returns the stored copy.
	// A record with an empty or already used ID is rejected.
	Save(ctx context.Context, rec Record) (Record, error)

	// Get returns the record with the given ID or a NotFound error.
	Get(ctx context.Context, id AnalysisID) (Record, error)

	// List returns at most limit records, newest first. A limit <= 0 means
	// DefaultListLimit.
	List(ctx context.Context, limit int) ([]Record, error)
}

var (
	// ErrMissingID is returned when saving a record without an ID.
	ErrMissingID = errors.New("analysis record has no id")

	// ErrDuplicateID is returned when saving a record whose ID is taken.
	ErrDuplicateID = errors.New("analysis id already exists")
)

// StoreRepository is a concurrency-safe Repository over a Store; by default
// that is an InMemoryStore.
type StoreRepository struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *StoreRepository {
	return NewRepositoryWithStore(NewInMemoryStore())
}

// NewRepositoryWithStore constructs a repository that uses the given Store.
// Useful for testing or for plugging in a different persistence backend.
func NewRepositoryWithStore(store Store) *StoreRepository {
	return &StoreRepository{store: store, now: time.Now}
}

// Save implements Repository.Save.
func (r *StoreRepository) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, ErrMissingID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.store.GetRecord(ctx, rec.ID)
	if err != nil {
		return Record{}, err
	}
	if exists {
		return Record{}, ErrDuplicateID
	}

	rec.CreatedAt = r.now().UTC()
	if err := r.store.PutRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get implements Repository.Get.
func (r *StoreRepository) Get(ctx context.Context, id AnalysisID) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok, err := r.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, apperr.Wrap(err, apperr.KindInternal, "could not read analysis %s", id)
	}
	if !ok {
		return Record{}, apperr.New(apperr.KindNotFound, "analysis %s not found", id)
	}
	return rec, nil
}

// List implements Repository.List.
func (r *StoreRepository) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	recs, err := r.store.ListRecords(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "could not list analyses")
	}
	return recs, nil
}
