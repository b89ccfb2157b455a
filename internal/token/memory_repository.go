package token

import (
	"context"
	"errors"
	"sync"
)

var errDuplicateToken = errors.New("duplicate token")

// MemoryRepository keeps token records in a map. Used by the memory store
// driver and by tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (r *MemoryRepository) Create(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.Token]; ok {
		return errDuplicateToken
	}
	r.records[rec.Token] = rec
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, tok string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[tok]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &rec, nil
}
