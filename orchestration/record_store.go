package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/mapreason/mapreason/core"
)

// RecordStore persists answer records for auditing
type RecordStore interface {
	Save(ctx context.Context, record *AnswerRecord) error
	Get(ctx context.Context, id string) (*AnswerRecord, error)
	Recent(ctx context.Context, limit int) ([]*AnswerRecord, error)
}

// MemoryRecordStore keeps records in memory, newest first, capped at a
// fixed size. Suitable for tests and single-process deployments.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*AnswerRecord
	order   []string
	maxSize int
}

// NewMemoryRecordStore creates a store holding at most maxSize records
func NewMemoryRecordStore(maxSize int) *MemoryRecordStore {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &MemoryRecordStore{
		records: make(map[string]*AnswerRecord),
		maxSize: maxSize,
	}
}

// Save stores a record, evicting the oldest when over capacity
func (s *MemoryRecordStore) Save(ctx context.Context, record *AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; !exists {
		s.order = append([]string{record.ID}, s.order...)
	}
	s.records[record.ID] = record

	for len(s.order) > s.maxSize {
		oldest := s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]
		delete(s.records, oldest)
	}
	return nil
}

// Get retrieves one record by ID
func (s *MemoryRecordStore) Get(ctx context.Context, id string) (*AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, core.ErrRecordNotFound)
	}
	return record, nil
}

// Recent returns up to limit records, newest first
func (s *MemoryRecordStore) Recent(ctx context.Context, limit int) ([]*AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*AnswerRecord, 0, limit)
	for _, id := range s.order[:limit] {
		out = append(out, s.records[id])
	}
	return out, nil
}
