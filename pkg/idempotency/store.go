package idempotency

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Record is a captured response, immutable once stored.
type Record struct {
	Key              string            `json:"key"`
	StatusCode       int               `json:"statusCode"`
	Body             []byte            `json:"body"`
	Headers          map[string]string `json:"headers,omitempty"`
	CanonicalPayload []byte            `json:"canonicalPayload,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	// PutIfAbsent stores rec unless its key already has a record. It returns
	// whichever record is stored afterwards and whether it was rec.
	PutIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return clone(rec), ok, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Key]; ok {
		return clone(existing), false, nil
	}
	s.records[rec.Key] = clone(rec)
	return rec, true, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(rec Record) Record {
	rec.Body = append([]byte(nil), rec.Body...)
	rec.CanonicalPayload = append([]byte(nil), rec.CanonicalPayload...)
	rec.Headers = maps.Clone(rec.Headers)
	return rec
}
