package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and degraded operation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte // "namespace/id" -> value

	// failing simulates an unavailable backend when set. Tests only.
	failing bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// SetFailing toggles simulated unavailability. Every operation returns
// ErrUnavailable while set.
func (s *MemoryStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func key(namespace, id string) string {
	return namespace + "/" + id
}

// Get retrieves a record.
func (s *MemoryStore) Get(ctx context.Context, namespace, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failing {
		return nil, ErrUnavailable
	}
	value, ok := s.data[key(namespace, id)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return &Record{Namespace: namespace, ID: id, Value: cp}, nil
}

// Upsert stores a record, replacing any existing value.
func (s *MemoryStore) Upsert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return ErrUnavailable
	}
	cp := make([]byte, len(rec.Value))
	copy(cp, rec.Value)
	s.data[key(rec.Namespace, rec.ID)] = cp
	return nil
}

// Query returns all records in the namespace with the given ID prefix,
// ordered by ID for deterministic iteration.
func (s *MemoryStore) Query(ctx context.Context, namespace, prefix string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failing {
		return nil, ErrUnavailable
	}
	nsPrefix := namespace + "/"
	var out []*Record
	for k, v := range s.data {
		if !strings.HasPrefix(k, nsPrefix) {
			continue
		}
		id := strings.TrimPrefix(k, nsPrefix)
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, &Record{Namespace: namespace, ID: id, Value: cp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *MemoryStore) Delete(ctx context.Context, namespace, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return ErrUnavailable
	}
	delete(s.data, key(namespace, id))
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
