package replica

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps the replica in process. It backs local development and
// tests and follows the same versioning rules as the networked stores.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Kind]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Kind]map[string]Record)}
}

func (m *MemoryStore) put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[rec.Kind]
	if !ok {
		bucket = make(map[string]Record)
		m.data[rec.Kind] = bucket
	}
	if cur, ok := bucket[rec.ID]; ok && cur.Version > rec.Version {
		return
	}
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	rec.Fields = fields
	bucket[rec.ID] = rec
}

func (m *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" || rec.Tenant == "" {
		return fmt.Errorf("replica: %s record needs id and tenant", rec.Kind)
	}
	rec.Deleted = false
	m.put(rec)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, kind Kind, tenant, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[kind][id]
	if !ok || rec.Deleted || rec.Tenant != tenant {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemoryStore) Query(ctx context.Context, kind Kind, tenant, field, value string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0)
	for _, rec := range m.data[kind] {
		if rec.Deleted || rec.Tenant != tenant {
			continue
		}
		if v, ok := rec.Fields[field]; ok && fmt.Sprint(v) == value {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, kind Kind, tenant, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.put(Record{Kind: kind, ID: id, Tenant: tenant, Version: version, Deleted: true})
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// Len counts live records of kind across tenants.
func (m *MemoryStore) Len(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.data[kind] {
		if !rec.Deleted {
			n++
		}
	}
	return n
}
