package service

import (
	"sync"

	"github.com/google/uuid"
)

// pendingTombstones holds orders deleted in the primary whose replica
// tombstone has not landed yet. Replica reads of these ids are not trusted.
type pendingTombstones struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func tombstoneKey(tenant string, id uuid.UUID) string {
	return tenant + "/" + id.String()
}

func (p *pendingTombstones) add(tenant string, id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ids == nil {
		p.ids = make(map[string]struct{})
	}
	p.ids[tombstoneKey(tenant, id)] = struct{}{}
}

func (p *pendingTombstones) remove(tenant string, id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, tombstoneKey(tenant, id))
}

func (p *pendingTombstones) has(tenant string, id uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ids[tombstoneKey(tenant, id)]
	return ok
}

func (p *pendingTombstones) size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ids)
}
