// Package idempotency implements the scoped-key journal that makes
// duplicate create requests return the same cached handle bytes instead of
// creating a second session (§4.4.1 step 11, §9).
package idempotency

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var log = logging.ForComponent(logging.CompIdempotency)

// Journal is the key/value/TTL contract the orchestrator depends on. Its
// durability mechanism is out of scope (§1) — this module supplies an
// in-memory LRU tier and, optionally, a durable backend behind the same
// interface.
type Journal interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryJournal is a bounded LRU-backed journal, the default tier consulted
// before any durable backend.
type MemoryJournal struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
}

// NewMemoryJournal creates an in-memory journal holding up to capacity keys.
func NewMemoryJournal(capacity int) *MemoryJournal {
	c, _ := lru.New[string, entry](capacity)
	return &MemoryJournal{cache: c}
}

func (j *MemoryJournal) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cache.Add(key, entry{value: value, expiresAt: time.Now().Add(ttl)})
	log.Debug("journal_put", "key", key, "ttl", ttl.String())
	return nil
}

func (j *MemoryJournal) Get(ctx context.Context, key string) ([]byte, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		j.cache.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Tiered layers a fast in-memory cache in front of a durable backend: reads
// check memory first, then the durable tier (populating memory on hit);
// writes go to both.
type Tiered struct {
	memory  *MemoryJournal
	durable Journal
}

func NewTiered(memory *MemoryJournal, durable Journal) *Tiered {
	return &Tiered{memory: memory, durable: durable}
}

func (t *Tiered) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.memory.Put(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.durable == nil {
		return nil
	}
	return t.durable.Put(ctx, key, value, ttl)
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.memory.Get(ctx, key); err != nil || ok {
		return v, ok, err
	}
	if t.durable == nil {
		return nil, false, nil
	}
	v, ok, err := t.durable.Get(ctx, key)
	if err == nil && ok {
		_ = t.memory.Put(ctx, key, v, time.Hour)
	}
	return v, ok, err
}

// ScopedKey builds the "agent_id:provider_id:idempotency_key" key the
// journal is addressed by (GLOSSARY: Scoped key).
func ScopedKey(agentID, providerID, idempotencyKey string) string {
	return agentID + ":" + providerID + ":" + idempotencyKey
}
