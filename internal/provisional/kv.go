// Package provisional stages stops and signatures locally before the ledger has them.
//
// Nothing in here is the system of record. A KV backend may be wiped at any time (a cleared browser store,
// a flushed redis, a deleted sqlite file) and the only loss is what has not been reconciled into the ledger yet.
package provisional

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// KV is the local key-value persistence behind a store. Each namespace lives under one key holding a JSON array.
type KV interface {
	// Get returns found == false when key was never written or was removed
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// MemoryKV keeps the values in process memory, they are lost on restart
type MemoryKV struct {
	c *cache.Cache
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{c: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := m.c.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.c.Set(key, append([]byte(nil), value...), cache.NoExpiration)
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
