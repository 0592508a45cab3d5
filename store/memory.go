package store

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jonwraymond/mealgen/meal"
)

const shardCount = 64

// MemoryStore is an in-process Store. Keys are spread over 64 shards so
// that different signatures rarely contend on the same lock.
type MemoryStore struct {
	shards [shardCount]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	s := &MemoryStore{now: nowFunc(now)}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	return s
}

func memoryKey(hash string, mealType meal.Type) string {
	return hash + "\x00" + string(mealType)
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

// Lookup returns a copy of the entry and records the hit.
func (s *MemoryStore) Lookup(ctx context.Context, hash string, mealType meal.Type) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	mt, err := checkKey(hash, mealType)
	if err != nil {
		return nil, false, err
	}

	key := memoryKey(hash, mt)
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return nil, false, nil
	}
	e.HitCount++
	e.LastAccessedAt = s.now()
	return e.Clone(), true, nil
}

// Insert stores rec unless its key is already present.
func (s *MemoryStore) Insert(ctx context.Context, rec Record) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	key := memoryKey(rec.Signature.Hash, rec.MealType)
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[key]; exists {
		return nil, ErrDuplicateSignature
	}
	e := newEntry(rec, s.now())
	sh.entries[key] = e
	return e.Clone(), nil
}

// EvictIdle removes entries last accessed before the given time.
func (s *MemoryStore) EvictIdle(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	for i := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.LastAccessedAt.Before(before) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Evicter = (*MemoryStore)(nil)
)
