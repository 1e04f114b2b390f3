// Package cache holds the latest value per key behind sharded locks.
package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const numShards = 16

// Sharded maps string keys to the most recent value of V.
type Sharded[V any] struct {
	shards [numShards]*shard[V]
	now    func() time.Time
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

type entry[V any] struct {
	val       V
	updatedAt time.Time
}

// NewSharded creates an empty cache.
func NewSharded[V any]() *Sharded[V] {
	c := &Sharded[V]{now: time.Now}
	for i := range c.shards {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return c
}

func (c *Sharded[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores val under key.
func (c *Sharded[V]) Set(key string, val V) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.items[key] = entry[V]{val: val, updatedAt: c.now()}
	s.mu.Unlock()
}

// Get returns the value under key.
func (c *Sharded[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	return e.val, ok
}

// GetWithAge returns the value under key and how long ago it was set.
func (c *Sharded[V]) GetWithAge(key string) (V, time.Duration, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, 0, false
	}
	return e.val, c.now().Sub(e.updatedAt), true
}

// Delete removes key.
func (c *Sharded[V]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns the number of keys across all shards.
func (c *Sharded[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Keys returns every key, sorted.
func (c *Sharded[V]) Keys() []string {
	var keys []string
	for _, s := range c.shards {
		s.mu.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// Cleanup removes entries older than maxAge and returns how many went.
func (c *Sharded[V]) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := c.now().Add(-maxAge)
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
