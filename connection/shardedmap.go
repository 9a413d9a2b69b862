package connection

import (
	"hash/fnv"
	"sync"
)

// shardCount is the number of lock stripes. The teacher's ClusterPool
// guards its map with a single top-level mutex; striping over several
// mutexes here keeps concurrent address lookups from serializing on one
// lock the way the teacher's single sync.Mutex does.
const shardCount = 32

// shardedMap is a concurrent string-keyed map built out of the teacher's
// own mutex-plus-map idiom (see ClusterPool.connPools), striped across
// shardCount independent locks instead of guarding one big map with one
// mutex.
type shardedMap[V any] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func newShardedMap[V any]() *shardedMap[V] {
	sm := &shardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

func (sm *shardedMap[V]) shardFor(key string) *mapShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &sm.shards[h.Sum32()%shardCount]
}

func (sm *shardedMap[V]) Get(key string) (V, bool) {
	shard := sm.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.m[key]
	return v, ok
}

func (sm *shardedMap[V]) Set(key string, value V) {
	shard := sm.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.m[key] = value
}

func (sm *shardedMap[V]) Delete(key string) (V, bool) {
	shard := sm.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	v, ok := shard.m[key]
	delete(shard.m, key)
	return v, ok
}

// Len walks every shard; callers needing a consistent snapshot should pair
// this with their own external synchronization since no global lock is
// held across shards.
func (sm *shardedMap[V]) Len() int {
	total := 0
	for i := range sm.shards {
		sm.shards[i].mu.RLock()
		total += len(sm.shards[i].m)
		sm.shards[i].mu.RUnlock()
	}
	return total
}

// Range calls f for every entry across all shards. f must not call back
// into the shardedMap.
func (sm *shardedMap[V]) Range(f func(key string, value V) bool) {
	for i := range sm.shards {
		sm.shards[i].mu.RLock()
		for k, v := range sm.shards[i].m {
			if !f(k, v) {
				sm.shards[i].mu.RUnlock()
				return
			}
		}
		sm.shards[i].mu.RUnlock()
	}
}

// Keys returns a snapshot of every key currently present.
func (sm *shardedMap[V]) Keys() []string {
	keys := make([]string, 0, sm.Len())
	sm.Range(func(k string, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
