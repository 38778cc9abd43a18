/*
Copyright 2024 batisdev

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

// placeholder is the type of the building sentinel.
type placeholder struct{ name string }

func (p *placeholder) String() string { return p.name }

// ExecutionPlaceholder is the reserved building sentinel: a cache entry
// meaning "a query is in progress for this key, results not yet reified".
// Deferred-load probes use it to distinguish in-flight from absent.
var ExecutionPlaceholder = &placeholder{name: "EXECUTION_PLACEHOLDER"}

type localEntry struct {
	key   *Key
	value any
}

// LocalCache is the session-scoped key→value store owned by an executor.
// It has no eviction; the executor clears it per its lifecycle rules. Not
// safe for concurrent use: sessions are single-owner.
type LocalCache struct {
	buckets map[uint64][]localEntry
}

// NewLocalCache returns an empty cache.
func NewLocalCache() *LocalCache {
	return &LocalCache{buckets: make(map[uint64][]localEntry)}
}

// Get returns the entry for key, which may be ExecutionPlaceholder.
func (c *LocalCache) Get(key *Key) (any, bool) {
	for _, entry := range c.buckets[key.Hash()] {
		if entry.key.Equals(key) {
			return entry.value, true
		}
	}
	return nil, false
}

// Put stores value under key, replacing any previous entry.
func (c *LocalCache) Put(key *Key, value any) {
	hash := key.Hash()
	bucket := c.buckets[hash]
	for i, entry := range bucket {
		if entry.key.Equals(key) {
			bucket[i].value = value
			return
		}
	}
	c.buckets[hash] = append(bucket, localEntry{key: key, value: value})
}

// Remove deletes the entry for key and returns its former value.
func (c *LocalCache) Remove(key *Key) (any, bool) {
	hash := key.Hash()
	bucket := c.buckets[hash]
	for i, entry := range bucket {
		if entry.key.Equals(key) {
			c.buckets[hash] = append(bucket[:i], bucket[i+1:]...)
			if len(c.buckets[hash]) == 0 {
				delete(c.buckets, hash)
			}
			return entry.value, true
		}
	}
	return nil, false
}

// Clear drops every entry. Clearing an empty cache is a no-op.
func (c *LocalCache) Clear() {
	c.buckets = make(map[uint64][]localEntry)
}

// Len returns the number of stored entries.
func (c *LocalCache) Len() int {
	var n int
	for _, bucket := range c.buckets {
		n += len(bucket)
	}
	return n
}
