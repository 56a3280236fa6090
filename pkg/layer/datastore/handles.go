/*
Copyright 2025 The Kubernetes Authors.

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

package datastore

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

const (
	// handleShards must be a power of two.
	handleShards = 16
	shardMask    = handleShards - 1
)

// ErrIDSpaceExhausted is returned by Wrap once the identifier counter reached its maximum.
// The counter saturates there instead of wrapping around to identifiers that may still be live.
var ErrIDSpaceExhausted = errors.New("synthetic handle identifiers exhausted")

// HandleTable maps synthetic identifiers handed to the application to the real handles of the
// layer below. Identifiers come from one process-wide counter and are never reused. Entries are
// spread over independently locked shards so Wrap never waits on unrelated entries of another shard.
// A live real handle has at most one identifier.
//
// Lock order: the reverse shard of the real handle, then the shard of the identifier.
type HandleTable struct {
	next    atomic.Uint64
	size    atomic.Int64
	shards  [handleShards]handleShard
	reverse [handleShards]handleShard
}

type handleShard struct {
	mu      sync.RWMutex
	entries map[api.Handle]api.Handle
}

func NewHandleTable() *HandleTable {
	t := &HandleTable{}
	for i := range t.shards {
		t.shards[i].entries = make(map[api.Handle]api.Handle)
		t.reverse[i].entries = make(map[api.Handle]api.Handle)
	}
	return t
}

func shardIndex(h api.Handle) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(h))
	return xxhash.Sum64(buf[:]) & shardMask
}

func (t *HandleTable) shard(id api.Handle) *handleShard {
	return &t.shards[shardIndex(id)]
}

func (t *HandleTable) reverseShard(real api.Handle) *handleShard {
	return &t.reverse[shardIndex(real)]
}

// nextID returns the next identifier, or false once the counter is saturated.
func (t *HandleTable) nextID() (api.Handle, bool) {
	for {
		cur := t.next.Load()
		if cur == math.MaxUint64 {
			return api.NullHandle, false
		}
		if t.next.CompareAndSwap(cur, cur+1) {
			return api.Handle(cur + 1), true
		}
	}
}

// Wrap issues an identifier for real. A real handle that is already wrapped keeps its
// identifier.
func (t *HandleTable) Wrap(real api.Handle) (api.Handle, error) {
	rs := t.reverseShard(real)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if id, ok := rs.entries[real]; ok {
		return id, nil
	}
	id, ok := t.nextID()
	if !ok {
		return api.NullHandle, ErrIDSpaceExhausted
	}
	s := t.shard(id)
	s.mu.Lock()
	s.entries[id] = real
	s.mu.Unlock()
	rs.entries[real] = id
	t.size.Add(1)
	return id, nil
}

// Unwrap returns the real handle behind id.
func (t *HandleTable) Unwrap(id api.Handle) (api.Handle, bool) {
	s := t.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	real, ok := s.entries[id]
	return real, ok
}

// Release forgets id and returns the real handle it stood for.
func (t *HandleTable) Release(id api.Handle) (api.Handle, bool) {
	real, ok := t.Unwrap(id)
	if !ok {
		return api.NullHandle, false
	}
	rs := t.reverseShard(real)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	s := t.shard(id)
	s.mu.Lock()
	// A concurrent Release may have won between Unwrap and the locks.
	if cur, ok := s.entries[id]; !ok || cur != real {
		s.mu.Unlock()
		return api.NullHandle, false
	}
	delete(s.entries, id)
	s.mu.Unlock()
	if rs.entries[real] == id {
		delete(rs.entries, real)
	}
	t.size.Add(-1)
	return real, true
}

// Len returns the number of live identifiers.
func (t *HandleTable) Len() int {
	return int(t.size.Load())
}

// Clear drops every entry. The counter keeps its value so identifiers are never handed out twice.
func (t *HandleTable) Clear() {
	for i := range t.reverse {
		t.reverse[i].mu.Lock()
		defer t.reverse[i].mu.Unlock()
	}
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		t.size.Add(-int64(len(s.entries)))
		s.entries = make(map[api.Handle]api.Handle)
		s.mu.Unlock()
	}
	for i := range t.reverse {
		t.reverse[i].entries = make(map[api.Handle]api.Handle)
	}
}
