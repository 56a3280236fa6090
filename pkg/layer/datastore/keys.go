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

// Package datastore holds the two process-wide concurrent tables of the layer.
package datastore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

// KeyTable maps dispatch keys to the live object that owns them. Lookups take no lock; inserts
// and erases may run concurrently with them. A key is present only while its owner is live.
type KeyTable[V any] struct {
	entries sync.Map // api.DispatchKey -> V
	size    atomic.Int64
}

// Insert adds key. It fails if key already has an owner.
func (t *KeyTable[V]) Insert(key api.DispatchKey, v V) error {
	if _, loaded := t.entries.LoadOrStore(key, v); loaded {
		return fmt.Errorf("dispatch key 0x%x already has a live owner", uint64(key))
	}
	t.size.Add(1)
	return nil
}

// Lookup returns the owner of key.
func (t *KeyTable[V]) Lookup(key api.DispatchKey) (V, bool) {
	v, ok := t.entries.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Erase removes key and returns its former owner.
func (t *KeyTable[V]) Erase(key api.DispatchKey) (V, bool) {
	v, ok := t.entries.LoadAndDelete(key)
	if !ok {
		var zero V
		return zero, false
	}
	t.size.Add(-1)
	return v.(V), true
}

// Len returns the number of live keys.
func (t *KeyTable[V]) Len() int {
	return int(t.size.Load())
}

// Range calls fn for every live key until fn returns false.
func (t *KeyTable[V]) Range(fn func(key api.DispatchKey, v V) bool) {
	t.entries.Range(func(k, v any) bool {
		return fn(k.(api.DispatchKey), v.(V))
	})
}
