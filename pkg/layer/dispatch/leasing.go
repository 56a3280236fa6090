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

package dispatch

import (
	"sync"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

// leasedState implements a reference-counted "Leasing" pattern. Every call dispatched on a
// Context holds a lease for its duration; destruction waits for the count to reach zero.
type leasedState struct {
	// mu protects the lifecycle fields.
	mu sync.Mutex

	// drained is created on first use by a waiting destroyer.
	drained *sync.Cond

	// leaseCount tracks the number of in-flight calls.
	leaseCount int

	// markedForDeletion is set once destruction started. No new lease is granted afterwards.
	markedForDeletion bool
}

// tryPin acquires a lease if the Context is not being destroyed.
func (ls *leasedState) tryPin() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.markedForDeletion {
		return false
	}
	ls.leaseCount++
	return true
}

// unpin releases a lease and wakes a waiting destroyer when the last one is gone.
func (ls *leasedState) unpin() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.leaseCount--
	if ls.leaseCount == 0 && ls.drained != nil {
		ls.drained.Broadcast()
	}
}

// markAndDrain refuses new leases and blocks until every outstanding lease is released.
func (ls *leasedState) markAndDrain() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.markedForDeletion = true
	for ls.leaseCount > 0 {
		if ls.drained == nil {
			ls.drained = sync.NewCond(&ls.mu)
		}
		ls.drained.Wait()
	}
}

// leases returns the number of in-flight calls.
func (ls *leasedState) leases() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.leaseCount
}

// pin resolves key and leases the Context behind it. A Context found but already being destroyed,
// or removed between lookup and pin, is reported as absent.
func (r *Registry) pin(key api.DispatchKey) (*Context, bool) {
	for {
		c, ok := r.keys.Lookup(key)
		if !ok {
			return nil, false
		}
		if !c.tryPin() {
			return nil, false
		}
		// Did a destroyer erase the key while we were acquiring it?
		current, ok := r.keys.Lookup(key)
		if !ok || current != c {
			c.unpin()
			if !ok {
				return nil, false
			}
			continue
		}
		return c, true
	}
}
