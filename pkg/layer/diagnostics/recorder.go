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

package diagnostics

import (
	"context"
	"sort"
	"sync"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

// Recorder keeps every message it receives. It backs tests and the summary printed by the
// chassis binary.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	labels   map[api.Handle]string
}

func NewRecorder() *Recorder {
	return &Recorder{labels: map[api.Handle]string{}}
}

func (r *Recorder) Report(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *Recorder) SetLabel(handle api.Handle, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels[handle] = label
}

// Label returns the name last set for handle.
func (r *Recorder) Label(handle api.Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.labels[handle]
}

// Messages returns a copy of the recorded messages in arrival order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// IDs returns the ids of the recorded messages in arrival order.
func (r *Recorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.messages))
	for i, m := range r.messages {
		ids[i] = m.ID
	}
	return ids
}

// Count returns how many messages with the given id were recorded.
func (r *Recorder) Count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ID == id {
			n++
		}
	}
	return n
}

// Summary returns the number of messages per id.
func (r *Recorder) Summary() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, m := range r.messages {
		out[m.ID]++
	}
	return out
}

// SortedIDs returns the distinct ids, sorted.
func (r *Recorder) SortedIDs() []string {
	summary := r.Summary()
	ids := make([]string, 0, len(summary))
	for id := range summary {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
