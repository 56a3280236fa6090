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

package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
)

// Phase is one of the three hook points of a call. Phases combine as a bit set in subscriptions.
type Phase uint8

const (
	PhaseValidate Phase = 1 << iota
	PhaseRecord
	PhasePost

	AllPhases = PhaseValidate | PhaseRecord | PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhaseValidate:
		return "PreCallValidate"
	case PhaseRecord:
		return "PreCallRecord"
	case PhasePost:
		return "PostCallRecord"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Validator is a member of a chain. It declares the functions it hooks and exposes the lock the
// chain holds around each hook: shared for validation, exclusive for recording.
type Validator interface {
	plugins.Plugin
	Subscriptions() Subscriptions
	RLock()
	RUnlock()
	Lock()
	Unlock()
}

// PreCallValidator inspects a call before it is forwarded. Returning true vetoes the call.
// It runs under the validator's shared lock and must not mutate state.
type PreCallValidator interface {
	Validator
	PreCallValidate(ctx context.Context, call *api.Call) bool
}

// PreCallRecorder updates state before a call is forwarded and may stage an argument override
// through the call state.
type PreCallRecorder interface {
	Validator
	PreCallRecord(ctx context.Context, call *api.Call, state *CallState)
}

// PostCallRecorder updates state after a call returned.
type PostCallRecorder interface {
	Validator
	PostCallRecord(ctx context.Context, call *api.Call, state *CallState, result api.Result)
}

// AllFuncs subscribes a phase for every intercepted function.
const AllFuncs api.FuncID = -1

// Subscriptions maps functions to the phases a validator hooks for them.
type Subscriptions map[api.FuncID]Phase

// NewSubscriptions returns an empty subscription set.
func NewSubscriptions() Subscriptions {
	return Subscriptions{}
}

// Add subscribes phases for the given functions and returns s for chaining.
func (s Subscriptions) Add(phases Phase, funcs ...api.FuncID) Subscriptions {
	for _, f := range funcs {
		s[f] |= phases
	}
	return s
}

// Phases returns the phases hooked for f.
func (s Subscriptions) Phases(f api.FuncID) Phase {
	return s[f] | s[AllFuncs]
}

// Base provides the plugin identity and the hook lock. Validators embed it.
type Base struct {
	mu        sync.RWMutex
	typedName plugins.TypedName
}

// Init sets the plugin identity. It must be called before the validator joins a chain.
func (b *Base) Init(pluginType, name string) {
	b.typedName = plugins.TypedName{Type: pluginType, Name: name}
}

func (b *Base) TypedName() plugins.TypedName { return b.typedName }

func (b *Base) RLock()   { b.mu.RLock() }
func (b *Base) RUnlock() { b.mu.RUnlock() }
func (b *Base) Lock()    { b.mu.Lock() }
func (b *Base) Unlock()  { b.mu.Unlock() }
