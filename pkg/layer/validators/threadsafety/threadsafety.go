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

// Package threadsafety reports externally synchronized objects used by two calls at once.
package threadsafety

import (
	"context"
	"encoding/json"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
)

const (
	ThreadSafetyType = "threadsafety"

	// MultipleThreadsID is reported when an object is used while another call still holds it.
	MultipleThreadsID = "Threading-MultipleThreads-Write"

	usesKey chain.StateKey = "threadsafety.uses"
)

// compile-time type assertions
var (
	_ chain.PreCallRecorder  = &ThreadSafety{}
	_ chain.PostCallRecorder = &ThreadSafety{}
)

// ThreadSafetyFactory defines the factory function for ThreadSafety.
func ThreadSafetyFactory(name string, _ json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	return New(handle).WithName(name), nil
}

type use struct {
	count int
	fn    api.FuncID
}

// ThreadSafety counts the calls currently using each externally synchronized object. A record
// hook finding a non-zero count means two calls overlap on the object.
type ThreadSafety struct {
	chain.Base
	reporter report.Reporter
	handle   plugins.Handle
	inUse    map[api.Handle]*use
}

func New(handle plugins.Handle) *ThreadSafety {
	t := &ThreadSafety{handle: handle, inUse: map[api.Handle]*use{}}
	t.Init(ThreadSafetyType, ThreadSafetyType)
	t.reporter = report.New(handle, t.TypedName())
	return t
}

// WithName sets the name of the validator.
func (t *ThreadSafety) WithName(name string) *ThreadSafety {
	t.Init(ThreadSafetyType, name)
	t.reporter = report.New(t.handle, t.TypedName())
	return t
}

func (t *ThreadSafety) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().Add(chain.PhaseRecord|chain.PhasePost, chain.AllFuncs)
}

// synchronized returns the objects the application must not use from two calls at once.
func synchronized(call *api.Call) []diagnostics.ObjectRef {
	switch a := call.Args.(type) {
	case *api.DestroyInstanceArgs:
		return []diagnostics.ObjectRef{{Type: api.ObjectInstance, Handle: a.Instance.Handle}}
	case *api.DestroyDeviceArgs:
		return []diagnostics.ObjectRef{{Type: api.ObjectDevice, Handle: a.Device.Handle}}
	case *api.QueueSubmitArgs:
		refs := []diagnostics.ObjectRef{{Type: api.ObjectQueue, Handle: a.Queue.Handle}}
		if a.Fence != api.NullHandle {
			refs = append(refs, diagnostics.ObjectRef{Type: api.ObjectFence, Handle: a.Fence})
		}
		return refs
	case *api.QueueWaitIdleArgs:
		return []diagnostics.ObjectRef{{Type: api.ObjectQueue, Handle: a.Queue.Handle}}
	case *api.BindBufferMemoryArgs:
		return []diagnostics.ObjectRef{{Type: api.ObjectBuffer, Handle: a.Buffer}}
	case *api.SetObjectNameArgs:
		return []diagnostics.ObjectRef{{Type: a.ObjectType, Handle: a.Object}}
	case api.HandleDestroyer:
		h, typ := a.DestroyedHandle()
		return []diagnostics.ObjectRef{{Type: typ, Handle: h}}
	}
	return nil
}

func (t *ThreadSafety) PreCallRecord(ctx context.Context, call *api.Call, state *chain.CallState) {
	var held []api.Handle
	for _, ref := range synchronized(call) {
		if ref.Handle == api.NullHandle {
			continue
		}
		u, ok := t.inUse[ref.Handle]
		if !ok {
			u = &use{}
			t.inUse[ref.Handle] = u
		}
		if u.count > 0 {
			t.reporter.Errorf(ctx, MultipleThreadsID, report.Objects(ref.Type, ref.Handle),
				"%s: %s is in use by %s on another thread", call.Func, ref.Type, u.fn)
		}
		u.count++
		u.fn = call.Func
		held = append(held, ref.Handle)
	}
	if len(held) > 0 {
		state.Write(usesKey, held)
	}
}

func (t *ThreadSafety) PostCallRecord(_ context.Context, _ *api.Call, state *chain.CallState, _ api.Result) {
	held, err := chain.ReadCallStateKey[[]api.Handle](state, usesKey)
	if err != nil {
		return
	}
	for _, h := range held {
		u, ok := t.inUse[h]
		if !ok {
			continue
		}
		u.count--
		if u.count <= 0 {
			delete(t.inUse, h)
		}
	}
}

// InUse returns the number of objects currently held by in-flight calls.
func (t *ThreadSafety) InUse() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.inUse)
}
