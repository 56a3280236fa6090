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

// Package objecttracker tracks the lifetime of every object and rejects calls that use a handle
// which was never created, was already destroyed or names another kind of object.
package objecttracker

import (
	"context"
	"encoding/json"
	"sort"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
)

const (
	ObjectTrackerType = "objecttracker"

	InvalidHandleID = "ObjectTracker-InvalidHandle"
	WrongTypeID     = "ObjectTracker-WrongObjectType"
	ObjectLeakID    = "ObjectTracker-ObjectLeak"
	DeviceLeakID    = "ObjectTracker-DeviceLeak"
)

// compile-time type assertions
var (
	_ chain.PreCallValidator = &ObjectTracker{}
	_ chain.PreCallRecorder  = &ObjectTracker{}
	_ chain.PostCallRecorder = &ObjectTracker{}
)

// ObjectTrackerFactory defines the factory function for ObjectTracker.
func ObjectTrackerFactory(name string, _ json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	return New(handle).WithName(name), nil
}

type object struct {
	typ   api.ObjectType
	label string
}

// ObjectTracker keeps the live objects of its Context. An instance-level tracker holds the
// devices created from the instance; a device-level tracker holds everything else.
type ObjectTracker struct {
	chain.Base
	handle   plugins.Handle
	reporter report.Reporter
	objects  map[api.Handle]*object
}

func New(handle plugins.Handle) *ObjectTracker {
	t := &ObjectTracker{handle: handle, objects: map[api.Handle]*object{}}
	return t.WithName(ObjectTrackerType)
}

// WithName sets the name of the validator.
func (t *ObjectTracker) WithName(name string) *ObjectTracker {
	t.Init(ObjectTrackerType, name)
	t.reporter = report.New(t.handle, t.TypedName())
	return t
}

func (t *ObjectTracker) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().
		Add(chain.PhaseValidate,
			api.FuncDestroyBuffer,
			api.FuncFreeMemory,
			api.FuncDestroyTexture,
			api.FuncDestroyShaderModule,
			api.FuncDestroyFence,
			api.FuncBindBufferMemory,
			api.FuncQueueSubmit,
			api.FuncSetObjectName,
		).
		Add(chain.PhaseRecord, api.FuncDestroyDevice, api.FuncDestroyInstance).
		Add(chain.PhasePost,
			api.FuncCreateDevice,
			api.FuncGetDeviceQueue,
			api.FuncCreateBuffer,
			api.FuncDestroyBuffer,
			api.FuncAllocateMemory,
			api.FuncFreeMemory,
			api.FuncCreateTexture,
			api.FuncDestroyTexture,
			api.FuncCreateShaderModule,
			api.FuncDestroyShaderModule,
			api.FuncCreateFence,
			api.FuncDestroyFence,
			api.FuncSetObjectName,
		)
}

// used lists the object handles a call consumes, with the type each must have.
func used(call *api.Call) []diagnostics.ObjectRef {
	switch a := call.Args.(type) {
	case *api.BindBufferMemoryArgs:
		return []diagnostics.ObjectRef{report.Object(api.ObjectBuffer, a.Buffer), report.Object(api.ObjectDeviceMemory, a.Memory)}
	case *api.QueueSubmitArgs:
		var refs []diagnostics.ObjectRef
		for _, s := range a.Submits {
			for _, b := range s.WrittenBuffers {
				refs = append(refs, report.Object(api.ObjectBuffer, b))
			}
		}
		return append(refs, report.Object(api.ObjectFence, a.Fence))
	case *api.SetObjectNameArgs:
		if a.ObjectType == api.ObjectDevice && a.Object == a.Device.Handle {
			return nil
		}
		return []diagnostics.ObjectRef{report.Object(a.ObjectType, a.Object)}
	case api.HandleDestroyer:
		h, typ := a.DestroyedHandle()
		return []diagnostics.ObjectRef{report.Object(typ, h)}
	}
	return nil
}

func (t *ObjectTracker) PreCallValidate(ctx context.Context, call *api.Call) bool {
	skip := false
	for _, ref := range used(call) {
		// Null handles are either legal (destroy, fence) or reported by parameter validation.
		if ref.Handle == api.NullHandle {
			continue
		}
		obj, ok := t.objects[ref.Handle]
		switch {
		case !ok:
			t.reporter.Errorf(ctx, InvalidHandleID, []diagnostics.ObjectRef{ref},
				"%s: invalid %s object %s", call.Func, ref.Type, ref.Handle)
			skip = true
		case obj.typ != ref.Type:
			t.reporter.Errorf(ctx, WrongTypeID, []diagnostics.ObjectRef{{Type: obj.typ, Handle: ref.Handle, Label: obj.label}},
				"%s: %s is a %s, not a %s", call.Func, ref.Handle, obj.typ, ref.Type)
			skip = true
		}
	}
	return skip
}

func (t *ObjectTracker) PreCallRecord(ctx context.Context, call *api.Call, _ *chain.CallState) {
	switch a := call.Args.(type) {
	case *api.DestroyDeviceArgs:
		t.reportLeaks(ctx, ObjectLeakID, call.Func, report.Object(api.ObjectDevice, a.Device.Handle))
		t.forgetInParent(ctx, a.Device.Handle)
	case *api.DestroyInstanceArgs:
		t.reportLeaks(ctx, DeviceLeakID, call.Func, report.Object(api.ObjectInstance, a.Instance.Handle))
	}
}

// reportLeaks reports every object still alive when its parent is destroyed, in handle order.
func (t *ObjectTracker) reportLeaks(ctx context.Context, id string, fn api.FuncID, parent diagnostics.ObjectRef) {
	handles := make([]api.Handle, 0, len(t.objects))
	for h, obj := range t.objects {
		if obj.typ != api.ObjectQueue {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		obj := t.objects[h]
		t.reporter.Errorf(ctx, id, []diagnostics.ObjectRef{parent, {Type: obj.typ, Handle: h, Label: obj.label}},
			"%s: %s %s has not been destroyed", fn, obj.typ, h)
	}
	clear(t.objects)
}

// forgetInParent removes a destroyed device from the instance tracker of the same name.
func (t *ObjectTracker) forgetInParent(ctx context.Context, device api.Handle) {
	if t.handle == nil || t.handle.Parent() == nil {
		return
	}
	parent, err := plugins.PluginByType[*ObjectTracker](t.handle.Parent(), t.TypedName().Name)
	if err != nil {
		log.FromContext(ctx).V(logutil.DEBUG).Info("No instance tracker for device", "device", device, "reason", err.Error())
		return
	}
	parent.Lock()
	defer parent.Unlock()
	delete(parent.objects, device)
}

func (t *ObjectTracker) PostCallRecord(_ context.Context, call *api.Call, _ *chain.CallState, result api.Result) {
	if result != api.Success {
		return
	}
	switch a := call.Args.(type) {
	case *api.CreateDeviceArgs:
		if a.Device != nil && !a.Device.IsNull() {
			t.objects[a.Device.Handle] = &object{typ: api.ObjectDevice}
		}
	case *api.GetDeviceQueueArgs:
		if a.Queue != nil && !a.Queue.IsNull() {
			t.objects[a.Queue.Handle] = &object{typ: api.ObjectQueue}
		}
	case *api.SetObjectNameArgs:
		if obj, ok := t.objects[a.Object]; ok {
			obj.label = a.Name
		}
		t.reporter.Label(a.Object, a.Name)
	case api.HandleCreator:
		out, typ := a.CreatedHandle()
		if out != nil && *out != api.NullHandle {
			t.objects[*out] = &object{typ: typ, label: createLabel(call.Args)}
		}
	case api.HandleDestroyer:
		h, _ := a.DestroyedHandle()
		delete(t.objects, h)
	}
}

// createLabel returns the label given in a create info.
func createLabel(args api.Args) string {
	switch a := args.(type) {
	case *api.CreateBufferArgs:
		if a.Info != nil {
			return a.Info.Label
		}
	case *api.CreateTextureArgs:
		if a.Info != nil {
			return a.Info.Label
		}
	case *api.CreateShaderModuleArgs:
		if a.Info != nil {
			return a.Info.Label
		}
	}
	return ""
}

// Tracked returns the number of live objects of the given type.
func (t *ObjectTracker) Tracked(typ api.ObjectType) int {
	t.RLock()
	defer t.RUnlock()
	n := 0
	for _, obj := range t.objects {
		if obj.typ == typ {
			n++
		}
	}
	return n
}

// Label returns the name of a live object, if it has one.
func (t *ObjectTracker) Label(h api.Handle) (string, bool) {
	t.RLock()
	defer t.RUnlock()
	obj, ok := t.objects[h]
	if !ok {
		return "", false
	}
	return obj.label, true
}
