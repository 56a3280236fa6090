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

// Package memdriver is an in-memory driver that sits at the bottom of the layer stack. It keeps
// just enough object state to answer every intercepted function and records what it was called
// with, so tests can observe exactly what the layer forwarded.
package memdriver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

// realHandleBase marks driver handles so they are easy to tell apart from synthetic ones.
const realHandleBase = api.Handle(0xD0000000_00000000)

type device struct {
	instance api.DispatchKey
	queues   []api.Dispatchable
}

// Driver implements api.ProcResolver over in-memory objects.
type Driver struct {
	nextHandle atomic.Uint64
	nextKey    atomic.Uint64
	commands   map[string]*api.Command
	failures   map[api.FuncID]api.Result
	physical   int

	mu        sync.Mutex
	instances map[api.Handle]api.DispatchKey
	physicals map[api.Handle]api.DispatchKey
	devices   map[api.Handle]*device
	objects   map[api.Handle]api.ObjectType
	calls     map[api.FuncID]int
	lastArgs  map[api.FuncID]api.Args
	unknown   []api.Handle
}

// Option configures a Driver.
type Option func(*Driver)

// WithFailure makes every call of f return result without touching driver state.
func WithFailure(f api.FuncID, result api.Result) Option {
	return func(d *Driver) { d.failures[f] = result }
}

// WithPhysicalDevices sets how many physical devices each instance reports.
func WithPhysicalDevices(n int) Option {
	return func(d *Driver) { d.physical = n }
}

func New(opts ...Option) *Driver {
	d := &Driver{
		failures:  map[api.FuncID]api.Result{},
		physical:  1,
		instances: map[api.Handle]api.DispatchKey{},
		physicals: map[api.Handle]api.DispatchKey{},
		devices:   map[api.Handle]*device{},
		objects:   map[api.Handle]api.ObjectType{},
		calls:     map[api.FuncID]int{},
		lastArgs:  map[api.FuncID]api.Args{},
	}
	for _, opt := range opts {
		opt(d)
	}
	handlers := map[api.FuncID]func(api.Args) api.Result{
		api.FuncCreateInstance:           d.createInstance,
		api.FuncDestroyInstance:          d.destroyInstance,
		api.FuncEnumeratePhysicalDevices: d.enumeratePhysicalDevices,
		api.FuncCreateDevice:             d.createDevice,
		api.FuncDestroyDevice:            d.destroyDevice,
		api.FuncGetDeviceQueue:           d.getDeviceQueue,
		api.FuncCreateBuffer:             d.createBuffer,
		api.FuncDestroyBuffer:            d.destroyObject,
		api.FuncAllocateMemory:           d.allocateMemory,
		api.FuncFreeMemory:               d.destroyObject,
		api.FuncBindBufferMemory:         d.bindBufferMemory,
		api.FuncCreateTexture:            d.createTexture,
		api.FuncDestroyTexture:           d.destroyObject,
		api.FuncCreateShaderModule:       d.createShaderModule,
		api.FuncDestroyShaderModule:      d.destroyObject,
		api.FuncCreateFence:              d.createFence,
		api.FuncDestroyFence:             d.destroyObject,
		api.FuncQueueSubmit:              d.queueSubmit,
		api.FuncQueueWaitIdle:            d.noop,
		api.FuncDeviceWaitIdle:           d.noop,
		api.FuncSetObjectName:            d.setObjectName,
	}
	d.commands = make(map[string]*api.Command, len(handlers))
	for f, h := range handlers {
		d.commands[f.String()] = &api.Command{Name: f.String(), Invoke: d.invoker(f, h)}
	}
	return d
}

// GetProcAddr returns the driver entry point for name, or nil.
func (d *Driver) GetProcAddr(name string) *api.Command {
	return d.commands[name]
}

// Link returns the layer link pointing at the driver.
func (d *Driver) Link() *api.LayerLink {
	return &api.LayerLink{Next: d}
}

func (d *Driver) invoker(f api.FuncID, h func(api.Args) api.Result) api.Handler {
	return func(_ context.Context, call *api.Call) api.Result {
		d.mu.Lock()
		d.calls[f]++
		d.lastArgs[f] = call.Args
		d.mu.Unlock()
		if r, ok := d.failures[f]; ok {
			return r
		}
		return h(call.Args)
	}
}

// Calls returns how often f reached the driver.
func (d *Driver) Calls(f api.FuncID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[f]
}

// LastArgs returns the arguments of the latest call of f as the driver received them.
func (d *Driver) LastArgs(f api.FuncID) api.Args {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastArgs[f]
}

// UnknownHandles returns the non-null handles the driver was asked to use but never created.
func (d *Driver) UnknownHandles() []api.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.Handle(nil), d.unknown...)
}

// Live reports whether the driver knows h as a live non-dispatchable object.
func (d *Driver) Live(h api.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[h]
	return ok
}

// LiveObjects returns the number of live non-dispatchable objects.
func (d *Driver) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

func (d *Driver) newHandle() api.Handle {
	return realHandleBase | api.Handle(d.nextHandle.Add(1))
}

func (d *Driver) newKey() api.DispatchKey {
	return api.DispatchKey(d.nextKey.Add(1))
}

// use checks that h is null or live. Callers hold d.mu.
func (d *Driver) use(h api.Handle) bool {
	if h == api.NullHandle {
		return true
	}
	if _, ok := d.objects[h]; ok {
		return true
	}
	d.unknown = append(d.unknown, h)
	return false
}
