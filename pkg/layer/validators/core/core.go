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

// Package core validates calls against the state of the objects they use: memory bindings,
// fence lifetimes and shader sources.
package core

import (
	"context"
	"encoding/json"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/shader"
)

const (
	CoreType = "core"

	InvalidWGSLID   = "Core-ShaderModule-InvalidWGSL"
	FenceInUseID    = "Core-QueueSubmit-FenceInUse"
	DestroyFenceID  = "Core-DestroyFence-InUse"
	AlreadyBoundID  = "Core-BindBufferMemory-AlreadyBound"
	BindOffsetID    = "Core-BindBufferMemory-Offset"
	BindSizeID      = "Core-BindBufferMemory-Size"
	UnboundBufferID = "Core-QueueSubmit-UnboundBuffer"
)

// compile-time type assertions
var (
	_ chain.PreCallValidator = &Core{}
	_ chain.PostCallRecorder = &Core{}
)

// CoreFactory defines the factory function for Core.
func CoreFactory(name string, _ json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	return New(handle).WithName(name), nil
}

type buffer struct {
	size   uint64
	memory api.Handle
}

type fence struct {
	// queue is the queue the fence was submitted on, or null when no work is pending on it.
	queue api.Handle
}

// Core holds the device state the checks need.
type Core struct {
	chain.Base
	handle   plugins.Handle
	reporter report.Reporter
	compiler *shader.Compiler

	buffers map[api.Handle]*buffer
	memory  map[api.Handle]uint64
	fences  map[api.Handle]*fence
}

func New(handle plugins.Handle) *Core {
	c := &Core{
		handle:   handle,
		compiler: shader.Default,
		buffers:  map[api.Handle]*buffer{},
		memory:   map[api.Handle]uint64{},
		fences:   map[api.Handle]*fence{},
	}
	return c.WithName(CoreType)
}

// WithName sets the name of the validator.
func (c *Core) WithName(name string) *Core {
	c.Init(CoreType, name)
	c.reporter = report.New(c.handle, c.TypedName())
	return c
}

func (c *Core) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().
		Add(chain.PhaseValidate,
			api.FuncCreateShaderModule,
			api.FuncBindBufferMemory,
			api.FuncQueueSubmit,
			api.FuncDestroyFence,
		).
		Add(chain.PhasePost,
			api.FuncCreateBuffer,
			api.FuncDestroyBuffer,
			api.FuncAllocateMemory,
			api.FuncFreeMemory,
			api.FuncBindBufferMemory,
			api.FuncCreateFence,
			api.FuncDestroyFence,
			api.FuncQueueSubmit,
			api.FuncQueueWaitIdle,
			api.FuncDeviceWaitIdle,
		)
}

func (c *Core) PreCallValidate(ctx context.Context, call *api.Call) bool {
	switch a := call.Args.(type) {
	case *api.CreateShaderModuleArgs:
		if a.Info == nil || a.Info.WGSL == "" {
			return false
		}
		if _, err := c.compiler.Compile(a.Info.WGSL); err != nil {
			c.reporter.Errorf(ctx, InvalidWGSLID, nil, "%s: %s: %v", call.Func, labelOr(a.Info.Label), err)
			return true
		}
	case *api.BindBufferMemoryArgs:
		return c.validateBind(ctx, call.Func, a)
	case *api.QueueSubmitArgs:
		return c.validateSubmit(ctx, call.Func, a)
	case *api.DestroyFenceArgs:
		if f, ok := c.fences[a.Fence]; ok && f.queue != api.NullHandle {
			c.reporter.Errorf(ctx, DestroyFenceID, report.Objects(api.ObjectFence, a.Fence),
				"%s: fence %s is still in use by queue %s", call.Func, a.Fence, f.queue)
			return true
		}
	}
	return false
}

func (c *Core) validateBind(ctx context.Context, fn api.FuncID, a *api.BindBufferMemoryArgs) bool {
	buf, ok := c.buffers[a.Buffer]
	if !ok {
		return false
	}
	skip := false
	if buf.memory != api.NullHandle {
		c.reporter.Errorf(ctx, AlreadyBoundID, report.Objects(api.ObjectBuffer, a.Buffer),
			"%s: buffer %s is already bound to memory %s", fn, a.Buffer, buf.memory)
		skip = true
	}
	size, ok := c.memory[a.Memory]
	if !ok {
		return skip
	}
	refs := report.Objects(api.ObjectDeviceMemory, a.Memory)
	switch {
	case a.Offset >= size:
		c.reporter.Errorf(ctx, BindOffsetID, refs, "%s: memoryOffset %d must be less than the allocation size %d", fn, a.Offset, size)
		skip = true
	case buf.size > size-a.Offset:
		c.reporter.Errorf(ctx, BindSizeID, refs, "%s: buffer of %d bytes does not fit at offset %d of a %d byte allocation",
			fn, buf.size, a.Offset, size)
		skip = true
	}
	return skip
}

func (c *Core) validateSubmit(ctx context.Context, fn api.FuncID, a *api.QueueSubmitArgs) bool {
	skip := false
	if f, ok := c.fences[a.Fence]; ok && f.queue != api.NullHandle {
		c.reporter.Errorf(ctx, FenceInUseID, report.Objects(api.ObjectFence, a.Fence),
			"%s: fence %s is already submitted on queue %s", fn, a.Fence, f.queue)
		skip = true
	}
	for _, s := range a.Submits {
		for _, h := range s.WrittenBuffers {
			if buf, ok := c.buffers[h]; ok && buf.memory == api.NullHandle {
				c.reporter.Errorf(ctx, UnboundBufferID, report.Objects(api.ObjectBuffer, h),
					"%s: buffer %s is written before memory was bound to it", fn, h)
				skip = true
			}
		}
	}
	return skip
}

func (c *Core) PostCallRecord(_ context.Context, call *api.Call, _ *chain.CallState, result api.Result) {
	switch a := call.Args.(type) {
	case *api.CreateBufferArgs:
		if result == api.Success && a.Info != nil && a.Buffer != nil {
			c.buffers[*a.Buffer] = &buffer{size: a.Info.Size}
		}
	case *api.AllocateMemoryArgs:
		if result == api.Success && a.Info != nil && a.Memory != nil {
			c.memory[*a.Memory] = a.Info.Size
		}
	case *api.CreateFenceArgs:
		if result == api.Success && a.Fence != nil {
			c.fences[*a.Fence] = &fence{}
		}
	case *api.BindBufferMemoryArgs:
		if buf, ok := c.buffers[a.Buffer]; ok && result == api.Success {
			buf.memory = a.Memory
		}
	case *api.QueueSubmitArgs:
		if f, ok := c.fences[a.Fence]; ok && result == api.Success {
			f.queue = a.Queue.Handle
		}
	case *api.QueueWaitIdleArgs:
		for _, f := range c.fences {
			if f.queue == a.Queue.Handle {
				f.queue = api.NullHandle
			}
		}
	case *api.DeviceWaitIdleArgs:
		for _, f := range c.fences {
			f.queue = api.NullHandle
		}
	case *api.DestroyBufferArgs:
		delete(c.buffers, a.Buffer)
	case *api.FreeMemoryArgs:
		delete(c.memory, a.Memory)
	case *api.DestroyFenceArgs:
		delete(c.fences, a.Fence)
	}
}

// PendingFences returns the number of fences with work outstanding.
func (c *Core) PendingFences() int {
	c.RLock()
	defer c.RUnlock()
	n := 0
	for _, f := range c.fences {
		if f.queue != api.NullHandle {
			n++
		}
	}
	return n
}

func labelOr(label string) string {
	if label == "" {
		return "shader module"
	}
	return "shader module '" + label + "'"
}
