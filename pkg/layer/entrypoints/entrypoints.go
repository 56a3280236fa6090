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

// Package entrypoints exposes one typed function per intercepted entry point. Each builds the
// argument struct of its function and hands the call to the dispatch trampoline.
package entrypoints

import (
	"context"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/dispatch"
)

// Layer is the application-facing surface of a Registry.
type Layer struct {
	reg *dispatch.Registry
}

// New returns the entry points of reg. A nil reg uses dispatch.Default().
func New(reg *dispatch.Registry) *Layer {
	if reg == nil {
		reg = dispatch.Default()
	}
	return &Layer{reg: reg}
}

func (l *Layer) call(ctx context.Context, f api.FuncID, args api.Args) api.Result {
	return l.reg.Dispatch(ctx, &api.Call{Func: f, Args: args})
}

// GetProcAddr resolves name for handle. See dispatch.Registry.GetProcAddr.
func (l *Layer) GetProcAddr(handle api.Dispatchable, name string) *api.Command {
	return l.reg.GetProcAddr(handle, name)
}

func (l *Layer) CreateInstance(ctx context.Context, info *api.InstanceCreateInfo) (api.Dispatchable, api.Result) {
	var instance api.Dispatchable
	r := l.call(ctx, api.FuncCreateInstance, &api.CreateInstanceArgs{Info: info, Instance: &instance})
	return instance, r
}

func (l *Layer) DestroyInstance(ctx context.Context, instance api.Dispatchable) api.Result {
	return l.call(ctx, api.FuncDestroyInstance, &api.DestroyInstanceArgs{Instance: instance})
}

func (l *Layer) EnumeratePhysicalDevices(ctx context.Context, instance api.Dispatchable) ([]api.Dispatchable, api.Result) {
	var physical []api.Dispatchable
	r := l.call(ctx, api.FuncEnumeratePhysicalDevices, &api.EnumeratePhysicalDevicesArgs{Instance: instance, PhysicalDevices: &physical})
	return physical, r
}

func (l *Layer) CreateDevice(ctx context.Context, physical api.Dispatchable, info *api.DeviceCreateInfo) (api.Dispatchable, api.Result) {
	var dev api.Dispatchable
	r := l.call(ctx, api.FuncCreateDevice, &api.CreateDeviceArgs{PhysicalDevice: physical, Info: info, Device: &dev})
	return dev, r
}

func (l *Layer) DestroyDevice(ctx context.Context, dev api.Dispatchable) api.Result {
	return l.call(ctx, api.FuncDestroyDevice, &api.DestroyDeviceArgs{Device: dev})
}

func (l *Layer) GetDeviceQueue(ctx context.Context, dev api.Dispatchable, index uint32) (api.Dispatchable, api.Result) {
	var queue api.Dispatchable
	r := l.call(ctx, api.FuncGetDeviceQueue, &api.GetDeviceQueueArgs{Device: dev, QueueIndex: index, Queue: &queue})
	return queue, r
}

func (l *Layer) CreateBuffer(ctx context.Context, dev api.Dispatchable, info *api.BufferCreateInfo) (api.Handle, api.Result) {
	var buf api.Handle
	r := l.call(ctx, api.FuncCreateBuffer, &api.CreateBufferArgs{Device: dev, Info: info, Buffer: &buf})
	return buf, r
}

func (l *Layer) DestroyBuffer(ctx context.Context, dev api.Dispatchable, buf api.Handle) api.Result {
	return l.call(ctx, api.FuncDestroyBuffer, &api.DestroyBufferArgs{Device: dev, Buffer: buf})
}

func (l *Layer) AllocateMemory(ctx context.Context, dev api.Dispatchable, info *api.MemoryAllocateInfo) (api.Handle, api.Result) {
	var mem api.Handle
	r := l.call(ctx, api.FuncAllocateMemory, &api.AllocateMemoryArgs{Device: dev, Info: info, Memory: &mem})
	return mem, r
}

func (l *Layer) FreeMemory(ctx context.Context, dev api.Dispatchable, mem api.Handle) api.Result {
	return l.call(ctx, api.FuncFreeMemory, &api.FreeMemoryArgs{Device: dev, Memory: mem})
}

func (l *Layer) BindBufferMemory(ctx context.Context, dev api.Dispatchable, buf, mem api.Handle, offset uint64) api.Result {
	return l.call(ctx, api.FuncBindBufferMemory, &api.BindBufferMemoryArgs{Device: dev, Buffer: buf, Memory: mem, Offset: offset})
}

func (l *Layer) CreateTexture(ctx context.Context, dev api.Dispatchable, info *api.TextureCreateInfo) (api.Handle, api.Result) {
	var tex api.Handle
	r := l.call(ctx, api.FuncCreateTexture, &api.CreateTextureArgs{Device: dev, Info: info, Texture: &tex})
	return tex, r
}

func (l *Layer) DestroyTexture(ctx context.Context, dev api.Dispatchable, tex api.Handle) api.Result {
	return l.call(ctx, api.FuncDestroyTexture, &api.DestroyTextureArgs{Device: dev, Texture: tex})
}

func (l *Layer) CreateShaderModule(ctx context.Context, dev api.Dispatchable, info *api.ShaderModuleCreateInfo) (api.Handle, api.Result) {
	var module api.Handle
	r := l.call(ctx, api.FuncCreateShaderModule, &api.CreateShaderModuleArgs{Device: dev, Info: info, Module: &module})
	return module, r
}

func (l *Layer) DestroyShaderModule(ctx context.Context, dev api.Dispatchable, module api.Handle) api.Result {
	return l.call(ctx, api.FuncDestroyShaderModule, &api.DestroyShaderModuleArgs{Device: dev, Module: module})
}

func (l *Layer) CreateFence(ctx context.Context, dev api.Dispatchable, signaled bool) (api.Handle, api.Result) {
	var fence api.Handle
	r := l.call(ctx, api.FuncCreateFence, &api.CreateFenceArgs{Device: dev, Signaled: signaled, Fence: &fence})
	return fence, r
}

func (l *Layer) DestroyFence(ctx context.Context, dev api.Dispatchable, fence api.Handle) api.Result {
	return l.call(ctx, api.FuncDestroyFence, &api.DestroyFenceArgs{Device: dev, Fence: fence})
}

// QueueSubmit submits work to queue. fence may be api.NullHandle.
func (l *Layer) QueueSubmit(ctx context.Context, queue api.Dispatchable, submits []api.SubmitInfo, fence api.Handle) api.Result {
	return l.call(ctx, api.FuncQueueSubmit, &api.QueueSubmitArgs{Queue: queue, Submits: submits, Fence: fence})
}

func (l *Layer) QueueWaitIdle(ctx context.Context, queue api.Dispatchable) api.Result {
	return l.call(ctx, api.FuncQueueWaitIdle, &api.QueueWaitIdleArgs{Queue: queue})
}

func (l *Layer) DeviceWaitIdle(ctx context.Context, dev api.Dispatchable) api.Result {
	return l.call(ctx, api.FuncDeviceWaitIdle, &api.DeviceWaitIdleArgs{Device: dev})
}

// SetObjectName labels object for diagnostics. It needs api.ExtDebugUtils enabled on the instance
// or the device.
func (l *Layer) SetObjectName(ctx context.Context, dev api.Dispatchable, typ api.ObjectType, object api.Handle, name string) api.Result {
	return l.call(ctx, api.FuncSetObjectName, &api.SetObjectNameArgs{Device: dev, ObjectType: typ, Object: object, Name: name})
}
