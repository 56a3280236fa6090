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

package api

import (
	"github.com/gogpu/gputypes"
)

// Out parameters are pointers. A copy of an argument struct made to stage an override
// shares them with the original, so the application still receives the outputs.

// HandleInputs is implemented by argument structs that carry non-dispatchable input handles.
type HandleInputs interface {
	// MapHandles returns a copy of the arguments with every input handle replaced by fn(h).
	MapHandles(fn func(Handle) Handle) Args
}

// HandleCreator is implemented by argument structs whose call creates a non-dispatchable object.
type HandleCreator interface {
	CreatedHandle() (*Handle, ObjectType)
}

// HandleDestroyer is implemented by argument structs whose call destroys a non-dispatchable object.
type HandleDestroyer interface {
	DestroyedHandle() (Handle, ObjectType)
}

type InstanceCreateInfo struct {
	ApplicationName   string
	EnabledExtensions []string
	Link              *LayerLink
}

type CreateInstanceArgs struct {
	Info     *InstanceCreateInfo
	Instance *Dispatchable
}

func (a *CreateInstanceArgs) DispatchHandle() Dispatchable { return Dispatchable{} }

type DestroyInstanceArgs struct {
	Instance Dispatchable
}

func (a *DestroyInstanceArgs) DispatchHandle() Dispatchable { return a.Instance }

type EnumeratePhysicalDevicesArgs struct {
	Instance        Dispatchable
	PhysicalDevices *[]Dispatchable
}

func (a *EnumeratePhysicalDevicesArgs) DispatchHandle() Dispatchable { return a.Instance }

type DeviceCreateInfo struct {
	QueueCount        uint32
	EnabledExtensions []string
	Link              *LayerLink
}

type CreateDeviceArgs struct {
	PhysicalDevice Dispatchable
	Info           *DeviceCreateInfo
	Device         *Dispatchable
}

func (a *CreateDeviceArgs) DispatchHandle() Dispatchable { return a.PhysicalDevice }

type DestroyDeviceArgs struct {
	Device Dispatchable
}

func (a *DestroyDeviceArgs) DispatchHandle() Dispatchable { return a.Device }

type GetDeviceQueueArgs struct {
	Device     Dispatchable
	QueueIndex uint32
	Queue      *Dispatchable
}

func (a *GetDeviceQueueArgs) DispatchHandle() Dispatchable { return a.Device }

type BufferCreateInfo struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

type CreateBufferArgs struct {
	Device Dispatchable
	Info   *BufferCreateInfo
	Buffer *Handle
}

func (a *CreateBufferArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *CreateBufferArgs) CreatedHandle() (*Handle, ObjectType) { return a.Buffer, ObjectBuffer }

type DestroyBufferArgs struct {
	Device Dispatchable
	Buffer Handle
}

func (a *DestroyBufferArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *DestroyBufferArgs) DestroyedHandle() (Handle, ObjectType) { return a.Buffer, ObjectBuffer }

func (a *DestroyBufferArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Buffer = fn(a.Buffer)
	return &c
}

type MemoryAllocateInfo struct {
	Size        uint64
	HostVisible bool
}

type AllocateMemoryArgs struct {
	Device Dispatchable
	Info   *MemoryAllocateInfo
	Memory *Handle
}

func (a *AllocateMemoryArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *AllocateMemoryArgs) CreatedHandle() (*Handle, ObjectType) {
	return a.Memory, ObjectDeviceMemory
}

type FreeMemoryArgs struct {
	Device Dispatchable
	Memory Handle
}

func (a *FreeMemoryArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *FreeMemoryArgs) DestroyedHandle() (Handle, ObjectType) {
	return a.Memory, ObjectDeviceMemory
}

func (a *FreeMemoryArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Memory = fn(a.Memory)
	return &c
}

type BindBufferMemoryArgs struct {
	Device Dispatchable
	Buffer Handle
	Memory Handle
	Offset uint64
}

func (a *BindBufferMemoryArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *BindBufferMemoryArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Buffer = fn(a.Buffer)
	c.Memory = fn(a.Memory)
	return &c
}

type TextureCreateInfo struct {
	Label     string
	Size      gputypes.Extent3D
	Format    gputypes.TextureFormat
	Dimension gputypes.TextureDimension
	Usage     gputypes.TextureUsage
}

type CreateTextureArgs struct {
	Device  Dispatchable
	Info    *TextureCreateInfo
	Texture *Handle
}

func (a *CreateTextureArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *CreateTextureArgs) CreatedHandle() (*Handle, ObjectType) { return a.Texture, ObjectTexture }

type DestroyTextureArgs struct {
	Device  Dispatchable
	Texture Handle
}

func (a *DestroyTextureArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *DestroyTextureArgs) DestroyedHandle() (Handle, ObjectType) {
	return a.Texture, ObjectTexture
}

func (a *DestroyTextureArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Texture = fn(a.Texture)
	return &c
}

// ShaderModuleCreateInfo carries either WGSL source or SPIR-V words. Instrumenting validators
// replace WGSL with compiled SPIR-V and record themselves in InstrumentedBy.
type ShaderModuleCreateInfo struct {
	Label          string
	WGSL           string
	SPIRV          []uint32
	InstrumentedBy string
}

type CreateShaderModuleArgs struct {
	Device Dispatchable
	Info   *ShaderModuleCreateInfo
	Module *Handle
}

func (a *CreateShaderModuleArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *CreateShaderModuleArgs) CreatedHandle() (*Handle, ObjectType) {
	return a.Module, ObjectShaderModule
}

type DestroyShaderModuleArgs struct {
	Device Dispatchable
	Module Handle
}

func (a *DestroyShaderModuleArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *DestroyShaderModuleArgs) DestroyedHandle() (Handle, ObjectType) {
	return a.Module, ObjectShaderModule
}

func (a *DestroyShaderModuleArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Module = fn(a.Module)
	return &c
}

type CreateFenceArgs struct {
	Device   Dispatchable
	Signaled bool
	Fence    *Handle
}

func (a *CreateFenceArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *CreateFenceArgs) CreatedHandle() (*Handle, ObjectType) { return a.Fence, ObjectFence }

type DestroyFenceArgs struct {
	Device Dispatchable
	Fence  Handle
}

func (a *DestroyFenceArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *DestroyFenceArgs) DestroyedHandle() (Handle, ObjectType) { return a.Fence, ObjectFence }

func (a *DestroyFenceArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Fence = fn(a.Fence)
	return &c
}

// SubmitInfo lists the buffers a batch of work writes.
type SubmitInfo struct {
	WrittenBuffers []Handle
}

type QueueSubmitArgs struct {
	Queue   Dispatchable
	Submits []SubmitInfo
	// Fence is signaled when the work completes; it may be null.
	Fence Handle
}

func (a *QueueSubmitArgs) DispatchHandle() Dispatchable { return a.Queue }

func (a *QueueSubmitArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Submits = make([]SubmitInfo, len(a.Submits))
	for i, s := range a.Submits {
		bufs := make([]Handle, len(s.WrittenBuffers))
		for j, b := range s.WrittenBuffers {
			bufs[j] = fn(b)
		}
		c.Submits[i] = SubmitInfo{WrittenBuffers: bufs}
	}
	c.Fence = fn(a.Fence)
	return &c
}

type QueueWaitIdleArgs struct {
	Queue Dispatchable
}

func (a *QueueWaitIdleArgs) DispatchHandle() Dispatchable { return a.Queue }

type DeviceWaitIdleArgs struct {
	Device Dispatchable
}

func (a *DeviceWaitIdleArgs) DispatchHandle() Dispatchable { return a.Device }

type SetObjectNameArgs struct {
	Device     Dispatchable
	ObjectType ObjectType
	Object     Handle
	Name       string
}

func (a *SetObjectNameArgs) DispatchHandle() Dispatchable { return a.Device }

func (a *SetObjectNameArgs) MapHandles(fn func(Handle) Handle) Args {
	c := *a
	c.Object = fn(a.Object)
	return &c
}
