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

import "fmt"

// Handle is an opaque non-dispatchable object handle (buffer, memory, shader module, fence,
// texture). With handle wrapping enabled the application only ever sees synthetic values.
type Handle uint64

// NullHandle is the null value of every handle type.
const NullHandle Handle = 0

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint64(h))
}

// DispatchKey identifies the dispatch table of an instance or device. Every dispatchable
// handle created under the same instance or device carries the same key.
type DispatchKey uint64

// Dispatchable is a handle to a dispatchable object: instance, physical device, device or queue.
type Dispatchable struct {
	Key    DispatchKey
	Handle Handle
}

// IsNull reports whether d is the null dispatchable handle.
func (d Dispatchable) IsNull() bool {
	return d.Handle == NullHandle
}

func (d Dispatchable) String() string {
	return fmt.Sprintf("%s[key=0x%x]", d.Handle, uint64(d.Key))
}

// ObjectType names the kind of object a handle refers to.
type ObjectType int

const (
	ObjectUnknown ObjectType = iota
	ObjectInstance
	ObjectPhysicalDevice
	ObjectDevice
	ObjectQueue
	ObjectBuffer
	ObjectDeviceMemory
	ObjectShaderModule
	ObjectFence
	ObjectTexture
)

var objectTypeNames = map[ObjectType]string{
	ObjectUnknown:        "Unknown",
	ObjectInstance:       "Instance",
	ObjectPhysicalDevice: "PhysicalDevice",
	ObjectDevice:         "Device",
	ObjectQueue:          "Queue",
	ObjectBuffer:         "Buffer",
	ObjectDeviceMemory:   "DeviceMemory",
	ObjectShaderModule:   "ShaderModule",
	ObjectFence:          "Fence",
	ObjectTexture:        "Texture",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}
