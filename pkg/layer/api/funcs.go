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

// FuncID identifies an intercepted function. Values are dense so per-function tables can be arrays.
type FuncID int

const (
	FuncCreateInstance FuncID = iota
	FuncDestroyInstance
	FuncEnumeratePhysicalDevices
	FuncCreateDevice
	FuncDestroyDevice
	FuncGetDeviceQueue
	FuncCreateBuffer
	FuncDestroyBuffer
	FuncAllocateMemory
	FuncFreeMemory
	FuncBindBufferMemory
	FuncCreateTexture
	FuncDestroyTexture
	FuncCreateShaderModule
	FuncDestroyShaderModule
	FuncCreateFence
	FuncDestroyFence
	FuncQueueSubmit
	FuncQueueWaitIdle
	FuncDeviceWaitIdle
	FuncSetObjectName

	// NumFuncs is the number of intercepted functions.
	NumFuncs
)

// Level is the scope a function or Context belongs to.
type Level int

const (
	LevelInstance Level = iota
	LevelDevice
)

func (l Level) String() string {
	switch l {
	case LevelInstance:
		return "instance"
	case LevelDevice:
		return "device"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// FuncFlags describe the lifecycle role of a function.
type FuncFlags uint8

const (
	// FlagCreatesContext marks the functions that create a top-level object and its Context.
	FlagCreatesContext FuncFlags = 1 << iota
	// FlagDestroysContext marks the functions that destroy a top-level object and its Context.
	FlagDestroysContext
	// FlagTeardown marks destroy and free functions. They cannot be vetoed.
	FlagTeardown
)

// ExtDebugUtils is the instance extension that exposes object naming.
const ExtDebugUtils = "GPU_EXT_debug_utils"

// FuncInfo is the catalogue entry for one intercepted function.
type FuncInfo struct {
	ID    FuncID
	Name  string
	Level Level
	// Extension is empty for core functions.
	Extension string
	Flags     FuncFlags
}

// IsTeardown reports whether the function always reaches the driver regardless of vetoes.
func (i FuncInfo) IsTeardown() bool {
	return i.Flags&FlagTeardown != 0
}

var catalogue = [NumFuncs]FuncInfo{
	FuncCreateInstance:           {Name: "gpuCreateInstance", Level: LevelInstance, Flags: FlagCreatesContext},
	FuncDestroyInstance:          {Name: "gpuDestroyInstance", Level: LevelInstance, Flags: FlagDestroysContext | FlagTeardown},
	FuncEnumeratePhysicalDevices: {Name: "gpuEnumeratePhysicalDevices", Level: LevelInstance},
	FuncCreateDevice:             {Name: "gpuCreateDevice", Level: LevelInstance, Flags: FlagCreatesContext},
	FuncDestroyDevice:            {Name: "gpuDestroyDevice", Level: LevelDevice, Flags: FlagDestroysContext | FlagTeardown},
	FuncGetDeviceQueue:           {Name: "gpuGetDeviceQueue", Level: LevelDevice},
	FuncCreateBuffer:             {Name: "gpuCreateBuffer", Level: LevelDevice},
	FuncDestroyBuffer:            {Name: "gpuDestroyBuffer", Level: LevelDevice, Flags: FlagTeardown},
	FuncAllocateMemory:           {Name: "gpuAllocateMemory", Level: LevelDevice},
	FuncFreeMemory:               {Name: "gpuFreeMemory", Level: LevelDevice, Flags: FlagTeardown},
	FuncBindBufferMemory:         {Name: "gpuBindBufferMemory", Level: LevelDevice},
	FuncCreateTexture:            {Name: "gpuCreateTexture", Level: LevelDevice},
	FuncDestroyTexture:           {Name: "gpuDestroyTexture", Level: LevelDevice, Flags: FlagTeardown},
	FuncCreateShaderModule:       {Name: "gpuCreateShaderModule", Level: LevelDevice},
	FuncDestroyShaderModule:      {Name: "gpuDestroyShaderModule", Level: LevelDevice, Flags: FlagTeardown},
	FuncCreateFence:              {Name: "gpuCreateFence", Level: LevelDevice},
	FuncDestroyFence:             {Name: "gpuDestroyFence", Level: LevelDevice, Flags: FlagTeardown},
	FuncQueueSubmit:              {Name: "gpuQueueSubmit", Level: LevelDevice},
	FuncQueueWaitIdle:            {Name: "gpuQueueWaitIdle", Level: LevelDevice},
	FuncDeviceWaitIdle:           {Name: "gpuDeviceWaitIdle", Level: LevelDevice},
	FuncSetObjectName:            {Name: "gpuSetObjectName", Level: LevelDevice, Extension: ExtDebugUtils},
}

var funcsByName = func() map[string]FuncID {
	m := make(map[string]FuncID, NumFuncs)
	for id := range catalogue {
		catalogue[id].ID = FuncID(id)
		m[catalogue[id].Name] = FuncID(id)
	}
	return m
}()

// Info returns the catalogue entry of f.
func (f FuncID) Info() FuncInfo {
	if f < 0 || f >= NumFuncs {
		return FuncInfo{ID: f, Name: fmt.Sprintf("FuncID(%d)", int(f))}
	}
	return catalogue[f]
}

func (f FuncID) String() string {
	return f.Info().Name
}

// FuncByName looks up an intercepted function by its entry point name.
func FuncByName(name string) (FuncID, bool) {
	id, ok := funcsByName[name]
	return id, ok
}

// Funcs returns every intercepted function in catalogue order.
func Funcs() []FuncID {
	out := make([]FuncID, NumFuncs)
	for i := range out {
		out[i] = FuncID(i)
	}
	return out
}
