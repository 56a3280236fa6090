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

package memdriver

import (
	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

func (d *Driver) createInstance(args api.Args) api.Result {
	a := args.(*api.CreateInstanceArgs)
	if a.Instance == nil {
		return api.ErrorInitializationFailed
	}
	h, key := d.newHandle(), d.newKey()
	d.mu.Lock()
	d.instances[h] = key
	for range d.physical {
		d.physicals[d.newHandle()] = key
	}
	d.mu.Unlock()
	*a.Instance = api.Dispatchable{Key: key, Handle: h}
	return api.Success
}

func (d *Driver) destroyInstance(args api.Args) api.Result {
	a := args.(*api.DestroyInstanceArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.instances[a.Instance.Handle]
	if !ok {
		return api.Success
	}
	delete(d.instances, a.Instance.Handle)
	for h, k := range d.physicals {
		if k == key {
			delete(d.physicals, h)
		}
	}
	return api.Success
}

func (d *Driver) enumeratePhysicalDevices(args api.Args) api.Result {
	a := args.(*api.EnumeratePhysicalDevicesArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.instances[a.Instance.Handle]
	if !ok {
		return api.ErrorInitializationFailed
	}
	var out []api.Dispatchable
	for h, k := range d.physicals {
		if k == key {
			out = append(out, api.Dispatchable{Key: key, Handle: h})
		}
	}
	if a.PhysicalDevices != nil {
		*a.PhysicalDevices = out
	}
	return api.Success
}

func (d *Driver) createDevice(args api.Args) api.Result {
	a := args.(*api.CreateDeviceArgs)
	if a.Device == nil || a.Info == nil {
		return api.ErrorInitializationFailed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	instance, ok := d.physicals[a.PhysicalDevice.Handle]
	if !ok {
		return api.ErrorInitializationFailed
	}
	h, key := d.newHandle(), d.newKey()
	dev := &device{instance: instance}
	for range a.Info.QueueCount {
		dev.queues = append(dev.queues, api.Dispatchable{Key: key, Handle: d.newHandle()})
	}
	d.devices[h] = dev
	*a.Device = api.Dispatchable{Key: key, Handle: h}
	return api.Success
}

func (d *Driver) destroyDevice(args api.Args) api.Result {
	a := args.(*api.DestroyDeviceArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.devices, a.Device.Handle)
	return api.Success
}

func (d *Driver) getDeviceQueue(args api.Args) api.Result {
	a := args.(*api.GetDeviceQueueArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[a.Device.Handle]
	if !ok || int(a.QueueIndex) >= len(dev.queues) || a.Queue == nil {
		return api.ErrorInitializationFailed
	}
	*a.Queue = dev.queues[a.QueueIndex]
	return api.Success
}

func (d *Driver) create(out *api.Handle, typ api.ObjectType) api.Result {
	if out == nil {
		return api.ErrorInitializationFailed
	}
	h := d.newHandle()
	d.mu.Lock()
	d.objects[h] = typ
	d.mu.Unlock()
	*out = h
	return api.Success
}

func (d *Driver) createBuffer(args api.Args) api.Result {
	a := args.(*api.CreateBufferArgs)
	if a.Info == nil || a.Info.Size == 0 {
		return api.ErrorOutOfDeviceMemory
	}
	return d.create(a.Buffer, api.ObjectBuffer)
}

func (d *Driver) allocateMemory(args api.Args) api.Result {
	a := args.(*api.AllocateMemoryArgs)
	if a.Info == nil || a.Info.Size == 0 {
		return api.ErrorOutOfDeviceMemory
	}
	return d.create(a.Memory, api.ObjectDeviceMemory)
}

func (d *Driver) createTexture(args api.Args) api.Result {
	a := args.(*api.CreateTextureArgs)
	if a.Info == nil {
		return api.ErrorOutOfDeviceMemory
	}
	return d.create(a.Texture, api.ObjectTexture)
}

func (d *Driver) createShaderModule(args api.Args) api.Result {
	a := args.(*api.CreateShaderModuleArgs)
	if a.Info == nil || (a.Info.WGSL == "" && len(a.Info.SPIRV) == 0) {
		return api.ErrorInvalidShader
	}
	return d.create(a.Module, api.ObjectShaderModule)
}

func (d *Driver) createFence(args api.Args) api.Result {
	a := args.(*api.CreateFenceArgs)
	return d.create(a.Fence, api.ObjectFence)
}

// destroyObject serves every destroy and free function. Destroying an unknown handle is
// recorded and otherwise ignored.
func (d *Driver) destroyObject(args api.Args) api.Result {
	h, _ := args.(api.HandleDestroyer).DestroyedHandle()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.use(h) {
		delete(d.objects, h)
	}
	return api.Success
}

func (d *Driver) bindBufferMemory(args api.Args) api.Result {
	a := args.(*api.BindBufferMemoryArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.use(a.Buffer) || !d.use(a.Memory) {
		return api.ErrorUnknown
	}
	return api.Success
}

func (d *Driver) queueSubmit(args api.Args) api.Result {
	a := args.(*api.QueueSubmitArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range a.Submits {
		for _, b := range s.WrittenBuffers {
			if !d.use(b) {
				return api.ErrorDeviceLost
			}
		}
	}
	if !d.use(a.Fence) {
		return api.ErrorDeviceLost
	}
	return api.Success
}

func (d *Driver) setObjectName(args api.Args) api.Result {
	a := args.(*api.SetObjectNameArgs)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.use(a.Object)
	return api.Success
}

func (d *Driver) noop(api.Args) api.Result {
	return api.Success
}
