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

package runner

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/entrypoints"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

const (
	workloadBufferSize = 4096

	workloadWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(idx), 0.0, 0.0, 1.0);
}
`
)

// Workload drives a layer the way an application would. Each worker owns one queue and runs
// object lifecycles on it: a buffer bound to memory, a shader module and a fence, submitted,
// waited for and destroyed.
type Workload struct {
	Layer *entrypoints.Layer
	// Link is the next link in the chain, usually the driver.
	Link        *api.LayerLink
	Workers     int
	Iterations  int
	InjectEvery int
}

// Stats counts the calls a Workload issued.
type Stats struct {
	Calls int64
	// Rejected counts the deliberately invalid calls the layer refused.
	Rejected int64
	// Accepted counts the deliberately invalid calls that got through.
	Accepted int64
}

type counters struct {
	calls, rejected, accepted atomic.Int64
}

// Run creates an instance and a device, runs the workers and tears everything down again.
// The first call failing unexpectedly stops all workers.
func (w *Workload) Run(ctx context.Context) (Stats, error) {
	logger := log.FromContext(ctx).WithName("workload")
	var n counters
	check := func(what string, r api.Result) error {
		n.calls.Add(1)
		if r != api.Success {
			return fmt.Errorf("%s failed - %w", what, r)
		}
		return nil
	}

	instance, r := w.Layer.CreateInstance(ctx, &api.InstanceCreateInfo{
		ApplicationName:   "chassis-workload",
		EnabledExtensions: []string{api.ExtDebugUtils},
		Link:              w.Link,
	})
	if err := check("instance creation", r); err != nil {
		return n.stats(), err
	}
	defer func() { _ = check("instance destruction", w.Layer.DestroyInstance(ctx, instance)) }()

	physical, r := w.Layer.EnumeratePhysicalDevices(ctx, instance)
	if err := check("physical device enumeration", r); err != nil {
		return n.stats(), err
	}
	if len(physical) == 0 {
		return n.stats(), fmt.Errorf("no physical devices")
	}
	device, r := w.Layer.CreateDevice(ctx, physical[0], &api.DeviceCreateInfo{QueueCount: uint32(w.Workers), Link: w.Link})
	if err := check("device creation", r); err != nil {
		return n.stats(), err
	}
	defer func() { _ = check("device destruction", w.Layer.DestroyDevice(ctx, device)) }()

	queues := make([]api.Dispatchable, w.Workers)
	for i := range queues {
		if queues[i], r = w.Layer.GetDeviceQueue(ctx, device, uint32(i)); check("queue retrieval", r) != nil {
			return n.stats(), fmt.Errorf("queue %d retrieval failed - %w", i, r)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for worker, queue := range queues {
		g.Go(func() error {
			wlog := logger.WithValues("worker", worker)
			for i := range w.Iterations {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.lifecycle(gctx, &n, check, device, queue, worker, i); err != nil {
					return fmt.Errorf("worker %d iteration %d: %w", worker, i, err)
				}
				if w.InjectEvery > 0 && (i+1)%w.InjectEvery == 0 {
					w.inject(gctx, wlog, &n, device)
				}
			}
			wlog.V(logutil.DEBUG).Info("Worker done", "iterations", w.Iterations)
			return nil
		})
	}
	err := g.Wait()
	if r := w.Layer.DeviceWaitIdle(ctx, device); err == nil {
		err = check("device wait", r)
	}
	return n.stats(), err
}

func (w *Workload) lifecycle(ctx context.Context, n *counters, check func(string, api.Result) error,
	device, queue api.Dispatchable, worker, iteration int) error {
	buf, r := w.Layer.CreateBuffer(ctx, device, &api.BufferCreateInfo{
		Label: fmt.Sprintf("worker-%d/storage", worker),
		Size:  workloadBufferSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err := check("buffer creation", r); err != nil {
		return err
	}
	mem, r := w.Layer.AllocateMemory(ctx, device, &api.MemoryAllocateInfo{Size: workloadBufferSize})
	if err := check("memory allocation", r); err != nil {
		return err
	}
	if err := check("memory binding", w.Layer.BindBufferMemory(ctx, device, buf, mem, 0)); err != nil {
		return err
	}
	name := fmt.Sprintf("worker-%d/iteration-%d", worker, iteration)
	if err := check("object naming", w.Layer.SetObjectName(ctx, device, api.ObjectBuffer, buf, name)); err != nil {
		return err
	}
	module, r := w.Layer.CreateShaderModule(ctx, device, &api.ShaderModuleCreateInfo{Label: name, WGSL: workloadWGSL})
	if err := check("shader module creation", r); err != nil {
		return err
	}
	fence, r := w.Layer.CreateFence(ctx, device, false)
	if err := check("fence creation", r); err != nil {
		return err
	}
	submits := []api.SubmitInfo{{WrittenBuffers: []api.Handle{buf}}}
	if err := check("queue submission", w.Layer.QueueSubmit(ctx, queue, submits, fence)); err != nil {
		return err
	}
	if err := check("queue wait", w.Layer.QueueWaitIdle(ctx, queue)); err != nil {
		return err
	}

	if err := check("fence destruction", w.Layer.DestroyFence(ctx, device, fence)); err != nil {
		return err
	}
	if err := check("shader module destruction", w.Layer.DestroyShaderModule(ctx, device, module)); err != nil {
		return err
	}
	if err := check("buffer destruction", w.Layer.DestroyBuffer(ctx, device, buf)); err != nil {
		return err
	}
	return check("memory release", w.Layer.FreeMemory(ctx, device, mem))
}

// inject issues calls the application should never make. Whatever gets created is destroyed.
func (w *Workload) inject(ctx context.Context, logger logr.Logger, n *counters, device api.Dispatchable) {
	count := func(r api.Result) {
		n.calls.Add(1)
		if r.Succeeded() {
			n.accepted.Add(1)
		} else {
			n.rejected.Add(1)
		}
	}

	buf, r := w.Layer.CreateBuffer(ctx, device, &api.BufferCreateInfo{Label: "empty", Usage: gputypes.BufferUsageStorage})
	count(r)
	if r == api.Success {
		_ = w.Layer.DestroyBuffer(ctx, device, buf)
	}

	module, r := w.Layer.CreateShaderModule(ctx, device, &api.ShaderModuleCreateInfo{Label: "broken", WGSL: "fn broken( {"})
	count(r)
	if r == api.Success {
		_ = w.Layer.DestroyShaderModule(ctx, device, module)
	}
	logger.V(logutil.TRACE).Info("Injected invalid calls")
}

func (n *counters) stats() Stats {
	return Stats{Calls: n.calls.Load(), Rejected: n.rejected.Load(), Accepted: n.accepted.Load()}
}
