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

// Package bestpractices reports valid usage that is likely to perform poorly. It never vetoes.
package bestpractices

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
)

const (
	BestPracticesType = "bestpractices"

	SmallAllocationID    = "BestPractices-AllocateMemory-SmallAllocation"
	TooManyAllocationsID = "BestPractices-AllocateMemory-TooManyObjects"
	SmallBufferID        = "BestPractices-CreateBuffer-SmallBuffer"
	MapReadWriteID       = "BestPractices-CreateBuffer-MapReadWrite"
	EmptySubmitID        = "BestPractices-QueueSubmit-Empty"
	DeviceWaitIdleID     = "BestPractices-DeviceWaitIdle"
)

// compile-time type assertions
var (
	_ chain.PreCallValidator = &BestPractices{}
	_ chain.PostCallRecorder = &BestPractices{}
)

// Parameters configure BestPractices.
type Parameters struct {
	// MinAllocationSize is the smallest allocation or buffer that is not reported as wasteful.
	MinAllocationSize uint64 `json:"minAllocationSize"`
	// MaxAllocations is the number of live allocations above which every new one is reported.
	MaxAllocations int `json:"maxAllocations"`
}

// BestPracticesFactory defines the factory function for BestPractices.
func BestPracticesFactory(name string, rawParameters json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	parameters := Parameters{MinAllocationSize: 256, MaxAllocations: 4096}
	if rawParameters != nil {
		if err := json.Unmarshal(rawParameters, &parameters); err != nil {
			return nil, fmt.Errorf("failed to parse the parameters of the '%s' validator - %w", BestPracticesType, err)
		}
	}
	return New(handle, parameters).WithName(name), nil
}

type BestPractices struct {
	chain.Base
	handle      plugins.Handle
	reporter    report.Reporter
	parameters  Parameters
	allocations map[api.Handle]struct{}
}

func New(handle plugins.Handle, parameters Parameters) *BestPractices {
	b := &BestPractices{handle: handle, parameters: parameters, allocations: map[api.Handle]struct{}{}}
	return b.WithName(BestPracticesType)
}

// WithName sets the name of the validator.
func (b *BestPractices) WithName(name string) *BestPractices {
	b.Init(BestPracticesType, name)
	b.reporter = report.New(b.handle, b.TypedName())
	return b
}

func (b *BestPractices) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().
		Add(chain.PhaseValidate, api.FuncAllocateMemory, api.FuncCreateBuffer, api.FuncQueueSubmit, api.FuncDeviceWaitIdle).
		Add(chain.PhasePost, api.FuncAllocateMemory, api.FuncFreeMemory)
}

func (b *BestPractices) PreCallValidate(ctx context.Context, call *api.Call) bool {
	switch a := call.Args.(type) {
	case *api.AllocateMemoryArgs:
		if a.Info == nil {
			break
		}
		if a.Info.Size > 0 && a.Info.Size < b.parameters.MinAllocationSize {
			b.reporter.Report(ctx, diagnostics.SeverityPerformance, SmallAllocationID,
				fmt.Sprintf("%s: allocating %d bytes; sub-allocate small resources from allocations of at least %d bytes",
					call.Func, a.Info.Size, b.parameters.MinAllocationSize))
		}
		if b.parameters.MaxAllocations > 0 && len(b.allocations) >= b.parameters.MaxAllocations {
			b.reporter.Report(ctx, diagnostics.SeverityPerformance, TooManyAllocationsID,
				fmt.Sprintf("%s: %d allocations are live", call.Func, len(b.allocations)))
		}
	case *api.CreateBufferArgs:
		if a.Info == nil {
			break
		}
		if a.Info.Size > 0 && a.Info.Size < b.parameters.MinAllocationSize {
			b.reporter.Report(ctx, diagnostics.SeverityPerformance, SmallBufferID,
				fmt.Sprintf("%s: buffer of %d bytes; pack small buffers into one", call.Func, a.Info.Size))
		}
		if mapBoth := gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite; a.Info.Usage&mapBoth == mapBoth {
			b.reporter.Report(ctx, diagnostics.SeverityWarning, MapReadWriteID,
				fmt.Sprintf("%s: a buffer mapped for both reading and writing is slow on discrete devices", call.Func))
		}
	case *api.QueueSubmitArgs:
		if len(a.Submits) == 0 && a.Fence == api.NullHandle {
			b.reporter.Report(ctx, diagnostics.SeverityWarning, EmptySubmitID,
				fmt.Sprintf("%s: the submission has no work and no fence", call.Func))
		}
	case *api.DeviceWaitIdleArgs:
		b.reporter.Report(ctx, diagnostics.SeverityPerformance, DeviceWaitIdleID,
			fmt.Sprintf("%s: waiting for the whole device stalls every queue; wait on fences instead", call.Func))
	}
	return false
}

func (b *BestPractices) PostCallRecord(_ context.Context, call *api.Call, _ *chain.CallState, result api.Result) {
	switch a := call.Args.(type) {
	case *api.AllocateMemoryArgs:
		if result == api.Success && a.Memory != nil {
			b.allocations[*a.Memory] = struct{}{}
		}
	case *api.FreeMemoryArgs:
		delete(b.allocations, a.Memory)
	}
}
