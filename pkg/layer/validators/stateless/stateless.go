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

// Package stateless checks call parameters that can be judged without any object state.
package stateless

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
	StatelessType = "stateless"

	defaultMaxBufferSize = uint64(1) << 32

	spirvMagic = 0x07230203
)

// Message identifiers.
const (
	NullCreateInfoID   = "Stateless-CreateInfo-null"
	QueueCountID       = "Stateless-DeviceCreateInfo-queueCount"
	QueueOutputID      = "Stateless-GetDeviceQueue-pQueue-null"
	BufferSizeZeroID   = "Stateless-BufferCreateInfo-size-zero"
	BufferSizeLimitID  = "Stateless-BufferCreateInfo-size-limit"
	BufferUsageZeroID  = "Stateless-BufferCreateInfo-usage-zero"
	BufferUsageMapID   = "Stateless-BufferCreateInfo-usage-map"
	MemorySizeZeroID   = "Stateless-MemoryAllocateInfo-size-zero"
	TextureExtentID    = "Stateless-TextureCreateInfo-extent"
	TextureFormatID    = "Stateless-TextureCreateInfo-format"
	TextureUsageZeroID = "Stateless-TextureCreateInfo-usage-zero"
	ShaderCodeEmptyID  = "Stateless-ShaderModuleCreateInfo-code-empty"
	ShaderCodeMagicID  = "Stateless-ShaderModuleCreateInfo-spirv-magic"
	NullHandleID       = "Stateless-handle-null"
	ObjectNameEmptyID  = "Stateless-SetObjectName-name-empty"
)

// compile-time type assertion
var _ chain.PreCallValidator = &Stateless{}

// Parameters configure Stateless.
type Parameters struct {
	// MaxBufferSize is the largest buffer the device accepts.
	MaxBufferSize uint64 `json:"maxBufferSize"`
}

// StatelessFactory defines the factory function for Stateless.
func StatelessFactory(name string, rawParameters json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	parameters := Parameters{MaxBufferSize: defaultMaxBufferSize}
	if rawParameters != nil {
		if err := json.Unmarshal(rawParameters, &parameters); err != nil {
			return nil, fmt.Errorf("failed to parse the parameters of the '%s' validator - %w", StatelessType, err)
		}
	}
	return New(handle, parameters).WithName(name), nil
}

// Stateless validates the shape of create infos and handle arguments. It keeps no state, so its
// validation hook takes the shared lock only.
type Stateless struct {
	chain.Base
	handle     plugins.Handle
	reporter   report.Reporter
	parameters Parameters
}

func New(handle plugins.Handle, parameters Parameters) *Stateless {
	s := &Stateless{handle: handle, parameters: parameters}
	return s.WithName(StatelessType)
}

// WithName sets the name of the validator.
func (s *Stateless) WithName(name string) *Stateless {
	s.Init(StatelessType, name)
	s.reporter = report.New(s.handle, s.TypedName())
	return s
}

func (s *Stateless) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().Add(chain.PhaseValidate,
		api.FuncCreateInstance,
		api.FuncCreateDevice,
		api.FuncGetDeviceQueue,
		api.FuncCreateBuffer,
		api.FuncAllocateMemory,
		api.FuncBindBufferMemory,
		api.FuncCreateTexture,
		api.FuncCreateShaderModule,
		api.FuncQueueSubmit,
		api.FuncSetObjectName,
	)
}

// finding is one failed check.
type finding struct {
	id      string
	text    string
	objects []diagnostics.ObjectRef
}

func (s *Stateless) PreCallValidate(ctx context.Context, call *api.Call) bool {
	findings := s.check(call)
	for _, f := range findings {
		s.reporter.Report(ctx, diagnostics.SeverityError, f.id, call.Func.String()+": "+f.text, f.objects...)
	}
	return len(findings) > 0
}

func (s *Stateless) check(call *api.Call) []finding {
	switch a := call.Args.(type) {
	case *api.CreateInstanceArgs:
		if a.Info == nil {
			return []finding{{id: NullCreateInfoID, text: "pCreateInfo must not be null"}}
		}
	case *api.CreateDeviceArgs:
		if a.Info == nil {
			return []finding{{id: NullCreateInfoID, text: "pCreateInfo must not be null"}}
		}
		if a.Info.QueueCount == 0 {
			return []finding{{id: QueueCountID, text: "queueCount must be greater than 0"}}
		}
	case *api.GetDeviceQueueArgs:
		if a.Queue == nil {
			return []finding{{id: QueueOutputID, text: "pQueue must not be null"}}
		}
	case *api.CreateBufferArgs:
		return s.checkBuffer(a.Info)
	case *api.AllocateMemoryArgs:
		if a.Info == nil {
			return []finding{{id: NullCreateInfoID, text: "pAllocateInfo must not be null"}}
		}
		if a.Info.Size == 0 {
			return []finding{{id: MemorySizeZeroID, text: "allocationSize must be greater than 0"}}
		}
	case *api.BindBufferMemoryArgs:
		var out []finding
		if a.Buffer == api.NullHandle {
			out = append(out, finding{id: NullHandleID, text: "buffer must not be null"})
		}
		if a.Memory == api.NullHandle {
			out = append(out, finding{id: NullHandleID, text: "memory must not be null"})
		}
		return out
	case *api.CreateTextureArgs:
		return checkTexture(a.Info)
	case *api.CreateShaderModuleArgs:
		return checkShader(a.Info)
	case *api.QueueSubmitArgs:
		var out []finding
		for i, submit := range a.Submits {
			for j, b := range submit.WrittenBuffers {
				if b == api.NullHandle {
					out = append(out, finding{id: NullHandleID, text: fmt.Sprintf("pSubmits[%d].pWrittenBuffers[%d] must not be null", i, j)})
				}
			}
		}
		return out
	case *api.SetObjectNameArgs:
		if a.Object == api.NullHandle {
			return []finding{{id: NullHandleID, text: "objectHandle must not be null"}}
		}
		if a.Name == "" {
			return []finding{{id: ObjectNameEmptyID, text: "pObjectName must not be empty",
				objects: []diagnostics.ObjectRef{report.Object(a.ObjectType, a.Object)}}}
		}
	}
	return nil
}

func (s *Stateless) checkBuffer(info *api.BufferCreateInfo) []finding {
	if info == nil {
		return []finding{{id: NullCreateInfoID, text: "pCreateInfo must not be null"}}
	}
	var out []finding
	if info.Size == 0 {
		out = append(out, finding{id: BufferSizeZeroID, text: "size must be greater than 0"})
	}
	if s.parameters.MaxBufferSize > 0 && info.Size > s.parameters.MaxBufferSize {
		out = append(out, finding{id: BufferSizeLimitID,
			text: fmt.Sprintf("size %d exceeds maxBufferSize %d", info.Size, s.parameters.MaxBufferSize)})
	}
	if info.Usage == 0 {
		out = append(out, finding{id: BufferUsageZeroID, text: "usage must not be 0"})
	}
	// Mappable buffers may only be the other end of a copy.
	if info.Usage&gputypes.BufferUsageMapRead != 0 && info.Usage&^(gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst) != 0 {
		out = append(out, finding{id: BufferUsageMapID, text: "MapRead may only be combined with CopyDst"})
	}
	if info.Usage&gputypes.BufferUsageMapWrite != 0 && info.Usage&^(gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc) != 0 {
		out = append(out, finding{id: BufferUsageMapID, text: "MapWrite may only be combined with CopySrc"})
	}
	return out
}

func checkTexture(info *api.TextureCreateInfo) []finding {
	if info == nil {
		return []finding{{id: NullCreateInfoID, text: "pCreateInfo must not be null"}}
	}
	var out []finding
	size := info.Size
	switch {
	case size.Width == 0 || size.Height == 0 || size.DepthOrArrayLayers == 0:
		out = append(out, finding{id: TextureExtentID, text: "extent must not be empty"})
	case info.Dimension == gputypes.TextureDimension1D && (size.Height != 1 || size.DepthOrArrayLayers != 1):
		out = append(out, finding{id: TextureExtentID, text: "1D textures must have height and depth 1"})
	}
	if info.Format == gputypes.TextureFormatUndefined {
		out = append(out, finding{id: TextureFormatID, text: "format must not be undefined"})
	}
	if info.Usage == 0 {
		out = append(out, finding{id: TextureUsageZeroID, text: "usage must not be 0"})
	}
	return out
}

func checkShader(info *api.ShaderModuleCreateInfo) []finding {
	if info == nil {
		return []finding{{id: NullCreateInfoID, text: "pCreateInfo must not be null"}}
	}
	if info.WGSL == "" && len(info.SPIRV) == 0 {
		return []finding{{id: ShaderCodeEmptyID, text: "either WGSL source or SPIR-V code is required"}}
	}
	if len(info.SPIRV) > 0 && info.SPIRV[0] != spirvMagic {
		return []finding{{id: ShaderCodeMagicID, text: fmt.Sprintf("SPIR-V magic number is 0x%08x", info.SPIRV[0])}}
	}
	return nil
}
