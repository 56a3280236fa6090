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

// Package gpuav prepares objects for validation performed on the device. It rewrites create
// calls so buffers can be bound for bounds checking and shaders run instrumented.
package gpuav

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/shader"
)

const (
	GPUAVType = "gpuav"

	// InstrumentedID is a verbose message for every shader module created from instrumented code.
	InstrumentedID = "GPUAV-ShaderModule-Instrumented"

	mappable = gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite
)

// compile-time type assertions
var (
	_ chain.PreCallRecorder  = &GPUAV{}
	_ chain.PostCallRecorder = &GPUAV{}
	_ plugins.Releaser       = &GPUAV{}
)

// Parameters configure GPUAV.
type Parameters struct {
	// BufferChecks adds storage usage to buffers so the device can bounds check them.
	BufferChecks bool `json:"bufferChecks"`
	// InstrumentShaders compiles WGSL modules and passes the instrumented SPIR-V to the driver.
	InstrumentShaders bool `json:"instrumentShaders"`
}

// GPUAVFactory defines the factory function for GPUAV.
func GPUAVFactory(name string, rawParameters json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	parameters := Parameters{BufferChecks: true, InstrumentShaders: true}
	if rawParameters != nil {
		if err := json.Unmarshal(rawParameters, &parameters); err != nil {
			return nil, fmt.Errorf("failed to parse the parameters of the '%s' validator - %w", GPUAVType, err)
		}
	}
	return New(handle, parameters).WithName(name), nil
}

// GPUAV stages argument overrides. It is meant to be configured with mustWin so its rewrites
// take precedence over those of other instrumenting validators.
type GPUAV struct {
	chain.Base
	handle     plugins.Handle
	reporter   report.Reporter
	parameters Parameters
	compiler   *shader.Compiler

	instrumented map[api.Handle]struct{}
	buffers      map[api.Handle]struct{}
}

func New(handle plugins.Handle, parameters Parameters) *GPUAV {
	g := &GPUAV{
		handle:       handle,
		parameters:   parameters,
		compiler:     shader.Default,
		instrumented: map[api.Handle]struct{}{},
		buffers:      map[api.Handle]struct{}{},
	}
	return g.WithName(GPUAVType)
}

// WithName sets the name of the validator.
func (g *GPUAV) WithName(name string) *GPUAV {
	g.Init(GPUAVType, name)
	g.reporter = report.New(g.handle, g.TypedName())
	return g
}

func (g *GPUAV) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().
		Add(chain.PhaseRecord|chain.PhasePost, api.FuncCreateBuffer, api.FuncCreateShaderModule).
		Add(chain.PhasePost, api.FuncDestroyBuffer, api.FuncDestroyShaderModule)
}

func (g *GPUAV) PreCallRecord(ctx context.Context, call *api.Call, state *chain.CallState) {
	var override api.Args
	switch a := call.Args.(type) {
	case *api.CreateBufferArgs:
		if !g.parameters.BufferChecks || a.Info == nil {
			return
		}
		if a.Info.Usage&mappable != 0 || a.Info.Usage&gputypes.BufferUsageStorage != 0 {
			return
		}
		info := *a.Info
		info.Usage |= gputypes.BufferUsageStorage
		c := *a
		c.Info = &info
		override = &c
	case *api.CreateShaderModuleArgs:
		if !g.parameters.InstrumentShaders || a.Info == nil || a.Info.WGSL == "" {
			return
		}
		words, err := g.compiler.Compile(a.Info.WGSL)
		if err != nil {
			// Left for core validation to report.
			log.FromContext(ctx).V(logutil.DEBUG).Info("Not instrumenting shader module", "reason", err.Error())
			return
		}
		info := *a.Info
		info.WGSL = ""
		info.SPIRV = words
		info.InstrumentedBy = g.TypedName().Name
		c := *a
		c.Info = &info
		override = &c
	}
	if err := state.StageOverride(override); err != nil {
		log.FromContext(ctx).Error(err, "Failed to stage override", "validator", g.TypedName())
	}
}

func (g *GPUAV) PostCallRecord(ctx context.Context, call *api.Call, state *chain.CallState, result api.Result) {
	won := false
	if by, ok := state.OverriddenBy(); ok && by == g.TypedName() {
		won = true
	}
	switch a := call.Args.(type) {
	case *api.CreateBufferArgs:
		if won && result == api.Success {
			g.buffers[*a.Buffer] = struct{}{}
		}
	case *api.CreateShaderModuleArgs:
		if won && result == api.Success {
			g.instrumented[*a.Module] = struct{}{}
			g.reporter.Report(ctx, diagnostics.SeverityVerbose, InstrumentedID,
				fmt.Sprintf("%s: shader module %s runs instrumented code", call.Func, *a.Module),
				report.Object(api.ObjectShaderModule, *a.Module))
		}
	case *api.DestroyBufferArgs:
		delete(g.buffers, a.Buffer)
	case *api.DestroyShaderModuleArgs:
		delete(g.instrumented, a.Module)
	}
}

// InstrumentedModules returns the live shader modules created from instrumented code.
func (g *GPUAV) InstrumentedModules() []api.Handle {
	g.RLock()
	defer g.RUnlock()
	return sortedHandles(g.instrumented)
}

// CheckedBuffers returns the live buffers created with storage usage added.
func (g *GPUAV) CheckedBuffers() []api.Handle {
	g.RLock()
	defer g.RUnlock()
	return sortedHandles(g.buffers)
}

// Release drops the instrumentation state of the Context.
func (g *GPUAV) Release() error {
	g.Lock()
	defer g.Unlock()
	if n := len(g.instrumented) + len(g.buffers); n > 0 && g.handle != nil {
		log.FromContext(g.handle.Context()).V(logutil.VERBOSE).Info("Releasing instrumented objects",
			"validator", g.TypedName(), "context", g.handle.ContextID(), "count", n)
	}
	clear(g.instrumented)
	clear(g.buffers)
	return nil
}

func sortedHandles(set map[api.Handle]struct{}) []api.Handle {
	out := make([]api.Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
