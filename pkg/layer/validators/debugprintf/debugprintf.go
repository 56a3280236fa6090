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

// Package debugprintf replaces WGSL shader modules with SPIR-V instrumented for shader printf.
package debugprintf

import (
	"context"
	"encoding/json"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/shader"
)

const (
	DebugPrintfType = "debugprintf"

	// OverrideLostID is reported when another validator's rewrite of a module took precedence,
	// so printf output from that module is lost.
	OverrideLostID = "DebugPrintf-OverrideLost"

	stagedKey chain.StateKey = "debugprintf.staged"
)

// compile-time type assertions
var (
	_ chain.PreCallRecorder  = &DebugPrintf{}
	_ chain.PostCallRecorder = &DebugPrintf{}
)

// DebugPrintfFactory defines the factory function for DebugPrintf.
func DebugPrintfFactory(name string, _ json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	return New(handle).WithName(name), nil
}

type DebugPrintf struct {
	chain.Base
	handle   plugins.Handle
	reporter report.Reporter
	compiler *shader.Compiler
	modules  int
}

func New(handle plugins.Handle) *DebugPrintf {
	d := &DebugPrintf{handle: handle, compiler: shader.Default}
	return d.WithName(DebugPrintfType)
}

// WithName sets the name of the validator.
func (d *DebugPrintf) WithName(name string) *DebugPrintf {
	d.Init(DebugPrintfType, name)
	d.reporter = report.New(d.handle, d.TypedName())
	return d
}

func (d *DebugPrintf) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().Add(chain.PhaseRecord|chain.PhasePost, api.FuncCreateShaderModule)
}

func (d *DebugPrintf) PreCallRecord(ctx context.Context, call *api.Call, state *chain.CallState) {
	a, ok := call.Args.(*api.CreateShaderModuleArgs)
	if !ok || a.Info == nil || a.Info.WGSL == "" {
		return
	}
	words, err := d.compiler.Compile(a.Info.WGSL)
	if err != nil {
		return
	}
	info := *a.Info
	info.WGSL = ""
	info.SPIRV = words
	info.InstrumentedBy = d.TypedName().Name
	c := *a
	c.Info = &info
	if err := state.StageOverride(&c); err != nil {
		log.FromContext(ctx).Error(err, "Failed to stage override", "validator", d.TypedName())
		return
	}
	state.Write(stagedKey, true)
}

func (d *DebugPrintf) PostCallRecord(ctx context.Context, call *api.Call, state *chain.CallState, result api.Result) {
	if staged, err := chain.ReadCallStateKey[bool](state, stagedKey); err != nil || !staged || result != api.Success {
		return
	}
	a := call.Args.(*api.CreateShaderModuleArgs)
	by, _ := state.OverriddenBy()
	if by == d.TypedName() {
		d.modules++
		return
	}
	d.reporter.Report(ctx, diagnostics.SeverityWarning, OverrideLostID,
		fmt.Sprintf("%s: the module was rewritten by '%s'; printf output from it is not available", call.Func, by.Name),
		report.Object(api.ObjectShaderModule, *a.Module))
}

// Modules returns the number of shader modules created from printf-instrumented code.
func (d *DebugPrintf) Modules() int {
	d.RLock()
	defer d.RUnlock()
	return d.modules
}
