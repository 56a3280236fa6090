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

package gpuav

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/validatortest"
)

const fragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

func newHarness(t *testing.T, parameters string) *validatortest.Harness {
	factories := plugins.FactoryRegistry{GPUAVType: GPUAVFactory}
	spec := config.ValidatorSpec{Type: GPUAVType, MustWin: true}
	if parameters != "" {
		spec.Parameters = json.RawMessage(parameters)
	}
	return validatortest.New(t, factories, []config.ValidatorSpec{spec})
}

func TestBufferUsageOverride(t *testing.T) {
	h := newHarness(t, "")
	g := h.Validator(GPUAVType).(*GPUAV)

	info := &api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageUniform}
	buf := h.Buffer(info)
	assert.Equal(t, gputypes.BufferUsageUniform, info.Usage, "the application's create info is untouched")
	sent := h.Driver.LastArgs(api.FuncCreateBuffer).(*api.CreateBufferArgs)
	assert.Equal(t, gputypes.BufferUsageUniform|gputypes.BufferUsageStorage, sent.Info.Usage)
	assert.Equal(t, []api.Handle{buf}, g.CheckedBuffers())

	h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst})
	sent = h.Driver.LastArgs(api.FuncCreateBuffer).(*api.CreateBufferArgs)
	assert.Equal(t, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst, sent.Info.Usage, "mappable buffers are left alone")
	assert.Len(t, g.CheckedBuffers(), 1)

	require.Equal(t, api.Success, h.Layer.DestroyBuffer(h.Ctx, h.Device, buf))
	assert.Empty(t, g.CheckedBuffers())
}

func TestShaderInstrumentation(t *testing.T) {
	h := newHarness(t, "")
	g := h.Validator(GPUAVType).(*GPUAV)

	module, r := h.Layer.CreateShaderModule(h.Ctx, h.Device, &api.ShaderModuleCreateInfo{WGSL: fragmentWGSL})
	require.Equal(t, api.Success, r)

	sent := h.Driver.LastArgs(api.FuncCreateShaderModule).(*api.CreateShaderModuleArgs)
	assert.Empty(t, sent.Info.WGSL)
	require.NotEmpty(t, sent.Info.SPIRV)
	assert.Equal(t, uint32(0x07230203), sent.Info.SPIRV[0])
	assert.Equal(t, GPUAVType, sent.Info.InstrumentedBy)
	assert.Equal(t, []api.Handle{module}, g.InstrumentedModules())
	assert.Equal(t, []string{InstrumentedID}, h.IDs())

	// Code that does not compile reaches the driver unchanged.
	_, r = h.Layer.CreateShaderModule(h.Ctx, h.Device, &api.ShaderModuleCreateInfo{WGSL: "fn broken( {"})
	require.Equal(t, api.Success, r)
	sent = h.Driver.LastArgs(api.FuncCreateShaderModule).(*api.CreateShaderModuleArgs)
	assert.Equal(t, "fn broken( {", sent.Info.WGSL)
	assert.Len(t, g.InstrumentedModules(), 1)
}

func TestDisabledByParameters(t *testing.T) {
	h := newHarness(t, `{"bufferChecks": false, "instrumentShaders": false}`)
	g := h.Validator(GPUAVType).(*GPUAV)

	h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageVertex})
	_, r := h.Layer.CreateShaderModule(h.Ctx, h.Device, &api.ShaderModuleCreateInfo{WGSL: fragmentWGSL})
	require.Equal(t, api.Success, r)

	assert.Equal(t, gputypes.BufferUsageVertex, h.Driver.LastArgs(api.FuncCreateBuffer).(*api.CreateBufferArgs).Info.Usage)
	assert.Equal(t, fragmentWGSL, h.Driver.LastArgs(api.FuncCreateShaderModule).(*api.CreateShaderModuleArgs).Info.WGSL)
	assert.Empty(t, g.InstrumentedModules())
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	g := New(&validatortest.Handle{Lvl: api.LevelDevice}, Parameters{BufferChecks: true})
	out := api.Handle(0x40)
	call := &api.Call{Func: api.FuncCreateBuffer, Args: &api.CreateBufferArgs{
		Info: &api.BufferCreateInfo{Size: 8, Usage: gputypes.BufferUsageIndex}, Buffer: &out}}
	c, err := chain.New([]chain.Member{{Validator: g, MustWin: true}})
	require.NoError(t, err)

	state := chain.NewCallState(call)
	c.PreCallRecord(ctx, call, state)
	by, ok := state.OverriddenBy()
	require.True(t, ok)
	assert.Equal(t, g.TypedName(), by)
	c.PostCallRecord(ctx, call, state, api.Success)
	assert.Len(t, g.CheckedBuffers(), 1)

	require.NoError(t, c.Release())
	assert.Empty(t, g.CheckedBuffers())
}
