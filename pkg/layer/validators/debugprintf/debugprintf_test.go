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

package debugprintf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/gpuav"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/validatortest"
)

const vertexWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(idx), 0.0, 0.0, 1.0);
}
`

var factories = plugins.FactoryRegistry{
	DebugPrintfType: DebugPrintfFactory,
	gpuav.GPUAVType: gpuav.GPUAVFactory,
}

func TestOverridePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		specs      []config.ValidatorSpec
		wantBy     string
		wantIDs    []string
		wantPrintf int
	}{
		{
			name:       "alone",
			specs:      []config.ValidatorSpec{{Type: DebugPrintfType}},
			wantBy:     DebugPrintfType,
			wantPrintf: 1,
		},
		{
			name:    "must-win override placed earlier",
			specs:   []config.ValidatorSpec{{Type: gpuav.GPUAVType, MustWin: true}, {Type: DebugPrintfType}},
			wantBy:  gpuav.GPUAVType,
			wantIDs: []string{gpuav.InstrumentedID, OverrideLostID},
		},
		{
			name:    "later position wins",
			specs:   []config.ValidatorSpec{{Type: DebugPrintfType}, {Type: gpuav.GPUAVType}},
			wantBy:  gpuav.GPUAVType,
			wantIDs: []string{OverrideLostID, gpuav.InstrumentedID},
		},
		{
			name:       "earlier position loses",
			specs:      []config.ValidatorSpec{{Type: gpuav.GPUAVType}, {Type: DebugPrintfType}},
			wantBy:     DebugPrintfType,
			wantPrintf: 1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := validatortest.New(t, factories, test.specs)

			module, r := h.Layer.CreateShaderModule(h.Ctx, h.Device, &api.ShaderModuleCreateInfo{WGSL: vertexWGSL})
			require.Equal(t, api.Success, r)
			require.NotEqual(t, api.NullHandle, module)

			sent := h.Driver.LastArgs(api.FuncCreateShaderModule).(*api.CreateShaderModuleArgs)
			assert.Equal(t, test.wantBy, sent.Info.InstrumentedBy)
			assert.Equal(t, test.wantPrintf, h.Validator(DebugPrintfType).(*DebugPrintf).Modules())
			if len(test.wantIDs) == 0 {
				assert.Empty(t, h.IDs())
			} else {
				assert.Equal(t, test.wantIDs, h.IDs())
			}
		})
	}
}

func TestSPIRVPassesThrough(t *testing.T) {
	h := validatortest.New(t, factories, []config.ValidatorSpec{{Type: DebugPrintfType}})

	_, r := h.Layer.CreateShaderModule(h.Ctx, h.Device, &api.ShaderModuleCreateInfo{SPIRV: []uint32{0x07230203, 0x00010000}})
	require.Equal(t, api.Success, r)

	sent := h.Driver.LastArgs(api.FuncCreateShaderModule).(*api.CreateShaderModuleArgs)
	assert.Empty(t, sent.Info.InstrumentedBy)
	assert.Equal(t, 0, h.Validator(DebugPrintfType).(*DebugPrintf).Modules())
}
