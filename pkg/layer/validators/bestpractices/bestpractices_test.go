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

package bestpractices

import (
	"encoding/json"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/validatortest"
)

func newHarness(t *testing.T, parameters string) *validatortest.Harness {
	factories := plugins.FactoryRegistry{BestPracticesType: BestPracticesFactory}
	spec := config.ValidatorSpec{Type: BestPracticesType}
	if parameters != "" {
		spec.Parameters = json.RawMessage(parameters)
	}
	return validatortest.New(t, factories, []config.ValidatorSpec{spec})
}

func TestAdvisoriesNeverVeto(t *testing.T) {
	h := newHarness(t, "")

	_, r := h.Layer.AllocateMemory(h.Ctx, h.Device, &api.MemoryAllocateInfo{Size: 16})
	assert.Equal(t, api.Success, r)
	h.Buffer(&api.BufferCreateInfo{Size: 16, Usage: gputypes.BufferUsageUniform})
	h.Buffer(&api.BufferCreateInfo{Size: 4096, Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite})
	assert.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, h.Queues[0], nil, api.NullHandle))
	assert.Equal(t, api.Success, h.Layer.DeviceWaitIdle(h.Ctx, h.Device))

	want := []string{SmallAllocationID, SmallBufferID, MapReadWriteID, EmptySubmitID, DeviceWaitIdleID}
	if diff := cmp.Diff(want, h.IDs()); diff != "" {
		t.Errorf("Unexpected messages (-want +got): %s", diff)
	}
	severities := map[string]diagnostics.Severity{}
	for _, msg := range h.Sink.Messages() {
		severities[msg.ID] = msg.Severity
	}
	assert.Equal(t, diagnostics.SeverityPerformance, severities[SmallAllocationID])
	assert.Equal(t, diagnostics.SeverityWarning, severities[MapReadWriteID])
}

func TestAllocationCount(t *testing.T) {
	h := newHarness(t, `{"minAllocationSize": 1, "maxAllocations": 2}`)
	var allocations []api.Handle
	for range 3 {
		mem, r := h.Layer.AllocateMemory(h.Ctx, h.Device, &api.MemoryAllocateInfo{Size: 1024})
		require.Equal(t, api.Success, r)
		allocations = append(allocations, mem)
	}
	assert.Equal(t, []string{TooManyAllocationsID}, h.IDs())

	require.Equal(t, api.Success, h.Layer.FreeMemory(h.Ctx, h.Device, allocations[0]))
	require.Equal(t, api.Success, h.Layer.FreeMemory(h.Ctx, h.Device, allocations[1]))
	_, r := h.Layer.AllocateMemory(h.Ctx, h.Device, &api.MemoryAllocateInfo{Size: 1024})
	require.Equal(t, api.Success, r)
	assert.Equal(t, []string{TooManyAllocationsID}, h.IDs())
}

func TestFactoryParameters(t *testing.T) {
	_, err := BestPracticesFactory("bp", json.RawMessage(`{"minAllocationSize": -1}`), nil)
	assert.Error(t, err)

	p, err := BestPracticesFactory("bp", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Parameters{MinAllocationSize: 256, MaxAllocations: 4096}, p.(*BestPractices).parameters)
}
