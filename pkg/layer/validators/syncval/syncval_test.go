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

package syncval

import (
	"encoding/json"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/validatortest"
)

func newHarness(t *testing.T, parameters string) (*validatortest.Harness, *SyncVal) {
	factories := plugins.FactoryRegistry{SyncValType: SyncValFactory}
	spec := config.ValidatorSpec{Type: SyncValType}
	if parameters != "" {
		spec.Parameters = json.RawMessage(parameters)
	}
	h := validatortest.New(t, factories, []config.ValidatorSpec{spec})
	return h, h.Validator(SyncValType).(*SyncVal)
}

func writes(bufs ...api.Handle) []api.SubmitInfo {
	return []api.SubmitInfo{{WrittenBuffers: bufs}}
}

func TestWriteAfterWrite(t *testing.T) {
	h, s := newHarness(t, "")
	a := h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageStorage})
	b := h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageStorage})
	q0, q1 := h.Queues[0], h.Queues[1]

	require.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, q0, writes(a), api.NullHandle))
	assert.Equal(t, []api.Handle{a}, s.Pending(q0.Handle))

	// Another queue writing the same buffer races the pending work.
	assert.Equal(t, api.ErrorValidationFailed, h.Layer.QueueSubmit(h.Ctx, q1, writes(a), api.NullHandle))
	require.Equal(t, []string{WriteAfterWriteID}, h.IDs())
	assert.Equal(t, []diagnostics.ObjectRef{
		{Type: api.ObjectBuffer, Handle: a},
		{Type: api.ObjectQueue, Handle: q0.Handle},
	}, h.Sink.Messages()[0].Objects)

	// So does the same queue, without a wait in between.
	assert.Equal(t, api.ErrorValidationFailed, h.Layer.QueueSubmit(h.Ctx, q0, writes(a), api.NullHandle))
	// Other buffers are fine.
	assert.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, q1, writes(b), api.NullHandle))

	require.Equal(t, api.Success, h.Layer.QueueWaitIdle(h.Ctx, q0))
	assert.Empty(t, s.Pending(q0.Handle))
	assert.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, q1, writes(a), api.NullHandle))

	require.Equal(t, api.Success, h.Layer.DeviceWaitIdle(h.Ctx, h.Device))
	assert.Empty(t, s.Pending(q1.Handle))
	assert.Equal(t, 2, h.Sink.Count(WriteAfterWriteID))
}

func TestSameSubmission(t *testing.T) {
	h, _ := newHarness(t, "")
	a := h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageStorage})

	submits := []api.SubmitInfo{{WrittenBuffers: []api.Handle{a}}, {WrittenBuffers: []api.Handle{a}}}
	assert.Equal(t, api.ErrorValidationFailed, h.Layer.QueueSubmit(h.Ctx, h.Queues[0], submits, api.NullHandle))
	assert.Equal(t, []string{WriteAfterWriteID}, h.IDs())
}

func TestSameQueueHazardsDisabled(t *testing.T) {
	h, _ := newHarness(t, `{"sameQueueHazards": false}`)
	a := h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageStorage})

	require.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, h.Queues[0], writes(a), api.NullHandle))
	assert.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, h.Queues[0], writes(a), api.NullHandle))
	assert.Equal(t, api.ErrorValidationFailed, h.Layer.QueueSubmit(h.Ctx, h.Queues[1], writes(a), api.NullHandle))
	assert.Equal(t, []string{WriteAfterWriteID}, h.IDs())
}

func TestDestroyPendingBuffer(t *testing.T) {
	h, s := newHarness(t, "")
	a := h.Buffer(&api.BufferCreateInfo{Size: 64, Usage: gputypes.BufferUsageStorage})
	require.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, h.Queues[0], writes(a), api.NullHandle))

	assert.Equal(t, api.Success, h.Layer.DestroyBuffer(h.Ctx, h.Device, a), "teardown is never blocked")
	assert.Equal(t, []string{DestroyInUseID}, h.IDs())
	assert.Empty(t, s.Pending(h.Queues[0].Handle))
}

func TestFactoryParameters(t *testing.T) {
	_, err := SyncValFactory("sv", json.RawMessage(`{"sameQueueHazards": "yes"}`), nil)
	assert.Error(t, err)
}
