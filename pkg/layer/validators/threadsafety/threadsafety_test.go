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

package threadsafety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/validatortest"
)

func TestOverlappingUseIsReported(t *testing.T) {
	ctx := context.Background()
	sink := diagnostics.NewRecorder()
	ts := New(&validatortest.Handle{ID: "ctx-1", Lvl: api.LevelDevice, Diag: sink})
	queue := api.Dispatchable{Key: 1, Handle: 0x10}

	first := &api.Call{Func: api.FuncQueueSubmit, Args: &api.QueueSubmitArgs{Queue: queue, Fence: 0x20}}
	second := &api.Call{Func: api.FuncQueueWaitIdle, Args: &api.QueueWaitIdleArgs{Queue: queue}}
	firstState, secondState := chain.NewCallState(first), chain.NewCallState(second)

	ts.PreCallRecord(ctx, first, firstState)
	assert.Equal(t, 2, ts.InUse(), "queue and fence are held")
	assert.Empty(t, sink.Messages())

	// The second call starts before the first returned.
	ts.PreCallRecord(ctx, second, secondState)
	require.Equal(t, []string{MultipleThreadsID}, sink.IDs())
	msg := sink.Messages()[0]
	assert.Equal(t, diagnostics.SeverityError, msg.Severity)
	assert.Equal(t, "ctx-1", msg.ContextID)
	assert.Equal(t, []diagnostics.ObjectRef{{Type: api.ObjectQueue, Handle: 0x10}}, msg.Objects)
	assert.Contains(t, msg.Text, "gpuQueueSubmit")

	ts.PostCallRecord(ctx, first, firstState, api.Success)
	ts.PostCallRecord(ctx, second, secondState, api.Success)
	assert.Equal(t, 0, ts.InUse())

	// Sequential use is fine.
	third := &api.Call{Func: api.FuncQueueWaitIdle, Args: &api.QueueWaitIdleArgs{Queue: queue}}
	state := chain.NewCallState(third)
	ts.PreCallRecord(ctx, third, state)
	ts.PostCallRecord(ctx, third, state, api.Success)
	assert.Len(t, sink.Messages(), 1)
}

func TestSynchronizedObjects(t *testing.T) {
	dev := api.Dispatchable{Key: 1, Handle: 0x1}
	tests := []struct {
		name string
		args api.Args
		want []diagnostics.ObjectRef
	}{
		{
			name: "destroyed handle",
			args: &api.DestroyBufferArgs{Device: dev, Buffer: 0x5},
			want: []diagnostics.ObjectRef{{Type: api.ObjectBuffer, Handle: 0x5}},
		},
		{
			name: "bound buffer",
			args: &api.BindBufferMemoryArgs{Device: dev, Buffer: 0x5, Memory: 0x6},
			want: []diagnostics.ObjectRef{{Type: api.ObjectBuffer, Handle: 0x5}},
		},
		{
			name: "named object",
			args: &api.SetObjectNameArgs{Device: dev, ObjectType: api.ObjectTexture, Object: 0x7, Name: "t"},
			want: []diagnostics.ObjectRef{{Type: api.ObjectTexture, Handle: 0x7}},
		},
		{
			name: "device destroy",
			args: &api.DestroyDeviceArgs{Device: dev},
			want: []diagnostics.ObjectRef{{Type: api.ObjectDevice, Handle: 0x1}},
		},
		{
			name: "creation holds nothing",
			args: &api.CreateBufferArgs{Device: dev},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, synchronized(&api.Call{Args: test.args}))
		})
	}
}

func TestThroughLayer(t *testing.T) {
	factories := plugins.FactoryRegistry{ThreadSafetyType: ThreadSafetyFactory}
	h := validatortest.New(t, factories, []config.ValidatorSpec{{Type: ThreadSafetyType, Name: "threads"}})

	buf := h.Buffer(&api.BufferCreateInfo{Size: 64})
	require.Equal(t, api.Success, h.Layer.QueueSubmit(h.Ctx, h.Queues[0], nil, api.NullHandle))
	require.Equal(t, api.Success, h.Layer.DestroyBuffer(h.Ctx, h.Device, buf))

	ts, ok := h.Validator("threads").(*ThreadSafety)
	require.True(t, ok)
	assert.Equal(t, "threads", ts.TypedName().Name)
	assert.Equal(t, 0, ts.InUse(), "every hold is released after the call")
	assert.Empty(t, h.IDs())
}
