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

package chain

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/metrics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// PreCallValidate runs the validation hooks subscribed for the call's function in chain order and
// stops at the first veto. It reports whether the call was vetoed and by whom.
func (c *Chain) PreCallValidate(ctx context.Context, call *api.Call) (bool, plugins.TypedName) {
	loggerTrace := log.FromContext(ctx).V(logutil.TRACE)
	for _, m := range c.validate[call.Func] {
		v := m.Validator.(PreCallValidator)
		vetoed := false
		c.withShared(ctx, m, func() {
			vetoed = v.PreCallValidate(ctx, call)
		})
		if vetoed {
			loggerTrace.Info("Call vetoed", "function", call.Func, "validator", v.TypedName())
			return true, v.TypedName()
		}
	}
	return false, plugins.TypedName{}
}

// PreCallRecord runs the record hooks subscribed for the call's function in chain order.
func (c *Chain) PreCallRecord(ctx context.Context, call *api.Call, state *CallState) {
	for _, m := range c.record[call.Func] {
		v := m.Validator.(PreCallRecorder)
		c.withExclusive(ctx, m, PhaseRecord, func() {
			state.active = m
			defer func() { state.active = nil }()
			v.PreCallRecord(ctx, call, state)
		})
	}
}

// PostCallRecord runs the post-call hooks subscribed for the call's function in chain order.
func (c *Chain) PostCallRecord(ctx context.Context, call *api.Call, state *CallState, result api.Result) {
	for _, m := range c.post[call.Func] {
		v := m.Validator.(PostCallRecorder)
		c.withExclusive(ctx, m, PhasePost, func() {
			v.PostCallRecord(ctx, call, state, result)
		})
	}
}

// withShared runs one validation hook under the validator's shared lock.
func (c *Chain) withShared(ctx context.Context, m *Member, hook func()) {
	m.Validator.RLock()
	defer m.Validator.RUnlock()
	c.run(ctx, m, PhaseValidate, hook)
}

// withExclusive runs one record hook under the validator's exclusive lock.
func (c *Chain) withExclusive(ctx context.Context, m *Member, phase Phase, hook func()) {
	m.Validator.Lock()
	defer m.Validator.Unlock()
	c.run(ctx, m, phase, hook)
}

// run times the hook and contains a panic raised by it. The caller's deferred unlock runs on
// every path, including a re-raised panic.
func (c *Chain) run(ctx context.Context, m *Member, phase Phase, hook func()) {
	tn := m.Validator.TypedName()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordInternalError(tn.Type)
			log.FromContext(ctx).Error(fmt.Errorf("%v", r), "Validator hook panicked", "validator", tn, "phase", phase)
			if c.abortOnInternalError {
				panic(r)
			}
		}
	}()
	before := c.clock.Now()
	hook()
	metrics.RecordHookLatency(phase.String(), tn.Type, tn.Name, c.clock.Since(before))
}
