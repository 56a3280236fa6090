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

// Package syncval detects buffers written by queued work that has not been waited for.
package syncval

import (
	"context"
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/internal/report"
)

const (
	SyncValType = "syncval"

	WriteAfterWriteID = "SyncVal-WRITE-AFTER-WRITE"
	DestroyInUseID    = "SyncVal-DestroyBuffer-InUse"
)

// compile-time type assertions
var (
	_ chain.PreCallValidator = &SyncVal{}
	_ chain.PostCallRecorder = &SyncVal{}
)

// Parameters configure SyncVal.
type Parameters struct {
	// SameQueueHazards also reports writes racing earlier work on the same queue.
	SameQueueHazards bool `json:"sameQueueHazards"`
}

// SyncValFactory defines the factory function for SyncVal.
func SyncValFactory(name string, rawParameters json.RawMessage, handle plugins.Handle) (plugins.Plugin, error) {
	parameters := Parameters{SameQueueHazards: true}
	if rawParameters != nil {
		if err := json.Unmarshal(rawParameters, &parameters); err != nil {
			return nil, fmt.Errorf("failed to parse the parameters of the '%s' validator - %w", SyncValType, err)
		}
	}
	return New(handle, parameters).WithName(name), nil
}

// SyncVal keeps, per queue, the buffers written by submitted work. A wait on the queue or the
// device retires them.
type SyncVal struct {
	chain.Base
	handle     plugins.Handle
	reporter   report.Reporter
	parameters Parameters
	pending    map[api.Handle]sets.Set[api.Handle]
}

func New(handle plugins.Handle, parameters Parameters) *SyncVal {
	s := &SyncVal{handle: handle, parameters: parameters, pending: map[api.Handle]sets.Set[api.Handle]{}}
	return s.WithName(SyncValType)
}

// WithName sets the name of the validator.
func (s *SyncVal) WithName(name string) *SyncVal {
	s.Init(SyncValType, name)
	s.reporter = report.New(s.handle, s.TypedName())
	return s
}

func (s *SyncVal) Subscriptions() chain.Subscriptions {
	return chain.NewSubscriptions().
		Add(chain.PhaseValidate, api.FuncQueueSubmit, api.FuncDestroyBuffer).
		Add(chain.PhasePost, api.FuncQueueSubmit, api.FuncQueueWaitIdle, api.FuncDeviceWaitIdle, api.FuncDestroyBuffer)
}

func (s *SyncVal) PreCallValidate(ctx context.Context, call *api.Call) bool {
	switch a := call.Args.(type) {
	case *api.QueueSubmitArgs:
		return s.validateSubmit(ctx, call.Func, a)
	case *api.DestroyBufferArgs:
		if queue, ok := s.writer(a.Buffer); ok {
			s.reporter.Errorf(ctx, DestroyInUseID, report.Objects(api.ObjectBuffer, a.Buffer),
				"%s: buffer %s is written by work pending on queue %s", call.Func, a.Buffer, queue)
			return true
		}
	}
	return false
}

func (s *SyncVal) validateSubmit(ctx context.Context, fn api.FuncID, a *api.QueueSubmitArgs) bool {
	skip := false
	hazard := func(buf, queue api.Handle, earlier string) {
		s.reporter.Report(ctx, diagnostics.SeverityError, WriteAfterWriteID,
			fmt.Sprintf("%s: buffer %s is written while %s on queue %s may still write it", fn, buf, earlier, queue),
			report.Object(api.ObjectBuffer, buf), report.Object(api.ObjectQueue, queue))
		skip = true
	}
	batch := sets.New[api.Handle]()
	for _, submit := range a.Submits {
		for _, buf := range submit.WrittenBuffers {
			if buf == api.NullHandle {
				continue
			}
			queue, ok := s.writer(buf)
			switch {
			case ok && queue != a.Queue.Handle:
				hazard(buf, queue, "work submitted")
			case ok && s.parameters.SameQueueHazards:
				hazard(buf, queue, "earlier work")
			case batch.Has(buf) && s.parameters.SameQueueHazards:
				hazard(buf, a.Queue.Handle, "another batch of this submission")
			}
		}
		batch.Insert(submit.WrittenBuffers...)
	}
	return skip
}

// writer returns a queue with pending work writing buf.
func (s *SyncVal) writer(buf api.Handle) (api.Handle, bool) {
	for queue, written := range s.pending {
		if written.Has(buf) {
			return queue, true
		}
	}
	return api.NullHandle, false
}

func (s *SyncVal) PostCallRecord(_ context.Context, call *api.Call, _ *chain.CallState, result api.Result) {
	switch a := call.Args.(type) {
	case *api.QueueSubmitArgs:
		if result != api.Success {
			return
		}
		written, ok := s.pending[a.Queue.Handle]
		if !ok {
			written = sets.New[api.Handle]()
			s.pending[a.Queue.Handle] = written
		}
		for _, submit := range a.Submits {
			written.Insert(submit.WrittenBuffers...)
		}
		written.Delete(api.NullHandle)
	case *api.QueueWaitIdleArgs:
		delete(s.pending, a.Queue.Handle)
	case *api.DeviceWaitIdleArgs:
		clear(s.pending)
	case *api.DestroyBufferArgs:
		for _, written := range s.pending {
			written.Delete(a.Buffer)
		}
	}
}

// Pending returns the buffers written by work outstanding on queue.
func (s *SyncVal) Pending(queue api.Handle) []api.Handle {
	s.RLock()
	defer s.RUnlock()
	return sets.List(s.pending[queue])
}
