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

// Package report stamps validator findings with their origin before they reach the sink.
package report

import (
	"context"
	"fmt"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
)

// Reporter sends the findings of one validator instance to its Context's sink.
type Reporter struct {
	sink      diagnostics.Sink
	validator string
	contextID string
}

// New returns a Reporter for the validator created with handle. A nil handle discards messages.
func New(handle plugins.Handle, validator plugins.TypedName) Reporter {
	r := Reporter{sink: diagnostics.Discard, validator: validator.String()}
	if handle != nil {
		r.sink = handle.Sink()
		r.contextID = handle.ContextID()
	}
	return r
}

// Report sends one message.
func (r Reporter) Report(ctx context.Context, severity diagnostics.Severity, id, text string, objects ...diagnostics.ObjectRef) {
	r.sink.Report(ctx, diagnostics.Message{
		Severity:  severity,
		ID:        id,
		Text:      text,
		Objects:   objects,
		Validator: r.validator,
		ContextID: r.contextID,
	})
}

// Errorf reports an error severity message.
func (r Reporter) Errorf(ctx context.Context, id string, objects []diagnostics.ObjectRef, format string, args ...any) {
	r.Report(ctx, diagnostics.SeverityError, id, fmt.Sprintf(format, args...), objects...)
}

// Label forwards an application supplied object name to sinks that track names.
func (r Reporter) Label(handle api.Handle, label string) {
	if l, ok := r.sink.(diagnostics.Labeler); ok {
		l.SetLabel(handle, label)
	}
}

// Object is shorthand for an object reference.
func Object(typ api.ObjectType, handle api.Handle) diagnostics.ObjectRef {
	return diagnostics.ObjectRef{Type: typ, Handle: handle}
}

// Objects is shorthand for a single object reference list.
func Objects(typ api.ObjectType, handle api.Handle) []diagnostics.ObjectRef {
	return []diagnostics.ObjectRef{Object(typ, handle)}
}
