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

// Package diagnostics carries validator findings from the chain to the outside world.
package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

// Severity orders diagnostic messages from least to most severe.
type Severity int

const (
	SeverityVerbose Severity = iota
	SeverityInfo
	SeverityPerformance
	SeverityWarning
	SeverityError
)

var severityNames = []string{"verbose", "info", "performance", "warning", "error"}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity parses the lower case name of a severity.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// ObjectRef names an object a message is about.
type ObjectRef struct {
	Type   api.ObjectType
	Handle api.Handle
	// Label is filled in by sinks that track object names.
	Label string
}

// Message is one finding reported by a validator.
type Message struct {
	Severity Severity
	// ID is a stable identifier of the rule that produced the message.
	ID        string
	Text      string
	Objects   []ObjectRef
	Validator string
	ContextID string
	Time      time.Time
}

// Sink receives diagnostic messages. Implementations must be safe for concurrent use; one sink is
// shared by an instance Context and all of its device Contexts.
type Sink interface {
	Report(ctx context.Context, msg Message)
}

// Labeler is implemented by sinks that attach application supplied names to object references.
type Labeler interface {
	SetLabel(handle api.Handle, label string)
}

// Discard drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(context.Context, Message) {}

// Tee fans a message out to several sinks in order.
type Tee []Sink

func (t Tee) Report(ctx context.Context, msg Message) {
	for _, s := range t {
		s.Report(ctx, msg)
	}
}

func (t Tee) SetLabel(handle api.Handle, label string) {
	for _, s := range t {
		if l, ok := s.(Labeler); ok {
			l.SetLabel(handle, label)
		}
	}
}
