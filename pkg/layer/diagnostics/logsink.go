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

package diagnostics

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/metrics"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// trackedMessageIDs bounds how many distinct message ids the duplicate limiter remembers.
const trackedMessageIDs = 4096

// LogSink writes messages to a logr.Logger. It drops severities it was not asked to report and,
// with a duplicate limit set, stops repeating a message id after that many occurrences.
type LogSink struct {
	logger     logr.Logger
	clock      clock.PassiveClock
	limit      int
	severities sets.Set[Severity]

	mu     sync.Mutex
	counts *lru.Cache[string, int]
	labels sync.Map // api.Handle -> string
}

// Option configures a LogSink.
type Option func(*LogSink)

// WithDuplicateLimit caps how many times one message id is reported. Zero disables the cap.
func WithDuplicateLimit(limit int) Option {
	return func(s *LogSink) { s.limit = limit }
}

// WithSeverities restricts the sink to the given severities.
func WithSeverities(severities ...Severity) Option {
	return func(s *LogSink) { s.severities = sets.New(severities...) }
}

// WithClock sets the clock used to timestamp messages.
func WithClock(c clock.PassiveClock) Option {
	return func(s *LogSink) { s.clock = c }
}

// NewLogSink returns a sink reporting warnings, performance warnings and errors without a
// duplicate limit unless configured otherwise.
func NewLogSink(logger logr.Logger, opts ...Option) *LogSink {
	s := &LogSink{
		logger:     logger,
		clock:      clock.RealClock{},
		severities: sets.New(SeverityPerformance, SeverityWarning, SeverityError),
	}
	for _, opt := range opts {
		opt(s)
	}
	// The cache only fails on a non-positive size.
	s.counts, _ = lru.New[string, int](trackedMessageIDs)
	return s
}

// SetLabel records an application supplied name for a handle.
func (s *LogSink) SetLabel(handle api.Handle, label string) {
	if label == "" {
		s.labels.Delete(handle)
		return
	}
	s.labels.Store(handle, label)
}

func (s *LogSink) Report(_ context.Context, msg Message) {
	if !s.severities.Has(msg.Severity) {
		return
	}
	if s.limit > 0 {
		s.mu.Lock()
		n, _ := s.counts.Get(msg.ID)
		n++
		s.counts.Add(msg.ID, n)
		s.mu.Unlock()
		if n > s.limit {
			return
		}
		if n == s.limit {
			defer s.logger.Info("Duplicate message limit reached, further messages suppressed", "id", msg.ID, "limit", s.limit)
		}
	}
	if msg.Time.IsZero() {
		msg.Time = s.clock.Now()
	}
	metrics.RecordDiagnosticMessage(msg.Severity.String())

	keysAndValues := []any{
		"severity", msg.Severity.String(),
		"id", msg.ID,
		"validator", msg.Validator,
		"context", msg.ContextID,
		"time", msg.Time,
	}
	if len(msg.Objects) > 0 {
		keysAndValues = append(keysAndValues, "objects", s.describe(msg.Objects))
	}
	switch {
	case msg.Severity >= SeverityError:
		s.logger.Error(nil, msg.Text, keysAndValues...)
	case msg.Severity < SeverityPerformance:
		s.logger.V(logutil.VERBOSE).Info(msg.Text, keysAndValues...)
	default:
		s.logger.Info(msg.Text, keysAndValues...)
	}
}

func (s *LogSink) describe(objects []ObjectRef) []ObjectRef {
	out := make([]ObjectRef, len(objects))
	for i, o := range objects {
		if o.Label == "" {
			if label, ok := s.labels.Load(o.Handle); ok {
				o.Label = label.(string)
			}
		}
		out[i] = o
	}
	return out
}
