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
	"errors"
	"fmt"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
)

// ErrNotFound is returned when reading a state key that was never written.
var ErrNotFound = errors.New("not found")

// StateKey names a value validators keep in the call state between phases.
type StateKey string

// StateData is a value kept in the call state.
type StateData any

type override struct {
	by       plugins.TypedName
	position int
	mustWin  bool
	args     api.Args
}

// CallState is the per-call side channel. The trampoline creates one before the chain runs and
// passes it to every record hook of the call. It is confined to the calling goroutine.
type CallState struct {
	call     *api.Call
	active   *Member
	override *override
	data     map[StateKey]StateData
}

// NewCallState returns the state for one call.
func NewCallState(call *api.Call) *CallState {
	return &CallState{call: call}
}

// StageOverride asks for args to be forwarded instead of the application's arguments. It is only
// honored from PreCallRecord. Among several overrides the last one in chain order wins, except
// that an override staged by a must-win validator beats any override from one that is not.
func (s *CallState) StageOverride(args api.Args) error {
	if s.active == nil {
		return errors.New("overrides can only be staged from PreCallRecord")
	}
	if args == nil {
		return nil
	}
	candidate := &override{
		by:       s.active.Validator.TypedName(),
		position: s.active.Position,
		mustWin:  s.active.MustWin,
		args:     args,
	}
	cur := s.override
	switch {
	case cur == nil:
	case candidate.mustWin != cur.mustWin:
		if !candidate.mustWin {
			return nil
		}
	case candidate.position < cur.position:
		return nil
	}
	s.override = candidate
	return nil
}

// Resolve returns the arguments to forward: the winning override, or the original arguments.
func (s *CallState) Resolve() api.Args {
	if s.override != nil {
		return s.override.args
	}
	return s.call.Args
}

// OverriddenBy reports which validator's override won, if any.
func (s *CallState) OverriddenBy() (plugins.TypedName, bool) {
	if s.override == nil {
		return plugins.TypedName{}, false
	}
	return s.override.by, true
}

// Write stores val under key for later phases of the same call.
func (s *CallState) Write(key StateKey, val StateData) {
	if s.data == nil {
		s.data = map[StateKey]StateData{}
	}
	s.data[key] = val
}

// Read returns the value stored under key.
func (s *CallState) Read(key StateKey) (StateData, error) {
	if val, ok := s.data[key]; ok {
		return val, nil
	}
	return nil, ErrNotFound
}

// ReadCallStateKey retrieves data with the given key and asserts it to type T.
func ReadCallStateKey[T StateData](state *CallState, key StateKey) (T, error) {
	var zero T

	raw, err := state.Read(key)
	if err != nil {
		return zero, err
	}
	val, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type for key %q: got %T", key, raw)
	}
	return val, nil
}
