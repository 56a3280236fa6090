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
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
)

// Member is a validator placed in a chain.
type Member struct {
	Validator Validator
	// MustWin gives the validator's overrides precedence over those of validators without it.
	MustWin bool
	// Position is the index in the chain, assigned by New.
	Position int
}

// Chain is the ordered list of validators of one Context together with the per-function
// subscription index. It is immutable after New returns.
type Chain struct {
	members []*Member
	byName  map[string]*Member

	validate [api.NumFuncs][]*Member
	record   [api.NumFuncs][]*Member
	post     [api.NumFuncs][]*Member

	abortOnInternalError bool
	clock                clock.PassiveClock

	releaseOnce sync.Once
	releaseErr  error
}

// Option configures a Chain.
type Option func(*Chain)

// WithAbortOnInternalError re-raises panics from hooks after they were logged.
func WithAbortOnInternalError(abort bool) Option {
	return func(c *Chain) { c.abortOnInternalError = abort }
}

// WithClock sets the clock used to time hooks.
func WithClock(clk clock.PassiveClock) Option {
	return func(c *Chain) { c.clock = clk }
}

// New builds a chain from members in the given order and indexes their subscriptions. A member
// subscribing a phase it does not implement is a configuration error.
func New(members []Member, opts ...Option) (*Chain, error) {
	c := &Chain{
		byName: make(map[string]*Member, len(members)),
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	names := sets.New[string]()
	for i := range members {
		m := members[i]
		m.Position = i
		name := m.Validator.TypedName().Name
		if names.Has(name) {
			return nil, fmt.Errorf("validator name '%s' is used more than once", name)
		}
		names.Insert(name)
		c.members = append(c.members, &m)
		c.byName[name] = &m
	}

	for _, f := range api.Funcs() {
		for _, m := range c.members {
			phases := m.Validator.Subscriptions().Phases(f)
			if phases&PhaseValidate != 0 {
				if _, ok := m.Validator.(PreCallValidator); !ok {
					return nil, unimplemented(m, PhaseValidate)
				}
				c.validate[f] = append(c.validate[f], m)
			}
			if phases&PhaseRecord != 0 {
				if _, ok := m.Validator.(PreCallRecorder); !ok {
					return nil, unimplemented(m, PhaseRecord)
				}
				c.record[f] = append(c.record[f], m)
			}
			if phases&PhasePost != 0 {
				if _, ok := m.Validator.(PostCallRecorder); !ok {
					return nil, unimplemented(m, PhasePost)
				}
				c.post[f] = append(c.post[f], m)
			}
		}
	}
	return c, nil
}

func unimplemented(m *Member, p Phase) error {
	return fmt.Errorf("validator '%s' subscribes %s but does not implement it", m.Validator.TypedName(), p)
}

// Members returns the chain in order.
func (c *Chain) Members() []Member {
	out := make([]Member, len(c.members))
	for i, m := range c.members {
		out[i] = *m
	}
	return out
}

// Subscribed returns the validators indexed for f and phase, in chain order.
func (c *Chain) Subscribed(f api.FuncID, phase Phase) []plugins.TypedName {
	var list []*Member
	switch phase {
	case PhaseValidate:
		list = c.validate[f]
	case PhaseRecord:
		list = c.record[f]
	case PhasePost:
		list = c.post[f]
	}
	out := make([]plugins.TypedName, len(list))
	for i, m := range list {
		out[i] = m.Validator.TypedName()
	}
	return out
}

// Plugin returns the validator with the given name, or nil.
func (c *Chain) Plugin(name string) plugins.Plugin {
	if m, ok := c.byName[name]; ok {
		return m.Validator
	}
	return nil
}

// GetAllPlugins returns the validators in chain order.
func (c *Chain) GetAllPlugins() []plugins.Plugin {
	out := make([]plugins.Plugin, len(c.members))
	for i, m := range c.members {
		out[i] = m.Validator
	}
	return out
}

// Release releases every validator that holds resources. Only the first call has an effect;
// later calls return the same result.
func (c *Chain) Release() error {
	c.releaseOnce.Do(func() {
		for _, m := range c.members {
			if r, ok := m.Validator.(plugins.Releaser); ok {
				if err := r.Release(); err != nil {
					c.releaseErr = multierr.Append(c.releaseErr,
						fmt.Errorf("releasing validator '%s': %w", m.Validator.TypedName(), err))
				}
			}
		}
	})
	return c.releaseErr
}
