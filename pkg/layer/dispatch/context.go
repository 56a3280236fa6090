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

package dispatch

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
)

// Context is the runtime state of one instance or device: its validator chain with the
// subscription index, the forwarding table to the next layer and the configuration it was
// created with. Everything except the lease state is immutable once the Context is published.
type Context struct {
	leasedState

	id         string
	level      api.Level
	key        api.DispatchKey
	parent     *Context
	settings   *config.Settings
	enabled    sets.Set[string]
	extensions sets.Set[string]
	chain      *chain.Chain
	sink       diagnostics.Sink
	logger     logr.Logger

	// table is resolved once from next and never re-resolved.
	table [api.NumFuncs]*api.Command
	next  api.ProcResolver
	// passthrough caches names resolved from next that this layer does not intercept.
	passthrough sync.Map // string -> *api.Command
}

// ID is a unique identifier used in logs and diagnostics.
func (c *Context) ID() string { return c.id }

func (c *Context) Level() api.Level { return c.level }

// Key is the dispatch key the Context is published under. It is zero before publication.
func (c *Context) Key() api.DispatchKey { return c.key }

// Parent is the instance Context of a device Context, nil for instance Contexts.
func (c *Context) Parent() *Context { return c.parent }

// Settings is the read-only snapshot the Context was created with.
func (c *Context) Settings() *config.Settings { return c.settings }

// Enabled reports whether a validator type is part of the chain.
func (c *Context) Enabled(validatorType string) bool { return c.enabled.Has(validatorType) }

// ExtensionEnabled reports whether the application enabled an extension for this Context or,
// for a device, for its instance.
func (c *Context) ExtensionEnabled(name string) bool { return c.extensions.Has(name) }

func (c *Context) Chain() *chain.Chain { return c.chain }

// Sink is the diagnostic sink, shared between an instance and its devices.
func (c *Context) Sink() diagnostics.Sink { return c.sink }

// Validator returns the named validator, or nil.
func (c *Context) Validator(name string) plugins.Plugin { return c.chain.Plugin(name) }

// contextHandle is the plugins.Handle given to factories while a Context is being built.
type contextHandle struct {
	ctx context.Context
	c   *Context
}

func newContextHandle(ctx context.Context, c *Context) *contextHandle {
	return &contextHandle{ctx: log.IntoContext(ctx, c.logger), c: c}
}

func (h *contextHandle) Context() context.Context { return h.ctx }
func (h *contextHandle) ContextID() string        { return h.c.id }
func (h *contextHandle) Level() api.Level         { return h.c.level }
func (h *contextHandle) Sink() diagnostics.Sink   { return h.c.sink }

func (h *contextHandle) Parent() plugins.HandlePlugins {
	if h.c.parent == nil {
		return nil
	}
	return h.c.parent.chain
}
