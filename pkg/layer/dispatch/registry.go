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

// Package dispatch owns the process-wide state of the layer: the Contexts of every live instance
// and device, keyed by dispatch key, and the handle virtualization table. The Registry is the
// only entry point through which application calls reach the validator chains.
package dispatch

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/datastore"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/metrics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	errutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/error"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// SinkFactory builds the diagnostic sink of a new instance Context.
type SinkFactory func(settings *config.Settings, logger logr.Logger) diagnostics.Sink

// Registry is the service object owning the key table and the handle table.
type Registry struct {
	keys      *datastore.KeyTable[*Context]
	handles   *datastore.HandleTable
	factories plugins.FactoryRegistry
	settings  config.Source
	newSink   SinkFactory
	clock     clock.PassiveClock

	// entries are the layer's own entry points, one per intercepted function.
	entries [api.NumFuncs]*api.Command
}

// Option configures a Registry.
type Option func(*Registry)

// WithFactories sets the validator factories. Defaults to plugins.Registry.
func WithFactories(factories plugins.FactoryRegistry) Option {
	return func(r *Registry) { r.factories = factories }
}

// WithSettings sets the source new instance Contexts take their settings from.
func WithSettings(source config.Source) Option {
	return func(r *Registry) { r.settings = source }
}

// WithSinkFactory replaces the default log-backed diagnostic sink.
func WithSinkFactory(f SinkFactory) Option {
	return func(r *Registry) { r.newSink = f }
}

func WithClock(c clock.PassiveClock) Option {
	return func(r *Registry) { r.clock = c }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		keys:      &datastore.KeyTable[*Context]{},
		handles:   datastore.NewHandleTable(),
		factories: plugins.Registry,
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.settings == nil {
		r.settings = config.NewStatic(config.ApplyEnv(config.Default(), log.Log.WithName("settings")))
	}
	if r.newSink == nil {
		r.newSink = r.defaultSink
	}
	for _, f := range api.Funcs() {
		r.entries[f] = &api.Command{
			Name: f.String(),
			Invoke: func(ctx context.Context, call *api.Call) api.Result {
				return r.Dispatch(ctx, &api.Call{Func: f, Args: call.Args})
			},
		}
	}
	return r
}

func (r *Registry) defaultSink(s *config.Settings, logger logr.Logger) diagnostics.Sink {
	return NewLogSink(s, logger, r.clock)
}

// NewLogSink returns the log-backed sink configured by the duplicate limit and severity filter
// of s.
func NewLogSink(s *config.Settings, logger logr.Logger, c clock.PassiveClock) *diagnostics.LogSink {
	opts := []diagnostics.Option{diagnostics.WithDuplicateLimit(s.DuplicateMessageLimit), diagnostics.WithClock(c)}
	if severities, err := s.Severities(); err == nil && len(severities) > 0 {
		opts = append(opts, diagnostics.WithSeverities(severities...))
	}
	return diagnostics.NewLogSink(logger.WithName("diagnostics"), opts...)
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide Registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// ShutdownDefault tears the process-wide Registry down. The next call to Default creates a new one.
func ShutdownDefault(ctx context.Context) error {
	defaultMu.Lock()
	r := defaultRegistry
	defaultRegistry = nil
	defaultMu.Unlock()
	if r == nil {
		return nil
	}
	return r.Shutdown(ctx)
}

// Handles exposes the handle virtualization table.
func (r *Registry) Handles() *datastore.HandleTable {
	return r.handles
}

// ContextSpec describes a Context to create.
type ContextSpec struct {
	// Parent is the instance Context of a device Context.
	Parent *Context
	Level  api.Level
	// Settings overrides the registry's settings source for an instance Context. Device
	// Contexts always inherit the parent's snapshot.
	Settings *config.Settings
	// Next resolves the entry points of the next layer down.
	Next       api.ProcResolver
	Extensions []string
}

// CreateContext builds a Context: it instantiates the enabled validators, indexes their
// subscriptions and resolves the forwarding table. The Context is not reachable through Lookup
// until it is published.
func (r *Registry) CreateContext(ctx context.Context, spec ContextSpec) (*Context, error) {
	if spec.Next == nil {
		return nil, errutil.Errorf(errutil.InitializationFailed, "no next layer to forward %s calls to", spec.Level)
	}
	if spec.Level == api.LevelDevice && spec.Parent == nil {
		return nil, errutil.Errorf(errutil.InitializationFailed, "device context without an instance")
	}

	c := &Context{
		id:         uuid.NewString(),
		level:      spec.Level,
		parent:     spec.Parent,
		next:       spec.Next,
		extensions: sets.New(spec.Extensions...),
	}
	c.logger = log.FromContext(ctx).WithValues("context", c.id, "level", c.level)

	switch {
	case spec.Parent != nil:
		c.settings = spec.Parent.settings
		c.sink = spec.Parent.sink
		c.extensions = c.extensions.Union(spec.Parent.extensions)
	case spec.Settings != nil:
		c.settings = spec.Settings
	default:
		c.settings = r.settings.Current()
	}
	if c.settings == nil {
		return nil, errutil.Errorf(errutil.BadConfiguration, "no settings available")
	}
	if c.sink == nil {
		c.sink = r.newSink(c.settings, c.logger)
	}
	c.enabled = c.settings.EnabledTypes()

	if err := r.resolveTable(c); err != nil {
		return nil, err
	}
	if err := r.buildChain(ctx, c); err != nil {
		return nil, err
	}
	c.logger.V(logutil.VERBOSE).Info("Context created", "validators", len(c.chain.Members()))
	return c, nil
}

// resolveTable fills the forwarding table with the next layer's entry points for every function
// of the Context's level. Functions of extensions that are not enabled stay unresolved.
func (r *Registry) resolveTable(c *Context) error {
	for _, f := range api.Funcs() {
		info := f.Info()
		if info.Level != c.level {
			continue
		}
		if info.Extension != "" && !c.extensions.Has(info.Extension) {
			continue
		}
		c.table[f] = c.next.GetProcAddr(info.Name)
	}
	required := api.FuncDestroyInstance
	if c.level == api.LevelDevice {
		required = api.FuncDestroyDevice
	}
	if c.table[required] == nil {
		return errutil.Errorf(errutil.InitializationFailed, "next layer does not provide %s", required)
	}
	return nil
}

func (r *Registry) buildChain(ctx context.Context, c *Context) error {
	handle := newContextHandle(ctx, c)
	specs := c.settings.EnabledValidators()
	members := make([]chain.Member, 0, len(specs))
	cleanup := func() {
		for _, m := range members {
			if rel, ok := m.Validator.(plugins.Releaser); ok {
				_ = rel.Release()
			}
		}
	}
	for _, spec := range specs {
		p, err := r.factories.New(spec.Type, spec.InstanceName(), spec.Parameters, handle)
		if err != nil {
			cleanup()
			return errutil.Errorf(errutil.InitializationFailed, "failed to instantiate validator %s - %v", spec.InstanceName(), err)
		}
		v, ok := p.(chain.Validator)
		if !ok {
			if rel, ok := p.(plugins.Releaser); ok {
				_ = rel.Release()
			}
			cleanup()
			return errutil.Errorf(errutil.InitializationFailed, "plugin %s is not a validator", p.TypedName())
		}
		members = append(members, chain.Member{Validator: v, MustWin: spec.MustWin})
	}
	ch, err := chain.New(members,
		chain.WithAbortOnInternalError(c.settings.AbortOnInternalError),
		chain.WithClock(r.clock))
	if err != nil {
		cleanup()
		return errutil.Errorf(errutil.InitializationFailed, "%v", err)
	}
	c.chain = ch
	return nil
}

// Publish makes c reachable under key. Dispatchable handles created under the same object carry
// the same key and resolve to c.
func (r *Registry) Publish(ctx context.Context, key api.DispatchKey, c *Context) error {
	c.key = key
	if err := r.keys.Insert(key, c); err != nil {
		return errutil.Errorf(errutil.Internal, "%v", err)
	}
	metrics.RecordContextCreated(c.level.String())
	log.FromContext(ctx).V(logutil.DEFAULT).Info("Context published", "context", c.id, "level", c.level, "key", uint64(key))
	return nil
}

// discard releases a Context that was never published.
func (r *Registry) discard(ctx context.Context, c *Context) {
	if err := c.chain.Release(); err != nil {
		log.FromContext(ctx).Error(err, "Failed to release validators of an unpublished context", "context", c.id)
	}
}

// Lookup returns the live Context owning key.
func (r *Registry) Lookup(key api.DispatchKey) (*Context, bool) {
	return r.keys.Lookup(key)
}

// DestroyContext unpublishes the Context owning key, waits for its in-flight calls and releases
// each of its validators exactly once.
func (r *Registry) DestroyContext(ctx context.Context, key api.DispatchKey) error {
	logger := log.FromContext(ctx)
	c, ok := r.keys.Erase(key)
	if !ok {
		err := errutil.Errorf(errutil.ContextNotFound, "no context for dispatch key 0x%x", uint64(key))
		logger.V(logutil.DEFAULT).Info("Destroy of an unknown context ignored", "key", uint64(key))
		return err
	}
	if c.level == api.LevelInstance {
		r.keys.Range(func(_ api.DispatchKey, child *Context) bool {
			if child.parent == c {
				logger.Info("Instance destroyed before its device", "instance", c.id, "device", child.id)
			}
			return true
		})
	}
	c.markAndDrain()
	metrics.RecordContextDestroyed(c.level.String())
	err := c.chain.Release()
	if err != nil {
		logger.Error(err, "Failed to release validators", "context", c.id)
	}
	logger.V(logutil.DEFAULT).Info("Context destroyed", "context", c.id, "level", c.level, "key", uint64(key))
	return err
}

// Shutdown destroys every remaining Context, devices first, and clears the handle table.
func (r *Registry) Shutdown(ctx context.Context) error {
	var devices, instances []api.DispatchKey
	r.keys.Range(func(key api.DispatchKey, c *Context) bool {
		if c.level == api.LevelDevice {
			devices = append(devices, key)
		} else {
			instances = append(instances, key)
		}
		return true
	})
	var errs error
	for _, key := range append(devices, instances...) {
		if err := r.DestroyContext(ctx, key); err != nil && errutil.CanonicalCode(err) != errutil.ContextNotFound {
			errs = multierr.Append(errs, err)
		}
	}
	r.handles.Clear()
	metrics.RecordWrappedHandles(0)
	return errs
}
