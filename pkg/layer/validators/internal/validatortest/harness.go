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

// Package validatortest runs validators inside a real layer stack over the in-memory driver.
package validatortest

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/dispatch"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/driver/memdriver"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/entrypoints"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// Harness is an instance and a device with two queues, created through a layer running the
// validators under test.
type Harness struct {
	T        *testing.T
	Ctx      context.Context
	Layer    *entrypoints.Layer
	Registry *dispatch.Registry
	Driver   *memdriver.Driver
	Sink     *diagnostics.Recorder

	Instance api.Dispatchable
	Device   api.Dispatchable
	Queues   []api.Dispatchable
}

type options struct {
	driver   []memdriver.Option
	settings func(*config.Settings)
}

// Option configures a Harness.
type Option func(*options)

// WithDriverOptions configures the in-memory driver.
func WithDriverOptions(opts ...memdriver.Option) Option {
	return func(o *options) { o.driver = append(o.driver, opts...) }
}

// WithSettings adjusts the settings before the instance is created.
func WithSettings(fn func(*config.Settings)) Option {
	return func(o *options) { o.settings = fn }
}

// New builds the stack. factories must hold the factory of every type in specs.
func New(t *testing.T, factories plugins.FactoryRegistry, specs []config.ValidatorSpec, opts ...Option) *Harness {
	t.Helper()
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	settings := &config.Settings{Validators: specs, HandleWrapping: true}
	if o.settings != nil {
		o.settings(settings)
	}

	h := &Harness{
		T:      t,
		Ctx:    logutil.NewTestLoggerIntoContext(context.Background()),
		Driver: memdriver.New(o.driver...),
		Sink:   diagnostics.NewRecorder(),
	}
	h.Registry = dispatch.NewRegistry(
		dispatch.WithFactories(factories),
		dispatch.WithSettings(config.NewStatic(settings)),
		dispatch.WithSinkFactory(func(*config.Settings, logr.Logger) diagnostics.Sink { return h.Sink }),
	)
	h.Layer = entrypoints.New(h.Registry)
	t.Cleanup(func() { _ = h.Registry.Shutdown(context.Background()) })

	var r api.Result
	h.Instance, r = h.Layer.CreateInstance(h.Ctx, &api.InstanceCreateInfo{
		ApplicationName:   t.Name(),
		EnabledExtensions: []string{api.ExtDebugUtils},
		Link:              h.Driver.Link(),
	})
	require.Equal(t, api.Success, r, "instance creation")
	physical, r := h.Layer.EnumeratePhysicalDevices(h.Ctx, h.Instance)
	require.Equal(t, api.Success, r)
	require.NotEmpty(t, physical)
	h.Device, r = h.Layer.CreateDevice(h.Ctx, physical[0], &api.DeviceCreateInfo{QueueCount: 2, Link: h.Driver.Link()})
	require.Equal(t, api.Success, r, "device creation")
	for i := range uint32(2) {
		q, r := h.Layer.GetDeviceQueue(h.Ctx, h.Device, i)
		require.Equal(t, api.Success, r)
		h.Queues = append(h.Queues, q)
	}
	return h
}

// Validator returns the named validator of the device Context.
func (h *Harness) Validator(name string) plugins.Plugin {
	c, ok := h.Registry.Lookup(h.Device.Key)
	require.True(h.T, ok, "device context")
	return c.Validator(name)
}

// InstanceValidator returns the named validator of the instance Context.
func (h *Harness) InstanceValidator(name string) plugins.Plugin {
	c, ok := h.Registry.Lookup(h.Instance.Key)
	require.True(h.T, ok, "instance context")
	return c.Validator(name)
}

// IDs returns the identifiers of the recorded messages in arrival order.
func (h *Harness) IDs() []string {
	return h.Sink.IDs()
}

// Buffer creates a buffer and fails the test if that does not succeed.
func (h *Harness) Buffer(info *api.BufferCreateInfo) api.Handle {
	h.T.Helper()
	buf, r := h.Layer.CreateBuffer(h.Ctx, h.Device, info)
	require.Equal(h.T, api.Success, r, "buffer creation")
	return buf
}

// Handle is a plugins.Handle for validators built outside a layer.
type Handle struct {
	Ctx     context.Context
	ID      string
	Lvl     api.Level
	Diag    diagnostics.Sink
	Plugins plugins.HandlePlugins
}

var _ plugins.Handle = &Handle{}

func (h *Handle) Context() context.Context {
	if h.Ctx == nil {
		return context.Background()
	}
	return h.Ctx
}

func (h *Handle) ContextID() string { return h.ID }
func (h *Handle) Level() api.Level  { return h.Lvl }

func (h *Handle) Sink() diagnostics.Sink {
	if h.Diag == nil {
		return diagnostics.Discard
	}
	return h.Diag
}

func (h *Handle) Parent() plugins.HandlePlugins { return h.Plugins }
