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

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/chain"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/metrics"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// Dispatch runs one intercepted call: it finds the Context of the caller's dispatchable handle,
// runs the validator chain around the forwarded call and returns the result to the application.
func (r *Registry) Dispatch(ctx context.Context, call *api.Call) api.Result {
	info := call.Func.Info()
	metrics.RecordDispatch(info.Name)

	if call.Func == api.FuncCreateInstance {
		return r.createInstance(ctx, call)
	}

	key := call.Args.DispatchHandle().Key
	c, ok := r.pin(key)
	if !ok {
		log.FromContext(ctx).Error(nil, "No live context for dispatchable handle",
			"function", info.Name, "handle", call.Args.DispatchHandle())
		return api.ErrorDeviceLost
	}

	result := func() api.Result {
		defer c.unpin()
		if call.Func == api.FuncCreateDevice {
			return r.createDevice(ctx, c, call)
		}
		return r.invoke(ctx, c, call)
	}()

	if info.Flags&api.FlagDestroysContext != 0 {
		// The error is logged by DestroyContext.
		_ = r.DestroyContext(ctx, key)
	}
	return result
}

// invoke runs the three hook phases of c's chain around the forwarded call.
func (r *Registry) invoke(ctx context.Context, c *Context, call *api.Call) api.Result {
	loggerTrace := log.FromContext(ctx).V(logutil.TRACE)
	info := call.Func.Info()

	if vetoed, by := c.chain.PreCallValidate(ctx, call); vetoed {
		metrics.RecordVeto(info.Name)
		if !info.IsTeardown() {
			loggerTrace.Info("Call skipped", "function", info.Name, "validator", by)
			return api.ErrorValidationFailed
		}
		log.FromContext(ctx).V(logutil.DEBUG).Info("Teardown call proceeds despite veto", "function", info.Name, "validator", by)
	}

	state := chain.NewCallState(call)
	c.chain.PreCallRecord(ctx, call, state)
	result := r.forward(ctx, c, call, state.Resolve())
	c.chain.PostCallRecord(ctx, call, state, result)
	loggerTrace.Info("Call completed", "function", info.Name, "result", result)
	return result
}

// createInstance creates the instance Context before the real create runs, so the chain can
// observe the call, and publishes it once the driver returned the instance handle.
func (r *Registry) createInstance(ctx context.Context, call *api.Call) api.Result {
	logger := log.FromContext(ctx)
	args := call.Args.(*api.CreateInstanceArgs)

	spec := ContextSpec{Level: api.LevelInstance}
	if args.Info != nil {
		spec.Extensions = args.Info.EnabledExtensions
		if args.Info.Link != nil {
			spec.Next = args.Info.Link.Next
		}
	}
	c, err := r.CreateContext(ctx, spec)
	if err != nil {
		logger.Error(err, "Failed to create instance context")
		abortIfDebug(r.settings.Current(), err)
		return api.ErrorInitializationFailed
	}

	result := r.invoke(ctx, c, call)
	if !result.Succeeded() {
		r.discard(ctx, c)
		return result
	}
	if args.Instance == nil || args.Instance.IsNull() {
		logger.Error(nil, "Instance creation succeeded without an instance handle")
		r.discard(ctx, c)
		return api.ErrorInitializationFailed
	}
	if err := r.Publish(ctx, args.Instance.Key, c); err != nil {
		logger.Error(err, "Failed to publish instance context")
		r.discard(ctx, c)
		return api.ErrorInitializationFailed
	}
	return result
}

// createDevice runs gpuCreateDevice on the instance chain and publishes the device Context built
// from the device's own link.
func (r *Registry) createDevice(ctx context.Context, instance *Context, call *api.Call) api.Result {
	logger := log.FromContext(ctx)
	args := call.Args.(*api.CreateDeviceArgs)

	spec := ContextSpec{Parent: instance, Level: api.LevelDevice}
	if args.Info != nil {
		spec.Extensions = args.Info.EnabledExtensions
		if args.Info.Link != nil {
			spec.Next = args.Info.Link.Next
		}
	}
	dev, err := r.CreateContext(ctx, spec)
	if err != nil {
		logger.Error(err, "Failed to create device context", "instance", instance.id)
		abortIfDebug(instance.settings, err)
		return api.ErrorInitializationFailed
	}

	result := r.invoke(ctx, instance, call)
	if !result.Succeeded() {
		r.discard(ctx, dev)
		return result
	}
	if args.Device == nil || args.Device.IsNull() {
		logger.Error(nil, "Device creation succeeded without a device handle", "instance", instance.id)
		r.discard(ctx, dev)
		return api.ErrorInitializationFailed
	}
	if err := r.Publish(ctx, args.Device.Key, dev); err != nil {
		logger.Error(err, "Failed to publish device context", "instance", instance.id)
		r.discard(ctx, dev)
		return api.ErrorInitializationFailed
	}
	return result
}

// abortIfDebug panics on an internal invariant violation when the settings ask for it.
func abortIfDebug(s *config.Settings, err error) {
	if s != nil && s.AbortOnInternalError {
		panic(err)
	}
}

// forward calls the next layer with args, translating non-dispatchable handles between the
// application's synthetic ids and the driver's real handles when wrapping is enabled.
func (r *Registry) forward(ctx context.Context, c *Context, call *api.Call, args api.Args) api.Result {
	logger := log.FromContext(ctx)
	info := call.Func.Info()

	cmd := c.table[call.Func]
	if cmd == nil {
		logger.V(logutil.DEBUG).Info("Function not available on this context", "function", info.Name, "context", c.id)
		if info.Extension != "" {
			return api.ErrorExtensionNotPresent
		}
		return api.ErrorIncompatibleDriver
	}

	wrapping := c.settings.HandleWrapping
	if wrapping {
		if in, ok := args.(api.HandleInputs); ok {
			args = in.MapHandles(func(id api.Handle) api.Handle { return r.unwrap(ctx, info.Name, id) })
		}
	}

	result := cmd.Invoke(ctx, &api.Call{Func: call.Func, Args: args})
	if !wrapping {
		return result
	}

	if created, ok := call.Args.(api.HandleCreator); ok && result.Succeeded() {
		if out, typ := created.CreatedHandle(); out != nil && *out != api.NullHandle {
			id, err := r.handles.Wrap(*out)
			if err != nil {
				logger.Error(err, "Failed to wrap created handle", "function", info.Name, "type", typ)
				abortIfDebug(c.settings, err)
				return api.ErrorOutOfHostMemory
			}
			*out = id
		}
	}
	if destroyed, ok := call.Args.(api.HandleDestroyer); ok {
		if id, typ := destroyed.DestroyedHandle(); id != api.NullHandle {
			if _, ok := r.handles.Release(id); !ok {
				logger.V(logutil.DEFAULT).Info("Destroy of an unknown handle ignored", "function", info.Name, "type", typ, "handle", id)
			}
		}
	}
	metrics.RecordWrappedHandles(r.handles.Len())
	return result
}

func (r *Registry) unwrap(ctx context.Context, function string, id api.Handle) api.Handle {
	if id == api.NullHandle {
		return api.NullHandle
	}
	h, ok := r.handles.Unwrap(id)
	if !ok {
		log.FromContext(ctx).V(logutil.DEFAULT).Info("Unknown handle forwarded as null", "function", function, "handle", id)
		return api.NullHandle
	}
	return h
}
