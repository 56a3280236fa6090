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
	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
)

// GetProcAddr resolves name for the object behind handle. With a null handle only
// gpuCreateInstance resolves. Intercepted functions resolve to the layer's own entry point unless
// their extension is not enabled for the Context, or an instance function is asked of a device.
// Other names are delegated to the next layer. Resolving the same name twice returns the same
// pointer.
func (r *Registry) GetProcAddr(handle api.Dispatchable, name string) *api.Command {
	f, intercepted := api.FuncByName(name)
	if handle.IsNull() {
		if intercepted && f == api.FuncCreateInstance {
			return r.entries[f]
		}
		return nil
	}

	c, ok := r.keys.Lookup(handle.Key)
	if !ok {
		return nil
	}
	if intercepted {
		info := f.Info()
		if info.Extension != "" && !c.extensions.Has(info.Extension) {
			return nil
		}
		if c.level == api.LevelDevice && info.Level == api.LevelInstance {
			return nil
		}
		return r.entries[f]
	}

	if cmd, ok := c.passthrough.Load(name); ok {
		return cmd.(*api.Command)
	}
	cmd := c.next.GetProcAddr(name)
	if cmd == nil {
		return nil
	}
	actual, _ := c.passthrough.LoadOrStore(name, cmd)
	return actual.(*api.Command)
}

// Resolver returns GetProcAddr bound to handle, so another layer can link on top of this one.
func (r *Registry) Resolver(handle api.Dispatchable) api.ProcResolver {
	return resolver{r: r, handle: handle}
}

type resolver struct {
	r      *Registry
	handle api.Dispatchable
}

func (b resolver) GetProcAddr(name string) *api.Command {
	return b.r.GetProcAddr(b.handle, name)
}
