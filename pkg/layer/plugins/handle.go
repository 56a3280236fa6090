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

package plugins

import (
	"context"
	"fmt"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
)

// Handle provides plugins with the data and tools of the Context they are created for.
type Handle interface {
	// Context returns a context carrying the Context's logger.
	Context() context.Context

	// ContextID identifies the owning Context in logs and diagnostics.
	ContextID() string

	// Level is the scope of the owning Context.
	Level() api.Level

	// Sink is the diagnostic sink. Device Contexts share the sink of their instance.
	Sink() diagnostics.Sink

	// Parent returns the plugins of the parent Context, or nil for an instance-level Context.
	Parent() HandlePlugins
}

// HandlePlugins defines a set of APIs to work with instantiated plugins
type HandlePlugins interface {
	// Plugin returns the named plugin instance
	Plugin(name string) Plugin

	// GetAllPlugins returns all of the known plugins in chain order
	GetAllPlugins() []Plugin
}

// PluginByType retrieves the specified plugin by name and verifies its type
func PluginByType[P Plugin](handlePlugins HandlePlugins, name string) (P, error) {
	var zero P

	if handlePlugins == nil {
		return zero, fmt.Errorf("no plugins available to look up '%s'", name)
	}
	rawPlugin := handlePlugins.Plugin(name)
	if rawPlugin == nil {
		return zero, fmt.Errorf("there is no plugin with the name '%s' defined", name)
	}
	plugin, ok := rawPlugin.(P)
	if !ok {
		return zero, fmt.Errorf("the plugin with the name '%s' is not an instance of %T", name, zero)
	}
	return plugin, nil
}
