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
	"encoding/json"
	"fmt"
	"sort"
)

// FactoryFunc instantiates a plugin of one type. parameters is the raw "parameters" section of
// the plugin's configuration entry and may be empty.
type FactoryFunc func(name string, parameters json.RawMessage, handle Handle) (Plugin, error)

// FactoryRegistry maps a capability tag to the factory producing plugins of that type.
type FactoryRegistry map[string]FactoryFunc

// Register adds a factory. Registering a type twice replaces the earlier factory.
func (r FactoryRegistry) Register(pluginType string, factory FactoryFunc) {
	r[pluginType] = factory
}

// New instantiates a plugin of the given type.
func (r FactoryRegistry) New(pluginType, name string, parameters json.RawMessage, handle Handle) (Plugin, error) {
	factory, ok := r[pluginType]
	if !ok {
		return nil, fmt.Errorf("plugin type '%s' is not registered", pluginType)
	}
	plugin, err := factory(name, parameters, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plugin '%s' of type '%s' - %w", name, pluginType, err)
	}
	if plugin == nil {
		return nil, fmt.Errorf("factory of type '%s' returned no plugin for '%s'", pluginType, name)
	}
	return plugin, nil
}

// Types returns the registered types, sorted.
func (r FactoryRegistry) Types() []string {
	out := make([]string, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Register is a static function that can be called to register plugin factory functions.
func Register(pluginType string, factory FactoryFunc) {
	Registry.Register(pluginType, factory)
}

// Registry is the process-wide factory registry used when a dispatch registry is not given its own.
var Registry = FactoryRegistry{}
