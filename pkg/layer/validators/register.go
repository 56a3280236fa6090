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

// Package validators collects the in-tree validators.
package validators

import (
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/bestpractices"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/core"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/debugprintf"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/gpuav"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/objecttracker"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/stateless"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/syncval"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/threadsafety"
)

// RegisterAll registers the factory functions of all in-tree validators with r.
func RegisterAll(r plugins.FactoryRegistry) {
	r.Register(threadsafety.ThreadSafetyType, threadsafety.ThreadSafetyFactory)
	r.Register(stateless.StatelessType, stateless.StatelessFactory)
	r.Register(objecttracker.ObjectTrackerType, objecttracker.ObjectTrackerFactory)
	r.Register(core.CoreType, core.CoreFactory)
	r.Register(bestpractices.BestPracticesType, bestpractices.BestPracticesFactory)
	r.Register(gpuav.GPUAVType, gpuav.GPUAVFactory)
	r.Register(debugprintf.DebugPrintfType, debugprintf.DebugPrintfFactory)
	r.Register(syncval.SyncValType, syncval.SyncValFactory)
}

// RegisterAllPlugins registers the in-tree validators with the process-wide registry.
func RegisterAllPlugins() {
	RegisterAll(plugins.Registry)
}
