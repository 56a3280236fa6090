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

package api

import "context"

// Args is implemented by every per-function argument struct.
type Args interface {
	// DispatchHandle returns the dispatchable handle the call is made on. It is null for
	// gpuCreateInstance, which has no owning object yet.
	DispatchHandle() Dispatchable
}

// Call is one invocation of an intercepted function.
type Call struct {
	Func FuncID
	Args Args
}

// Handler executes a call at one level of the layer stack.
type Handler func(ctx context.Context, call *Call) Result

// Command is a resolved entry point. Resolvers return stable pointers, so two resolutions of the
// same name can be compared by identity.
type Command struct {
	Name   string
	Invoke Handler
}

// ProcResolver resolves entry points by name. Both the driver and every layer implement it.
type ProcResolver interface {
	// GetProcAddr returns nil when name is unknown.
	GetProcAddr(name string) *Command
}

// LayerLink is chained into the create info of gpuCreateInstance and gpuCreateDevice and points
// at the next layer down. A layer without a link has nothing to forward to.
type LayerLink struct {
	Next ProcResolver
}
