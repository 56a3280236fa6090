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

package profiling

import (
	"net/http/pprof"
	"runtime"

	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

// Profiles are the pre-defined runtime/pprof profiles served under /debug/pprof/.
var Profiles = []string{
	"heap",
	"goroutine",
	"allocs",
	"threadcreate",
	"block",
	"mutex",
}

// SetupPprofHandlers adds the profile handlers to the metrics server. Dispatch runs under
// per-Context locks, so block and mutex profiling are switched on as well.
func SetupPprofHandlers(srv metricsserver.Server) error {
	for _, p := range Profiles {
		if err := srv.AddExtraHandler("/debug/pprof/"+p, pprof.Handler(p)); err != nil {
			return err
		}
	}

	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	return nil
}
