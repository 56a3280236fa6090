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

package config

import (
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/util/env"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// Environment variables that override settings.
const (
	EnvEnables               = "CHASSIS_ENABLES"
	EnvDisables              = "CHASSIS_DISABLES"
	EnvHandleWrapping        = "CHASSIS_HANDLE_WRAPPING"
	EnvDuplicateMessageLimit = "CHASSIS_DUPLICATE_MESSAGE_LIMIT"
	EnvAbortOnInternalError  = "CHASSIS_ABORT_ON_INTERNAL_ERROR"
)

// ApplyEnv returns a copy of s with environment overrides applied. CHASSIS_ENABLES enables the
// listed validator types, appending unknown ones to the end of the chain; CHASSIS_DISABLES then
// disables the listed types.
func ApplyEnv(s *Settings, logger logr.Logger) *Settings {
	out := s.DeepCopy()
	logger = logger.V(logutil.DEBUG)

	enables := sets.New(env.GetEnvStringList(EnvEnables, nil, logger)...)
	disables := sets.New(env.GetEnvStringList(EnvDisables, nil, logger)...)

	present := sets.New[string]()
	for i := range out.Validators {
		v := &out.Validators[i]
		present.Insert(v.Type)
		if enables.Has(v.Type) {
			v.Enabled = ptr.To(true)
		}
	}
	for _, typ := range sets.List(enables.Difference(present)) {
		out.Validators = append(out.Validators, ValidatorSpec{Type: typ})
	}
	for i := range out.Validators {
		if disables.Has(out.Validators[i].Type) {
			out.Validators[i].Enabled = ptr.To(false)
		}
	}

	out.HandleWrapping = env.GetEnvBool(EnvHandleWrapping, out.HandleWrapping, logger)
	out.DuplicateMessageLimit = env.GetEnvInt(EnvDuplicateMessageLimit, out.DuplicateMessageLimit, logger)
	out.AbortOnInternalError = env.GetEnvBool(EnvAbortOnInternalError, out.AbortOnInternalError, logger)
	return out
}
