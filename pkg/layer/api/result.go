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

import "fmt"

// Result is the status every intercepted function returns to the application.
// Negative values are errors, zero and positive values are successes.
type Result int32

const (
	Success    Result = 0
	NotReady   Result = 1
	Timeout    Result = 2
	Incomplete Result = 5

	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorLayerNotPresent      Result = -6
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorIncompatibleDriver   Result = -9
	ErrorUnknown              Result = -13
	ErrorValidationFailed     Result = -1000011001
	ErrorInvalidShader        Result = -1000012000
)

var resultNames = map[Result]string{
	Success:                   "SUCCESS",
	NotReady:                  "NOT_READY",
	Timeout:                   "TIMEOUT",
	Incomplete:                "INCOMPLETE",
	ErrorOutOfHostMemory:      "ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "ERROR_INITIALIZATION_FAILED",
	ErrorDeviceLost:           "ERROR_DEVICE_LOST",
	ErrorLayerNotPresent:      "ERROR_LAYER_NOT_PRESENT",
	ErrorExtensionNotPresent:  "ERROR_EXTENSION_NOT_PRESENT",
	ErrorFeatureNotPresent:    "ERROR_FEATURE_NOT_PRESENT",
	ErrorIncompatibleDriver:   "ERROR_INCOMPATIBLE_DRIVER",
	ErrorUnknown:              "ERROR_UNKNOWN",
	ErrorValidationFailed:     "ERROR_VALIDATION_FAILED",
	ErrorInvalidShader:        "ERROR_INVALID_SHADER",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int32(r))
}

// Error implements error so a failing Result can travel through Go error paths.
func (r Result) Error() string {
	return r.String()
}

// Succeeded reports whether r is a success code.
func (r Result) Succeeded() bool {
	return r >= 0
}
