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

package error

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  Error
		want string
	}{
		{
			name: "initialization failure",
			err:  Error{Code: InitializationFailed, Msg: "no next link"},
			want: "validation layer: InitializationFailed - no next link",
		},
		{
			name: "bad configuration",
			err:  Errorf(BadConfiguration, "validator %q is not registered", "foo"),
			want: `validation layer: BadConfiguration - validator "foo" is not registered`,
		},
		{
			name: "empty message",
			err:  Error{Code: Internal},
			want: "validation layer: Internal - ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "layer error",
			err:  Error{Code: ContextNotFound},
			want: ContextNotFound,
		},
		{
			name: "wrapped layer error",
			err:  fmt.Errorf("destroying device: %w", Error{Code: ContextBusy}),
			want: ContextBusy,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: Unknown,
		},
		{
			name: "nil error",
			err:  nil,
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalCode(tt.err); got != tt.want {
				t.Errorf("CanonicalCode() = %q, want %q", got, tt.want)
			}
		})
	}
}
