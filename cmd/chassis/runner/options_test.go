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

package runner

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Workers", opts.Workers, DefaultWorkers},
		{"Iterations", opts.Iterations, DefaultIterations},
		{"InjectEvery", opts.InjectEvery, 0},
		{"Serve", opts.Serve, false},
		{"MetricsPort", opts.MetricsPort, 9090},
		{"ConfigFile", opts.ConfigFile, ""},
		{"EnablePprof", opts.EnablePprof, true},
		{"SecureServing", opts.SecureServing, false},
		{"LogVerbosity", opts.LogVerbosity, 2}, // logging.DEFAULT
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("NewOptions().%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestAddFlagsOverridesDefaults(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	args := []string{
		"--config-file", "/etc/chassis/settings.yaml",
		"--workers", "8",
		"--iterations", "10",
		"--inject-every", "3",
		"--serve",
		"--metrics-port", "5002",
		"--enable-pprof=false",
		"--secure-serving",
		"-v", "4",
	}
	require.NoError(t, fs.Parse(args))

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ConfigFile", opts.ConfigFile, "/etc/chassis/settings.yaml"},
		{"Workers", opts.Workers, 8},
		{"Iterations", opts.Iterations, 10},
		{"InjectEvery", opts.InjectEvery, 3},
		{"Serve", opts.Serve, true},
		{"MetricsPort", opts.MetricsPort, 5002},
		{"EnablePprof", opts.EnablePprof, false},
		{"SecureServing", opts.SecureServing, true},
		{"LogVerbosity", opts.LogVerbosity, 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("After parse, opts.%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Options)
		expectError bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Options) {},
		},
		{
			name:        "metrics-port zero",
			mutate:      func(o *Options) { o.MetricsPort = 0 },
			expectError: true,
		},
		{
			name:        "metrics-port above max",
			mutate:      func(o *Options) { o.MetricsPort = 65536 },
			expectError: true,
		},
		{
			name:        "no workers",
			mutate:      func(o *Options) { o.Workers = 0 },
			expectError: true,
		},
		{
			name:   "zero iterations only serves",
			mutate: func(o *Options) { o.Iterations = 0 },
		},
		{
			name:        "negative iterations",
			mutate:      func(o *Options) { o.Iterations = -1 },
			expectError: true,
		},
		{
			name:        "negative inject-every",
			mutate:      func(o *Options) { o.InjectEvery = -2 },
			expectError: true,
		},
		{
			name:        "negative log verbosity",
			mutate:      func(o *Options) { o.LogVerbosity = -1 },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			fs := pflag.NewFlagSet(tt.name, pflag.ContinueOnError)
			opts.AddFlags(fs)

			tt.mutate(opts)

			err := opts.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompleteDerivesZapLogLevel(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"-v", "3"}))
	require.NoError(t, opts.Complete())

	lvl, ok := opts.ZapOptions.Level.(uberzap.AtomicLevel)
	require.True(t, ok, "level is %T", opts.ZapOptions.Level)
	assert.Equal(t, zapcore.Level(-3), lvl.Level())
}

func TestCompleteKeepsExplicitZapLogLevel(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"-v", "5", "--zap-log-level", "error"}))
	require.NoError(t, opts.Complete())

	lvl, ok := opts.ZapOptions.Level.(uberzap.AtomicLevel)
	require.True(t, ok, "level is %T", opts.ZapOptions.Level)
	assert.Equal(t, zapcore.ErrorLevel, lvl.Level())
}

func TestCompleteRequiresAddFlags(t *testing.T) {
	assert.Error(t, NewOptions().Complete())
}
