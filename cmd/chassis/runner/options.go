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
	"errors"
	"flag"
	"fmt"

	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

const (
	DefaultWorkers      = 4
	DefaultIterations   = 100
	DefaultMetricsPort  = 9090
	ZapLogLevelFlagName = "zap-log-level"
)

// Options contains the command-line configuration of the chassis binary.
type Options struct {
	//
	// Layer configuration.
	//
	ConfigFile string // Settings file, watched for changes. Defaults and env overrides apply when empty.
	//
	// Workload.
	//
	Workers     int  // Goroutines driving the layer, one queue each.
	Iterations  int  // Object lifecycles per worker.
	InjectEvery int  // Every n-th iteration also issues invalid calls. 0 disables.
	Serve       bool // Keep serving metrics after the workload until a signal arrives.
	//
	// Diagnostics.
	//
	LogVerbosity  int         // Number for the log level verbosity.
	ZapOptions    zap.Options // Zap logging options.
	MetricsPort   int         // The metrics port.
	EnablePprof   bool        // Enables pprof handlers on the metrics server.
	SecureServing bool        // Serves metrics over TLS with a self-signed certificate.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		Workers:      DefaultWorkers,
		Iterations:   DefaultIterations,
		LogVerbosity: logutil.DEFAULT,
		ZapOptions:   zap.Options{Development: true},
		MetricsPort:  DefaultMetricsPort,
		EnablePprof:  true,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.StringVar(&opts.ConfigFile, "config-file", opts.ConfigFile,
		"The path to the layer settings file. The file is reloaded when it changes.")
	fs.IntVar(&opts.Workers, "workers", opts.Workers,
		"Number of goroutines driving the layer concurrently.")
	fs.IntVar(&opts.Iterations, "iterations", opts.Iterations,
		"Number of object lifecycles each worker runs.")
	fs.IntVar(&opts.InjectEvery, "inject-every", opts.InjectEvery,
		"Issue invalid calls every n-th iteration so validators have something to report. 0 disables.")
	fs.BoolVar(&opts.Serve, "serve", opts.Serve,
		"Keep serving metrics after the workload finished, until the process is signaled.")
	fs.IntVar(&opts.MetricsPort, "metrics-port", opts.MetricsPort,
		"The metrics port.")
	fs.BoolVar(&opts.SecureServing, "secure-serving", opts.SecureServing,
		"Serves the metrics endpoint over TLS with a self-signed certificate.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers. Defaults to true. Set to false to disable pprof handlers.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")

	// Bind zap flags (zap expects a standard Go FlagSet; pflag.FlagSet is not compatible).
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	if opts.fs == nil {
		return errors.New("AddFlags must be called before Complete")
	}
	// Derive the zap log level from the -v flag when --zap-log-level is not set explicitly.
	zapLogLevelFlag := opts.fs.Lookup(ZapLogLevelFlagName)
	if zapLogLevelFlag != nil && !zapLogLevelFlag.Changed {
		lvl := -1 * (opts.LogVerbosity)
		opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
		zapLogLevelFlag.Changed = true
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	if opts.MetricsPort < 1 || opts.MetricsPort > 65535 {
		return fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", opts.MetricsPort, "metrics-port")
	}
	if opts.Workers < 1 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 1", opts.Workers, "workers")
	}
	if opts.Iterations < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.Iterations, "iterations")
	}
	if opts.InjectEvery < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.InjectEvery, "inject-every")
	}
	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	return nil
}
