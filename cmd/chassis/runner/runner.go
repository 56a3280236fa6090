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
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	chassistls "github.com/timi-liuliang/echo-sub000/internal/tls"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/dispatch"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/driver/memdriver"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/entrypoints"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/metrics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/util/profiling"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators"
	"github.com/timi-liuliang/echo-sub000/version"
)

const shutdownTimeout = 10 * time.Second

var (
	// Logging
	setupLog = ctrl.Log.WithName("setup")
)

func NewRunner() *Runner {
	return &Runner{
		exeName: "chassis",
	}
}

// Runner puts the layer between a workload and the in-memory driver and serves the layer's
// metrics while the workload runs.
type Runner struct {
	exeName    string
	factories  plugins.FactoryRegistry
	driverOpts []memdriver.Option

	// recorder keeps every diagnostic message of the run for the final summary.
	recorder *diagnostics.Recorder
	driver   *memdriver.Driver
}

// WithExecutableName sets the name of the executable containing the runner.
// The name is used in the version log upon startup and is otherwise opaque.
func (r *Runner) WithExecutableName(exeName string) *Runner {
	r.exeName = exeName
	return r
}

// WithFactories replaces the in-tree validators with the given factories.
func (r *Runner) WithFactories(factories plugins.FactoryRegistry) *Runner {
	r.factories = factories
	return r
}

// WithDriverOptions configures the in-memory driver below the layer.
func (r *Runner) WithDriverOptions(opts ...memdriver.Option) *Runner {
	r.driverOpts = append(r.driverOpts, opts...)
	return r
}

// Run parses the command line and runs until the workload finished, or until ctx is done when
// --serve is set.
func (r *Runner) Run(ctx context.Context) error {
	logutil.InitSetupLogging()

	opts := NewOptions()
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()
	if err := opts.Complete(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Failed to validate flags")
		return err
	}
	logutil.InitLogging(&opts.ZapOptions)
	// Libraries logging through klog end up in the same zap logger.
	klog.SetLogger(ctrl.Log.WithName("klog"))

	return r.RunWithOptions(ctx, opts)
}

// RunWithOptions runs with already completed and validated options.
func (r *Runner) RunWithOptions(ctx context.Context, opts *Options) error {
	setupLog.Info(r.exeName+" build", "commit-sha", version.CommitSHA, "build-ref", version.BuildRef,
		"settings-version", version.ChassisVersion)

	if opts.fs != nil {
		flags := make(map[string]any)
		opts.fs.VisitAll(func(f *pflag.Flag) {
			flags[f.Name] = f.Value
		})
		setupLog.Info("Flags processed", "flags", flags)
	}

	source, watcher, err := loadSettings(opts.ConfigFile)
	if err != nil {
		setupLog.Error(err, "Failed to load settings", "path", opts.ConfigFile)
		return err
	}
	setupLog.Info("Settings loaded", "validators", sets.List(source.Current().EnabledTypes()),
		"handleWrapping", source.Current().HandleWrapping)

	metrics.Register()
	metrics.RecordBuildInfo(version.CommitSHA, version.BuildRef)
	metricsServerOptions := metricsserver.Options{
		BindAddress: fmt.Sprintf(":%d", opts.MetricsPort),
	}
	if opts.SecureServing {
		cert, err := chassistls.CreateSelfSignedTLSCertificate(setupLog)
		if err != nil {
			setupLog.Error(err, "Failed to create self signed certificate")
			return err
		}
		metricsServerOptions.SecureServing = true
		metricsServerOptions.TLSOpts = []func(*tls.Config){
			func(c *tls.Config) {
				c.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return &cert, nil }
			},
		}
	}
	metricsServer, err := metricsserver.NewServer(metricsServerOptions, nil, nil)
	if err != nil {
		setupLog.Error(err, "Failed to create metrics server")
		return err
	}
	if opts.EnablePprof {
		setupLog.Info("Setting pprof handlers")
		if err := profiling.SetupPprofHandlers(metricsServer); err != nil {
			setupLog.Error(err, "Failed to setup pprof handlers")
			return err
		}
	}

	if r.factories == nil {
		validators.RegisterAllPlugins()
		r.factories = plugins.Registry
	}
	r.recorder = diagnostics.NewRecorder()
	registry := dispatch.NewRegistry(
		dispatch.WithFactories(r.factories),
		dispatch.WithSettings(source),
		dispatch.WithSinkFactory(func(s *config.Settings, logger logr.Logger) diagnostics.Sink {
			return diagnostics.Tee{dispatch.NewLogSink(s, logger, clock.RealClock{}), r.recorder}
		}),
	)
	r.driver = memdriver.New(r.driverOpts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return metricsServer.Start(gctx)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Start(gctx)
		})
	}
	g.Go(func() error {
		workload := &Workload{
			Layer:       entrypoints.New(registry),
			Link:        r.driver.Link(),
			Workers:     opts.Workers,
			Iterations:  opts.Iterations,
			InjectEvery: opts.InjectEvery,
		}
		stats, err := workload.Run(log.IntoContext(gctx, ctrl.Log))
		setupLog.Info("Workload finished", "calls", stats.Calls, "rejected", stats.Rejected,
			"accepted", stats.Accepted, "messages", r.recorder.Summary(), "liveObjects", r.driver.LiveObjects())
		if err != nil && !errors.Is(err, context.Canceled) {
			setupLog.Error(err, "Workload failed")
			return err
		}
		if !opts.Serve {
			cancel()
		}
		return nil
	})

	err = g.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if serr := registry.Shutdown(shutdownCtx); serr != nil {
		setupLog.Error(serr, "Failed to shut down the dispatch registry")
		if err == nil {
			err = serr
		}
	}
	return err
}

// Recorder returns the diagnostic messages of the last run.
func (r *Runner) Recorder() *diagnostics.Recorder {
	return r.recorder
}

// Driver returns the driver of the last run.
func (r *Runner) Driver() *memdriver.Driver {
	return r.driver
}

// loadSettings returns a watcher over path, or the built-in settings with environment overrides
// when path is empty.
func loadSettings(path string) (config.Source, *config.Watcher, error) {
	logger := ctrl.Log.WithName("settings")
	if path == "" {
		return config.NewStatic(config.ApplyEnv(config.Default(), logger)), nil, nil
	}
	w, err := config.NewWatcher(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return w, w, nil
}
