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
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/api"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/dispatch"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/driver/memdriver"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/entrypoints"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/plugins"
	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/core"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/stateless"
)

type workloadEnv struct {
	workload *Workload
	driver   *memdriver.Driver
	recorder *diagnostics.Recorder
}

func newWorkloadEnv(t *testing.T, settings *config.Settings, driverOpts ...memdriver.Option) *workloadEnv {
	factories := plugins.FactoryRegistry{}
	validators.RegisterAll(factories)
	env := &workloadEnv{driver: memdriver.New(driverOpts...), recorder: diagnostics.NewRecorder()}
	registry := dispatch.NewRegistry(
		dispatch.WithFactories(factories),
		dispatch.WithSettings(config.NewStatic(settings)),
		dispatch.WithSinkFactory(func(*config.Settings, logr.Logger) diagnostics.Sink { return env.recorder }),
	)
	t.Cleanup(func() { _ = registry.Shutdown(context.Background()) })
	env.workload = &Workload{Layer: entrypoints.New(registry), Link: env.driver.Link()}
	return env
}

func TestWorkloadDefaultChain(t *testing.T) {
	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	env := newWorkloadEnv(t, config.Default())
	env.workload.Workers = 3
	env.workload.Iterations = 5

	stats, err := env.workload.Run(ctx)
	require.NoError(t, err)

	// instance, enumeration and device; one queue per worker; twelve calls per lifecycle; the
	// final device wait.
	assert.Equal(t, int64(3+3+12*3*5+1), stats.Calls)
	assert.Zero(t, stats.Rejected)
	assert.Empty(t, env.recorder.IDs())
	assert.Zero(t, env.driver.LiveObjects())
	assert.Empty(t, env.driver.UnknownHandles())
}

func TestWorkloadInjectsInvalidCalls(t *testing.T) {
	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	env := newWorkloadEnv(t, config.Default())
	env.workload.Workers = 2
	env.workload.Iterations = 4
	env.workload.InjectEvery = 2

	stats, err := env.workload.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(8), stats.Rejected)
	assert.Zero(t, stats.Accepted)
	assert.Equal(t, map[string]int{stateless.BufferSizeZeroID: 4, core.InvalidWGSLID: 4}, env.recorder.Summary())
	assert.Equal(t, 2*4, env.driver.Calls(api.FuncCreateBuffer), "vetoed creates never reach the driver")
	assert.Zero(t, env.driver.LiveObjects())
}

func TestWorkloadWithoutValidators(t *testing.T) {
	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	env := newWorkloadEnv(t, &config.Settings{HandleWrapping: true})
	env.workload.Workers = 1
	env.workload.Iterations = 2
	env.workload.InjectEvery = 1

	stats, err := env.workload.Run(ctx)
	require.NoError(t, err)

	// The driver refuses the empty buffer itself and takes the broken shader.
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Equal(t, int64(2), stats.Accepted)
	assert.Empty(t, env.recorder.IDs())
	assert.Zero(t, env.driver.LiveObjects())
}

func TestWorkloadFullChain(t *testing.T) {
	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	settings := config.Default()
	for i := range settings.Validators {
		settings.Validators[i].Enabled = ptr.To(true)
	}
	env := newWorkloadEnv(t, settings)
	env.workload.Workers = 2
	env.workload.Iterations = 3

	_, err := env.workload.Run(ctx)
	require.NoError(t, err)

	for _, msg := range env.recorder.Messages() {
		assert.Less(t, msg.Severity, diagnostics.SeverityError, "%s: %s", msg.ID, msg.Text)
	}
	assert.Zero(t, env.driver.LiveObjects())
}

func TestWorkloadStopsOnFailure(t *testing.T) {
	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	env := newWorkloadEnv(t, config.Default(), memdriver.WithFailure(api.FuncQueueSubmit, api.ErrorDeviceLost))
	env.workload.Workers = 1
	env.workload.Iterations = 10

	_, err := env.workload.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrorDeviceLost), "got %v", err)
	assert.Equal(t, 1, env.driver.Calls(api.FuncQueueSubmit), "the worker stops at its first failure")
}

func TestWorkloadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(logutil.NewTestLoggerIntoContext(context.Background()))
	env := newWorkloadEnv(t, config.Default())
	env.workload.Workers = 1
	env.workload.Iterations = 1
	cancel()

	_, err := env.workload.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.driver.LiveObjects())
}
