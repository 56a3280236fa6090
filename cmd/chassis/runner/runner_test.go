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
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/config"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/core"
	"github.com/timi-liuliang/echo-sub000/pkg/layer/validators/stateless"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func gathered(t *testing.T, name string) bool {
	t.Helper()
	families, err := crmetrics.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric()) > 0
		}
	}
	return false
}

func TestRunWithOptions(t *testing.T) {
	opts := NewOptions()
	opts.Workers = 2
	opts.Iterations = 3
	opts.InjectEvery = 3
	opts.EnablePprof = false
	opts.MetricsPort = freePort(t)
	require.NoError(t, opts.Validate())

	r := NewRunner()
	require.NoError(t, r.RunWithOptions(context.Background(), opts))

	assert.Equal(t, map[string]int{stateless.BufferSizeZeroID: 2, core.InvalidWGSLID: 2}, r.Recorder().Summary())
	assert.Zero(t, r.Driver().LiveObjects())
	assert.True(t, gathered(t, "chassis_dispatch_total"))
	assert.True(t, gathered(t, "chassis_info"))
}

// destroyedInstances sums the dispatch counter of gpuDestroyInstance.
func destroyedInstances(families []*dto.MetricFamily) float64 {
	total := 0.0
	for _, f := range families {
		if f.GetName() != "chassis_dispatch_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "function" && l.GetValue() == "gpuDestroyInstance" {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func scrape(url string) ([]*dto.MetricFamily, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parser expfmt.TextParser
	byName, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.MetricFamily, 0, len(byName))
	for _, f := range byName {
		out = append(out, f)
	}
	return out, nil
}

func TestMetricsEndpoint(t *testing.T) {
	opts := NewOptions()
	opts.Serve = true
	opts.Workers = 1
	opts.Iterations = 2
	opts.MetricsPort = freePort(t)

	before, err := crmetrics.Registry.Gather()
	require.NoError(t, err)
	baseline := destroyedInstances(before)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner().RunWithOptions(ctx, opts) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", opts.MetricsPort)
	require.Eventually(t, func() bool {
		families, err := scrape(base + "/metrics")
		return err == nil && destroyedInstances(families) > baseline
	}, 10*time.Second, 50*time.Millisecond, "the workload's teardown shows up on the metrics endpoint")

	resp, err := http.Get(base + "/debug/pprof/goroutine")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	opts := NewOptions()
	opts.Serve = true
	opts.EnablePprof = false
	opts.MetricsPort = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewRunner().RunWithOptions(ctx, opts))
}

func TestLoadSettings(t *testing.T) {
	source, watcher, err := loadSettings("")
	require.NoError(t, err)
	assert.Nil(t, watcher)
	assert.Equal(t, config.Default().EnabledTypes(), source.Current().EnabledTypes())

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
validators:
- type: threadsafety
- type: core
duplicateMessageLimit: 3
`), 0o600))
	source, watcher, err = loadSettings(path)
	require.NoError(t, err)
	require.NotNil(t, watcher)
	assert.Equal(t, sets.New("threadsafety", "core"), source.Current().EnabledTypes())
	assert.Equal(t, 3, source.Current().DuplicateMessageLimit)

	require.NoError(t, os.WriteFile(path, []byte("validators: [{name: nameless}]"), 0o600))
	_, _, err = loadSettings(path)
	assert.Error(t, err)
}
