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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	errutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/error"
)

func names(specs []ValidatorSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

func TestDefaults(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())

	want := []string{"threadsafety", "stateless", "objecttracker", "core"}
	if diff := cmp.Diff(want, names(s.EnabledValidators())); diff != "" {
		t.Errorf("Unexpected default chain (-want +got): %v", diff)
	}
	assert.True(t, s.HandleWrapping)
	assert.True(t, s.EnabledTypes().Has("core"))
	assert.False(t, s.EnabledTypes().Has("gpuav"))

	sev, err := s.Severities()
	require.NoError(t, err)
	assert.Equal(t, []diagnostics.Severity{diagnostics.SeverityPerformance, diagnostics.SeverityWarning, diagnostics.SeverityError}, sev)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantChain []string
		check     func(t *testing.T, s *Settings)
	}{
		{
			name: "custom chain with parameters",
			input: `
validators:
- type: stateless
- type: gpuav
  mustWin: true
  parameters:
    instrumentShaders: false
- type: core
  name: core-strict
- type: syncval
  enabled: false
handleWrapping: false
duplicateMessageLimit: 3
reportSeverities: [error]
`,
			wantChain: []string{"stateless", "gpuav", "core-strict"},
			check: func(t *testing.T, s *Settings) {
				assert.False(t, s.HandleWrapping)
				assert.Equal(t, 3, s.DuplicateMessageLimit)
				assert.True(t, s.Validators[1].MustWin)
				var params map[string]bool
				require.NoError(t, json.Unmarshal(s.Validators[1].Parameters, &params))
				assert.Equal(t, map[string]bool{"instrumentShaders": false}, params)
			},
		},
		{
			name: "user chain replaces the default chain",
			input: `
validators:
- type: core
- type: stateless
- type: threadsafety
- type: objecttracker
- type: bestpractices
- type: syncval
`,
			wantChain: []string{"core", "stateless", "threadsafety", "objecttracker", "bestpractices", "syncval"},
			check: func(t *testing.T, s *Settings) {
				require.Len(t, s.Validators, 6)
				for _, v := range s.Validators {
					assert.True(t, v.IsEnabled(), "validator %s", v.Type)
					assert.False(t, v.MustWin, "validator %s", v.Type)
					assert.Empty(t, v.Name, "validator %s", v.Type)
				}
			},
		},
		{
			name:      "explicit empty chain",
			input:     "validators: []\n",
			wantChain: []string{},
			check: func(t *testing.T, s *Settings) {
				assert.Empty(t, s.Validators)
				assert.Equal(t, Default().ReportSeverities, s.ReportSeverities)
			},
		},
		{
			name:      "empty document keeps defaults",
			input:     ``,
			wantChain: []string{"threadsafety", "stateless", "objecttracker", "core"},
		},
		{
			name:    "unknown field",
			input:   "handleWraping: true\n",
			wantErr: true,
		},
		{
			name:    "duplicate names",
			input:   "validators:\n- type: core\n- type: core\n",
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   "validators:\n- name: nameless\n",
			wantErr: true,
		},
		{
			name:    "unknown severity",
			input:   "reportSeverities: [fatal]\n",
			wantErr: true,
		},
		{
			name:    "negative limit",
			input:   "duplicateMessageLimit: -1\n",
			wantErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := Load([]byte(test.input))
			if test.wantErr {
				require.Error(t, err)
				assert.Equal(t, errutil.BadConfiguration, errutil.CanonicalCode(err))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(test.wantChain, names(s.EnabledValidators())); diff != "" {
				t.Errorf("Unexpected chain (-want +got): %v", diff)
			}
			if test.check != nil {
				test.check(t, s)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvEnables, "gpuav,custom")
	t.Setenv(EnvDisables, "core")
	t.Setenv(EnvHandleWrapping, "false")
	t.Setenv(EnvDuplicateMessageLimit, "25")

	base := Default()
	s := ApplyEnv(base, testr.New(t))

	want := []string{"threadsafety", "stateless", "objecttracker", "gpuav", "custom"}
	if diff := cmp.Diff(want, names(s.EnabledValidators())); diff != "" {
		t.Errorf("Unexpected chain (-want +got): %v", diff)
	}
	assert.False(t, s.HandleWrapping)
	assert.Equal(t, 25, s.DuplicateMessageLimit)

	// The input is left untouched.
	assert.True(t, base.HandleWrapping)
	assert.Equal(t, ptr.To(false), base.Validators[5].Enabled)
	assert.True(t, base.EnabledTypes().Has("core"))
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duplicateMessageLimit: 1\n"), 0o600))

	w, err := NewWatcher(path, testr.New(t))
	require.NoError(t, err)
	assert.Equal(t, 1, w.Current().DuplicateMessageLimit)
	first := w.Current()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("duplicateMessageLimit: 7\n"), 0o600)
		return w.Current().DuplicateMessageLimit == 7
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, first.DuplicateMessageLimit, "published snapshots never change")

	// A broken file keeps the last good snapshot.
	require.NoError(t, os.WriteFile(path, []byte("notAField: 1\n"), 0o600))
	select {
	case <-w.reloaded:
	case <-time.After(5 * time.Second):
	}
	assert.Equal(t, 7, w.Current().DuplicateMessageLimit)

	cancel()
	require.NoError(t, <-done)
}

func TestStatic(t *testing.T) {
	s := Default()
	assert.Same(t, s, NewStatic(s).Current())
}
