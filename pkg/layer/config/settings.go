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
	"encoding/json"
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"github.com/timi-liuliang/echo-sub000/pkg/layer/diagnostics"
	errutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/error"
)

// ValidatorSpec configures one member of the validator chain.
type ValidatorSpec struct {
	// Type is the capability tag the validator factory is registered under.
	Type string `json:"type"`
	// Name defaults to Type.
	Name string `json:"name,omitempty"`
	// Enabled defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
	// MustWin gives the validator's argument overrides precedence over validators without it.
	MustWin bool `json:"mustWin,omitempty"`
	// Parameters are passed verbatim to the factory.
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// IsEnabled reports whether the validator is part of the chain.
func (v ValidatorSpec) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// InstanceName returns the configured name, or the type when no name is set.
func (v ValidatorSpec) InstanceName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Type
}

// Settings is the layer configuration. A Context takes the Settings current at its creation and
// never observes later changes; Settings values are not mutated once published.
type Settings struct {
	// Validators lists the chain in order. Disabled entries are never constructed.
	Validators            []ValidatorSpec `json:"validators,omitempty"`
	HandleWrapping        bool            `json:"handleWrapping"`
	AbortOnInternalError  bool            `json:"abortOnInternalError"`
	DuplicateMessageLimit int             `json:"duplicateMessageLimit"`
	ReportSeverities      []string        `json:"reportSeverities,omitempty"`
}

// Default returns the built-in settings: the canonical chain order with the parameter,
// lifetime, threading and core checks enabled.
func Default() *Settings {
	return &Settings{
		Validators: []ValidatorSpec{
			{Type: "threadsafety"},
			{Type: "stateless"},
			{Type: "objecttracker"},
			{Type: "core"},
			{Type: "bestpractices", Enabled: ptr.To(false)},
			{Type: "gpuav", Enabled: ptr.To(false), MustWin: true},
			{Type: "debugprintf", Enabled: ptr.To(false)},
			{Type: "syncval", Enabled: ptr.To(false)},
		},
		HandleWrapping:        true,
		DuplicateMessageLimit: 10,
		ReportSeverities:      []string{"performance", "warning", "error"},
	}
}

// Load parses YAML or JSON settings over the defaults. Unknown fields are rejected. A list in
// the document replaces the default list as a whole.
func Load(data []byte) (*Settings, error) {
	defaults := Default()
	s := Default()
	// Decoding into a populated slice reuses its elements and keeps fields the document omits.
	s.Validators = nil
	s.ReportSeverities = nil
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, errutil.Errorf(errutil.BadConfiguration, "the settings are invalid - %v", err)
	}
	if s.Validators == nil {
		s.Validators = defaults.Validators
	}
	if s.ReportSeverities == nil {
		s.ReportSeverities = defaults.ReportSeverities
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads and parses a settings file.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s - %w", path, err)
	}
	return Load(data)
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	names := sets.New[string]()
	for _, v := range s.Validators {
		if v.Type == "" {
			return errutil.Errorf(errutil.BadConfiguration, "validator definition for '%s' is missing a type", v.Name)
		}
		name := v.InstanceName()
		if names.Has(name) {
			return errutil.Errorf(errutil.BadConfiguration, "validator name '%s' used more than once", name)
		}
		names.Insert(name)
	}
	if s.DuplicateMessageLimit < 0 {
		return errutil.Errorf(errutil.BadConfiguration, "duplicateMessageLimit must not be negative, got %d", s.DuplicateMessageLimit)
	}
	if _, err := s.Severities(); err != nil {
		return errutil.Errorf(errutil.BadConfiguration, "%v", err)
	}
	return nil
}

// EnabledValidators returns the enabled chain members in order, with names defaulted.
func (s *Settings) EnabledValidators() []ValidatorSpec {
	var out []ValidatorSpec
	for _, v := range s.Validators {
		if v.IsEnabled() {
			v.Name = v.InstanceName()
			out = append(out, v)
		}
	}
	return out
}

// EnabledTypes returns the types of the enabled validators.
func (s *Settings) EnabledTypes() sets.Set[string] {
	out := sets.New[string]()
	for _, v := range s.EnabledValidators() {
		out.Insert(v.Type)
	}
	return out
}

// Severities parses ReportSeverities.
func (s *Settings) Severities() ([]diagnostics.Severity, error) {
	out := make([]diagnostics.Severity, 0, len(s.ReportSeverities))
	for _, name := range s.ReportSeverities {
		sev, err := diagnostics.ParseSeverity(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sev)
	}
	return out, nil
}

// DeepCopy returns a copy sharing no mutable state with s.
func (s *Settings) DeepCopy() *Settings {
	out := *s
	out.Validators = make([]ValidatorSpec, len(s.Validators))
	for i, v := range s.Validators {
		if v.Enabled != nil {
			v.Enabled = ptr.To(*v.Enabled)
		}
		if v.Parameters != nil {
			v.Parameters = append(json.RawMessage(nil), v.Parameters...)
		}
		out.Validators[i] = v
	}
	out.ReportSeverities = append([]string(nil), s.ReportSeverities...)
	return &out
}
