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

package plugins

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fake struct {
	tn     TypedName
	params json.RawMessage
}

func (f *fake) TypedName() TypedName { return f.tn }

type other struct{ fake }

type pluginSet map[string]Plugin

func (s pluginSet) Plugin(name string) Plugin { return s[name] }

func (s pluginSet) GetAllPlugins() []Plugin {
	out := make([]Plugin, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	return out
}

func fakeFactory(name string, parameters json.RawMessage, _ Handle) (Plugin, error) {
	return &fake{tn: TypedName{Type: "fake", Name: name}, params: parameters}, nil
}

func TestFactoryRegistryNew(t *testing.T) {
	r := FactoryRegistry{}
	r.Register("fake", fakeFactory)
	r.Register("broken", func(string, json.RawMessage, Handle) (Plugin, error) {
		return nil, errors.New("bad parameters")
	})
	r.Register("empty", func(string, json.RawMessage, Handle) (Plugin, error) { return nil, nil })

	p, err := r.New("fake", "first", json.RawMessage(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, TypedName{Type: "fake", Name: "first"}, p.TypedName())
	assert.JSONEq(t, `{"a":1}`, string(p.(*fake).params))

	_, err = r.New("missing", "x", nil, nil)
	assert.ErrorContains(t, err, "not registered")
	_, err = r.New("broken", "x", nil, nil)
	assert.ErrorContains(t, err, "bad parameters")
	_, err = r.New("empty", "x", nil, nil)
	assert.ErrorContains(t, err, "returned no plugin")

	assert.Equal(t, []string{"broken", "empty", "fake"}, r.Types())
}

func TestRegisterReplaces(t *testing.T) {
	r := FactoryRegistry{}
	r.Register("fake", func(string, json.RawMessage, Handle) (Plugin, error) { return nil, errors.New("old") })
	r.Register("fake", fakeFactory)
	_, err := r.New("fake", "x", nil, nil)
	assert.NoError(t, err)
}

func TestPluginByType(t *testing.T) {
	set := pluginSet{
		"a": &fake{tn: TypedName{Type: "fake", Name: "a"}},
		"b": &other{fake{tn: TypedName{Type: "other", Name: "b"}}},
	}

	a, err := PluginByType[*fake](set, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", a.TypedName().Name)

	b, err := PluginByType[*other](set, "b")
	require.NoError(t, err)
	assert.Equal(t, "other", b.TypedName().Type)

	_, err = PluginByType[*other](set, "a")
	assert.ErrorContains(t, err, "is not an instance of")
	_, err = PluginByType[*fake](set, "c")
	assert.ErrorContains(t, err, "no plugin with the name")
	_, err = PluginByType[*fake](nil, "a")
	assert.Error(t, err)
}

func TestTypedNameString(t *testing.T) {
	assert.Equal(t, "gpuav-strict/gpuav", TypedName{Type: "gpuav", Name: "gpuav-strict"}.String())
}
