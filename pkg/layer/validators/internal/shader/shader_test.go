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

package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validWGSL is a minimal vertex shader.
const validWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

func TestCompile(t *testing.T) {
	c := NewCompiler(4)

	words, err := c.Compile(validWGSL)
	require.NoError(t, err)
	require.NotEmpty(t, words)
	assert.Equal(t, uint32(0x07230203), words[0], "SPIR-V magic number")

	again, err := c.Compile(validWGSL)
	require.NoError(t, err)
	assert.Same(t, &words[0], &again[0], "the second compile is served from the cache")

	_, err = c.Compile("fn main( {")
	assert.Error(t, err)
	_, err = c.Compile("fn main( {")
	assert.Error(t, err, "failures are cached too")
}

func TestWords(t *testing.T) {
	words, err := Words([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, words)

	_, err = Words([]byte{1, 2, 3})
	assert.Error(t, err)
}
