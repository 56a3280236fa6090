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

// Package shader compiles WGSL shader modules for the validators that inspect or instrument them.
package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/naga"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// Compiler compiles WGSL to SPIR-V words and remembers recent results, so several validators
// looking at the same module compile it once.
type Compiler struct {
	cache *lru.Cache[uint64, *compiled]
}

type compiled struct {
	source string
	words  []uint32
	err    error
}

// NewCompiler returns a Compiler caching up to size results.
func NewCompiler(size int) *Compiler {
	cache, err := lru.New[uint64, *compiled](size)
	if err != nil {
		// size <= 0
		cache, _ = lru.New[uint64, *compiled](defaultCacheSize)
	}
	return &Compiler{cache: cache}
}

// Default is shared by the in-tree validators.
var Default = NewCompiler(defaultCacheSize)

// Compile returns the SPIR-V words of wgsl. The returned slice is shared and must not be modified.
func (c *Compiler) Compile(wgsl string) ([]uint32, error) {
	key := xxhash.Sum64String(wgsl)
	if hit, ok := c.cache.Get(key); ok && hit.source == wgsl {
		return hit.words, hit.err
	}
	result := &compiled{source: wgsl}
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		result.err = fmt.Errorf("failed to compile shader: %w", err)
	} else {
		result.words, result.err = Words(spirv)
	}
	c.cache.Add(key, result)
	return result.words, result.err
}

// Words converts SPIR-V bytes to little-endian 32-bit words.
func Words(spirv []byte) ([]uint32, error) {
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

// Compile compiles wgsl with the Default compiler.
func Compile(wgsl string) ([]uint32, error) {
	return Default.Compile(wgsl)
}
