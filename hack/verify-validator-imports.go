//go:build ignore
// +build ignore

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

// verify-validator-imports validates that validators under pkg/layer/validators only reach the
// layer through the chain contract: api, chain, diagnostics and plugins, plus utilities.
// A validator importing dispatch or config would see Contexts and settings it must not touch.
// Tests and the validatortest harness build whole layers and are exempt.
package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

const (
	validatorsPath = "./pkg/layer/validators"
	repoModule     = "github.com/timi-liuliang/echo-sub000"
)

var (
	additionalAllowed []string
	includeTests      bool
)

// allowedBasePaths are the module packages a validator may import.
var allowedBasePaths = []string{
	"pkg/layer/api",
	"pkg/layer/chain",
	"pkg/layer/diagnostics",
	"pkg/layer/plugins",
	"pkg/layer/util",
	"pkg/layer/validators",
}

// exemptPaths build complete layers around validators.
var exemptPaths = []string{
	"pkg/layer/validators/internal/validatortest",
	"pkg/layer/validators/register_test.go",
}

func init() {
	pflag.StringSliceVar(&additionalAllowed, "allow", []string{}, "Additional allowed import paths (can be specified multiple times)")
	pflag.BoolVar(&includeTests, "include-tests", false, "Also check _test.go files")
}

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type violation struct {
	filePath   string
	importPath string
}

func (v violation) String() string {
	return fmt.Sprintf("%s: imports %s", v.filePath, v.importPath)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func run() error {
	allowed := append(append([]string{}, allowedBasePaths...), additionalAllowed...)

	fmt.Printf("Validating imports in %s\n", validatorsPath)
	fmt.Printf("Allowed paths: %v\n", allowed)
	fmt.Println()

	var violations []violation
	err := filepath.Walk(validatorsPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(".", path)
		if err != nil {
			relPath = path
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		if hasAnyPrefix(filepath.ToSlash(relPath), exemptPaths) {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") && !includeTests {
			return nil
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for _, imp := range node.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(importPath, repoModule+"/") {
				continue
			}
			relImportPath := strings.TrimPrefix(importPath, repoModule+"/")
			if !hasAnyPrefix(relImportPath, allowed) {
				violations = append(violations, violation{filePath: relPath, importPath: relImportPath})
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	if len(violations) > 0 {
		fmt.Printf("[ERROR] Found %d import violations:\n", len(violations))
		for _, v := range violations {
			fmt.Println("  " + v.String())
		}
		return fmt.Errorf("import validation failed: %d violations found", len(violations))
	}

	fmt.Println("[OK] No import violations found")
	return nil
}
