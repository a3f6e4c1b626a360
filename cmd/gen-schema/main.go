// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Command gen-schema writes the JSON Schemas of the API request bodies.
package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/pillarhq/pillar/internal/api"
)

func main() {
	if err := run(os.Stdout, "schemas"); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	payloads := api.Payloads()
	for _, name := range slices.Sorted(maps.Keys(payloads)) {
		schema, err := api.GenerateSchema(payloads[name])
		if err != nil {
			return fmt.Errorf("generate %s: %w", name, err)
		}
		outPath := filepath.Join(dir, name+".schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Fprintf(out, "Generated %s\n", outPath)
	}
	return nil
}
