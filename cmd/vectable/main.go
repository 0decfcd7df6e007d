// Package main provides the vectable CLI.
//
// Usage:
//
//	vectable [flags] <flow>
//
// Flows:
//
//	basic       - create a table and run a similarity search
//	hybrid      - build vector and full-text indexes and run a hybrid query
//	versioning  - append rows and check the earlier version out again
//
// Configuration:
//
//	VECTABLE_URI and VECTABLE_API_KEY are required. VECTABLE_REGION and
//	VECTABLE_CONFIG (a YAML file) are optional.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/vectable/cmd/vectable/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
