// Package main provides the entry point for the semtools CLI.
package main

import (
	"os"

	"github.com/run-llama/semtools/cmd/semtools/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
