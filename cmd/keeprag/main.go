// Package main provides the entry point for the keeprag CLI.
package main

import (
	"os"

	"github.com/keepstack/keeprag/cmd/keeprag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
