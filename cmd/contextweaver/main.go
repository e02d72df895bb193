// Package main provides the entry point for the contextweaver CLI.
package main

import (
	"os"

	"github.com/contextweaver/contextweaver/cmd/contextweaver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
