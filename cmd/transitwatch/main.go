// Package main is the entry point for the transitwatch CLI.
package main

import (
	"os"

	"github.com/transitwatch/transitwatch/cmd/transitwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
