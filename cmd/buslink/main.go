// Package main is the entry point for the buslink CLI.
package main

import (
	"os"

	"github.com/perchlabs/buslink/internal/observability"
)

func main() {
	observability.InitLogger("buslink")
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
