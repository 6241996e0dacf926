// Package main is the entry point for the flowstate CLI.
package main

import (
	"os"

	"github.com/flowstate-dev/flowstate/cmd/flowstate/app"
	"github.com/flowstate-dev/flowstate/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
