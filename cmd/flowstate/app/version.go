package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("flowstate %s\n", version)
			cmd.Printf("  commit:     %s\n", commit)
			cmd.Printf("  built:      %s\n", buildDate)
			cmd.Printf("  go version: %s\n", runtime.Version())
			cmd.Printf("  platform:   %s\n", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
		},
	}
}
