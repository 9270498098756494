// Command vstructd runs the virtual structure service: a hierarchical
// catalog of thing nodes, sources and sinks served over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "vstructd",
	Short:         "Virtual structure service",
	Long:          "vstructd serves a user-authored hierarchical catalog of data endpoints\nand resolves workflow wirings against it.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger. Debug logging switches on via
// VST_LOG_LEVEL=debug.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if os.Getenv("VST_LOG_LEVEL") == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
