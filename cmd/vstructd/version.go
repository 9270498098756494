package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the adapter version reported by /info and this command.
// Overridable at build time with -ldflags "-X main.Version=…".
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vstructd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vstructd", Version)
	},
}
