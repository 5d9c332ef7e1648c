package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// the version does not need a driver
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout(cmd), "cltoolkit version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
