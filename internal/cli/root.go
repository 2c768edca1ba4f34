// Package cli wires the worker's command-line surface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kienzlefax-worker",
	Short: "Supervisor daemon for HylaFAX transmissions",
	Long:  "Drives fax transmissions through sendfax/faxrm/faxstat by consuming job directories from a filesystem queue and archiving merged transmission reports.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
