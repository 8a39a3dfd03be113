package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the CLI's own version string; this module owns no release
// process of its own, so it is a constant rather than something derived
// from build metadata.
const Version = "0.1.0"

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of quill",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(Version)
			},
		})
}
