package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redbadger/deployhook/constants"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of deployhook",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deployhook version %s\n", constants.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
