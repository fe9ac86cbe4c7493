package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/constants"
)

func versionText() string {
	return fmt.Sprintf("%v %v (built %v, %v %v/%v)\n",
		constants.AppName, version, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build details",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionText())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionText())
}
