package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2020-01-02T03:04+0500"
	stackDumpOnPanic bool
	logLevel         string
)

var rootCmd = &cobra.Command{
	Use: constants.AppName,
	Long: `etl runs ETL scenarios written in YAML or JSON.

A scenario reads rows from source connections, optionally generates code per
row or per batch and loads the results into destination connections inside
a single transaction per connection. Use the run command to execute a scenario
once or the serve command to launch scenarios via a RESTful API.`,
}

func init() {
	// General setup.
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
	sw := switches.getCliFlag("log-level", "info", config.Main.Get)
	rootCmd.PersistentFlags().StringVarP(&logLevel, sw.name, sw.shortHand, sw.val, sw.desc)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Execute() prints the error.
		os.Exit(1)
	}
}
