package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service and launch scenarios described in JSON requests",
	Long: `Start a web service that launches scenarios by name. Scenarios are resolved from the
scenario directory and run in the background. Use the /executions endpoints to
follow or stop them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.NewSettings()
		d, err := settings.LoadDefaults()
		if err != nil {
			return err
		}
		d.ScenarioDir = serveScenarioDir
		d.StatsDumpFrequency = serveConfig.StatsDumpFrequencySeconds
		serveConfig.LogLevel = logLevel
		serveConfig.Settings = settings
		serveConfig.Connections = config.Connections
		serveConfig.Defaults = d
		serveConfig.StackDumpOnPanic = stackDumpOnPanic
		cmd.SilenceUsage = true
		return actions.RunWebServer(&serveConfig)
	},
}

var serveScenarioDir string

var serveConfig = actions.WebServerConfig{
	Scheme: "http",
	Addr:   net.IP{0, 0, 0, 0},
	Port:   8080,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveScenarioDir, "scenario-dir", ".", false, "")
	switches.addFlag(serveCmd, &serveConfig.StatsDumpFrequencySeconds, "stats-dump-frequency", "5", false, "")
}
