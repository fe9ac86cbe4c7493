package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage connections and default flag values",
	Long: fmt.Sprintf(`Manage the encrypted files used by other commands:

  %v holds the connections scenarios refer to by name
  %v holds values applied to flags that are not supplied`,
		config.Connections.FullPath, config.Main.FullPath),
}

var configConnCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn", "connection"},
	Short:   "Manage named database connections",
}

var connRemoveCfg = actions.ConnectionConfig{}

var configConnListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all connections with passwords redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunConnectionList(config.Connections, os.Stdout)
	},
}

var configConnRemoveCmd = &cobra.Command{
	Use:          "remove",
	Aliases:      []string{"rm", "delete"},
	Short:        "Remove a named connection",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		connRemoveCfg.ConfigFile = config.Connections
		connRemoveCfg.Output = os.Stdout
		return actions.RunConnectionRemove(&connRemoveCfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configConnCmd)
	configConnCmd.AddCommand(configConnAddCmd, configConnListCmd, configConnRemoveCmd)
	switches.addFlag(configConnRemoveCmd, &connRemoveCfg.LogicalName, "connection-name", "", true, "")
}
