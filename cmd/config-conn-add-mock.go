package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
)

var configConnAddMockCfg = &actions.ConnectionConfig{}

var configConnAddMockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Add a mock connection",
	Long: `Add an in-memory mock connection. Queries against it return no rows and
statements succeed, which is useful to dry-run scenarios.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnAddMockCfg.Type = constants.ConnectionTypeMock
		configConnAddMockCfg.ConfigFile = config.Connections
		configConnAddMockCfg.Output = os.Stdout
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnAddMockCfg)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddMockCmd)
	addConnectionFlags(configConnAddMockCmd, configConnAddMockCfg, nil)
}
