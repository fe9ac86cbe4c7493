package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

var configConnAddSqlServerCfg = &actions.ConnectionConfig{}
var sqlServerConn = &shared.DsnConnectionDetails{}

var configConnAddSqlServerCmd = &cobra.Command{
	Use:   "sqlserver",
	Short: "Add a SQL Server connection",
	Long: fmt.Sprintf(`Add SQL Server database connection to the config store %q
by providing a DSN of the form: 

sqlserver://<user>:<pass>@<host>/<dbname>[?<opt1>=<value1>&<opt2>=<value1>&...]
`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnAddSqlServerCfg.Type = constants.ConnectionTypeSqlServer
		configConnAddSqlServerCfg.ConfigFile = config.Connections
		configConnAddSqlServerCfg.ConnDetails = sqlServerConn
		configConnAddSqlServerCfg.Output = os.Stdout
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnAddSqlServerCfg)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddSqlServerCmd)
	addConnectionFlags(configConnAddSqlServerCmd, configConnAddSqlServerCfg, &sqlServerConn.Dsn)
}
