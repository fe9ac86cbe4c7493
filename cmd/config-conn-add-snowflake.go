package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/rdbms"
)

var configConnSnowflakeCfg = &actions.ConnectionConfig{}
var snowflakeConn = &rdbms.SnowflakeConnectionDetails{}

var configConnAddSnowflakeCmd = &cobra.Command{
	Use:   "snowflake",
	Short: "Add a Snowflake connection",
	Long: fmt.Sprintf(`Add a Snowflake connection to the config store %q
by providing a DSN of the form: 

snowflake://<user>:<password>@<account>/<database-name>?schema=<schema>&warehouse=<warehouse>&role=<role>`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnSnowflakeCfg.Type = constants.ConnectionTypeSnowflake
		configConnSnowflakeCfg.ConfigFile = config.Connections
		configConnSnowflakeCfg.ConnDetails = snowflakeConn
		configConnSnowflakeCfg.Output = os.Stdout
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnSnowflakeCfg)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddSnowflakeCmd)
	addConnectionFlags(configConnAddSnowflakeCmd, configConnSnowflakeCfg, &snowflakeConn.Dsn)
}
