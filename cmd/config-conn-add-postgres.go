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

var configConnAddPostgresCfg = &actions.ConnectionConfig{}
var postgresConn = &shared.DsnConnectionDetails{}

var configConnAddPostgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Add a PostgreSQL connection",
	Long: fmt.Sprintf(`Add PostgreSQL database connection to the config store %q
by providing a DSN of the form: 

postgres://<user>:<pass>@<host>[:<port>]/<dbname>[?sslmode=<mode>&...]
`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnAddPostgresCfg.Type = constants.ConnectionTypePostgres
		configConnAddPostgresCfg.ConfigFile = config.Connections
		configConnAddPostgresCfg.ConnDetails = postgresConn
		configConnAddPostgresCfg.Output = os.Stdout
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnAddPostgresCfg)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddPostgresCmd)
	addConnectionFlags(configConnAddPostgresCmd, configConnAddPostgresCfg, &postgresConn.Dsn)
}
