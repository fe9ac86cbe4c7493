package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
)

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long: fmt.Sprintf(`Add a logical database connection for use by scenarios.
Supported connection types are: %v`, actions.GetSupportedConnectionTypes()),
}

// addConnectionFlags adds the flags shared by all "config connections add" commands.
// Supply a nil dsn for connection types that need no details.
func addConnectionFlags(c *cobra.Command, cfg *actions.ConnectionConfig, dsn *string) {
	c.Flags().SortFlags = false
	switches.addFlag(c, &cfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(c, &cfg.Force, "force-connection", "", false, "")
	if dsn != nil {
		switches.addFlag(c, dsn, "dsn", "", true, "")
	}
}
