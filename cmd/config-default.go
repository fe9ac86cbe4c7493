package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
)

var defaultCmd = &cobra.Command{
	Use:     "defaults",
	Aliases: []string{"default"},
	Short:   "Manage default flag values",
	Long: fmt.Sprintf(`Manage default flag values. A default is used when the flag of the same name
is not supplied and environment variable ETL_<FLAG NAME> is not set.
Supported keys are: %v`, strings.Join(config.DefaultKeys, ", ")),
}

var (
	defaultAddCfg    = actions.DefaultAddConfig{}
	defaultRemoveCfg = actions.DefaultRemoveConfig{}
)

var defaultAddCmd = &cobra.Command{
	Use:          "add",
	Aliases:      []string{"set"},
	Short:        "Add or replace a default flag value",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultAddCfg.ConfigFile = config.Main
		defaultAddCfg.Output = os.Stdout
		return actions.RunDefaultAdd(&defaultAddCfg)
	},
}

var defaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all default flag values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunDefaultList(config.Main, os.Stdout)
	},
}

var defaultRemoveCmd = &cobra.Command{
	Use:          "remove",
	Aliases:      []string{"rm", "delete"},
	Short:        "Remove a default flag value",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultRemoveCfg.ConfigFile = config.Main
		defaultRemoveCfg.Output = os.Stdout
		return actions.RunDefaultRemove(&defaultRemoveCfg)
	},
}

func init() {
	configCmd.AddCommand(defaultCmd)
	defaultCmd.AddCommand(defaultAddCmd, defaultListCmd, defaultRemoveCmd)

	f := defaultAddCmd.Flags()
	f.SortFlags = false
	f.StringVarP(&defaultAddCfg.Key, "key", "k", "", "Flag name to set a default for")
	f.StringVarP(&defaultAddCfg.Value, "value", "v", "", "Value to use when the flag is not supplied")
	f.BoolVarP(&defaultAddCfg.Force, "force", "f", false, "Replace an existing value")
	_ = defaultAddCmd.MarkFlagRequired("key")
	_ = defaultAddCmd.MarkFlagRequired("value")

	defaultRemoveCmd.Flags().StringVarP(&defaultRemoveCfg.Key, "key", "k", "", "Flag name to remove the default for")
	_ = defaultRemoveCmd.MarkFlagRequired("key")
}
