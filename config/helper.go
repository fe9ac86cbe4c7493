package config

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/helper"
)

// mustGetConfigHomeDir returns the full path to the home directory that stores all config files.
// ETL_HOME overrides ~/.etl.
func mustGetConfigHomeDir() string {
	if etlHomeDir == "" {
		if v := helper.ReadValueFromEnvWithDefault(constants.EnvVarPrefix+"_HOME", ""); v != "" {
			etlHomeDir = v
			return etlHomeDir
		}
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		etlHomeDir = path.Join(home, MainDir)
	}
	return etlHomeDir
}

// makeDir wll make the given directory if it does not already exist.
// If it exist then return nil.
// An error is returned if there is a problem creating the dir.
func makeDir(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) { // if it doesn't exist...
		if err = os.MkdirAll(dir, 0755); err != nil { // if the dir was NOT created...
			return fmt.Errorf("error creating directory %v", dir)
		}
	} else if err != nil { // if there was an error getting status...
		return err
	}
	return nil
}
