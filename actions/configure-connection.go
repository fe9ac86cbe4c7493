package actions

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

type ConnectionConfig struct {
	ConfigFile  ConnectionGetterSetter `errorTxt:"connections config file" mandatory:"yes"`
	LogicalName string                 `errorTxt:"connection-name" mandatory:"yes"`
	Type        string
	ConnDetails ConnectionValidator // nil for connection types that need no details e.g. mock.
	Force       bool
	Output      io.Writer
}

func (cfg *ConnectionConfig) printf(format string, a ...interface{}) {
	if cfg.Output != nil {
		_, _ = fmt.Fprintf(cfg.Output, format, a...)
	}
}

// RunConnectionAdd validates the connection details in cfg and saves them under cfg.LogicalName.
// An existing connection is only replaced when cfg.Force is set.
func RunConnectionAdd(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	// Setup the basics ready to be persisted below.
	connection := shared.ConnectionDetails{
		LogicalName: cfg.LogicalName,
		Type:        cfg.Type,
		Data:        make(map[string]string),
	}
	// Validate connection name.
	if strings.Contains(cfg.LogicalName, ".") {
		return fmt.Errorf("connection name cannot contain period characters '.'")
	}
	if cfg.ConnDetails != nil { // if there are details to validate...
		if err := cfg.ConnDetails.Parse(); err != nil {
			return errors.Wrap(err, "unable to create connection")
		}
		scheme, err := cfg.ConnDetails.GetScheme()
		if err != nil {
			return err
		}
		if connection.Type == "" {
			connection.Type = scheme
		} else if scheme != connection.Type { // else the DSN is for a different database...
			return fmt.Errorf("DSN scheme %q does not match connection type %q", scheme, connection.Type)
		}
		cfg.ConnDetails.GetMap(connection.Data)
	}
	if !IsSupportedConnectionType(connection.Type) {
		return fmt.Errorf("%q is an unsupported connection type, please use one of these: %v", connection.Type, GetSupportedConnectionTypes())
	}
	// Check for an existing saved connection.
	tmpConn := shared.ConnectionDetails{}
	err := cfg.ConfigFile.Get(cfg.LogicalName, &tmpConn)
	if err != nil { // if there is an error finding the connection...
		if !errors.As(err, &config.KeyNotFoundError{}) && !errors.As(err, &config.FileNotFoundError{}) { // if the error is real...
			return err
		}
	} else if !cfg.Force { // else the connection exists, but we are not allowed to overwrite it...
		return fmt.Errorf("connection %q exists, use force to update the connection or remove it first", cfg.LogicalName)
	}
	// Set config (creates the file if missing).
	if err = cfg.ConfigFile.Set(cfg.LogicalName, connection); err != nil {
		return errors.Wrap(err, "error writing connections config file after adding")
	}
	cfg.printf("Connection %q added\n", cfg.LogicalName)
	return nil
}

func RunConnectionRemove(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if err := cfg.ConfigFile.Delete(cfg.LogicalName); err != nil {
		return fmt.Errorf("unable to delete connection %q from config: %v", cfg.LogicalName, err)
	}
	cfg.printf("Connection %q removed\n", cfg.LogicalName)
	return nil
}

// ConnectionLister reads every connection in a config file.
type ConnectionLister interface {
	GetAllKeys() ([]string, error)
	Get(key string, out interface{}) error
}

// RunConnectionList writes each connection to w with its password redacted.
func RunConnectionList(f ConnectionLister, w io.Writer) error {
	keys, err := f.GetAllKeys()
	if err != nil {
		return err
	}
	for _, k := range keys { // for each connection name...
		conn := shared.ConnectionDetails{}
		if err := f.Get(k, &conn); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%v:\n%v\n", k, conn); err != nil {
			return err
		}
	}
	return nil
}
