package config

import (
	"fmt"

	"github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// GetConnectionType returns the type of the named connection.
// Return an error if the key doesn't exist.
func (c *File) GetConnectionType(connectionName string) (connectionType string, err error) {
	genericConn, err := c.GetConnectionDetails(connectionName)
	if err != nil {
		return "", err
	}
	return genericConn.Type, nil
}

// GetConnectionDetails fetches generic connection details from the File c using the connectionName to do the lookup.
// If the connection is not found the an error is produced.
func (c *File) GetConnectionDetails(connectionName string) (*shared.ConnectionDetails, error) {
	genericConn := &shared.ConnectionDetails{}
	if err := c.Get(connectionName, genericConn); err != nil {
		return nil, err
	}
	if genericConn.Type == "" { // if the connection was not found...
		return nil, fmt.Errorf("connection %q is not configured: use 'config' command to create it", connectionName)
	}
	return genericConn, nil
}

// LoadConnection implements shared.ConnectionGetter.
// A DSN found in environment variable ETL_<NAME>_DSN replaces the stored DSN.
func (c *File) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d := shared.ConnectionDetails{}
	err := c.Get(connectionName, &d)
	if err != nil { // if there was an error fetching the connection from config...
		return d, err
	}
	if d.Type == "" {
		return d, KeyNotFoundError{c.FullPath, connectionName, fmt.Errorf("connection has no type")}
	}
	if dsn, _ := helper.GetEnvVar(helper.GetDsnEnvVarName(connectionName), false); dsn != "" {
		if d.Data == nil {
			d.Data = make(map[string]string)
		}
		d.Data[shared.DefaultDsnConnectionKeyNames.Dsn] = dsn
	}
	return d, nil
}

// MapConnections is a ConnectionGetter over an in-memory map, used when connections are supplied inline.
type MapConnections map[string]shared.ConnectionDetails

func (m MapConnections) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d, ok := m[connectionName]
	if !ok {
		return d, KeyNotFoundError{"<memory>", connectionName, nil}
	}
	return d, nil
}
