package shared

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/etl-engine/constants"
)

// ConnectionDetails is intended to hold credentials for a logical database connection.
type ConnectionDetails struct {
	Type        string            `json:"type" errorTxt:"database type" mandatory:"yes" yaml:"type"`
	LogicalName string            `json:"logicalName" errorTxt:"database logical name" mandatory:"yes" yaml:"logicalName"`
	Data        map[string]string `json:"data" yaml:"data"`
}

// String redacts passwords and pretty-prints the contents of ConnectionDetails.
func (c ConnectionDetails) String() string {
	x := make([]string, 0, len(c.Data)+1)
	x = append(x, fmt.Sprintf("  type = %v", c.Type))
	if v, ok := c.Data[DefaultDsnConnectionKeyNames.Dsn]; ok { // if there's a DSN...
		// Parse the connection to remove passwords.
		switch c.Type {
		case constants.ConnectionTypeNetezza:
			n := NetezzaConnectionDetails{Dsn: v, OriginalScheme: constants.ConnectionTypeNetezza}
			v = n.String()
		case constants.ConnectionTypeMock, constants.ConnectionTypeCsv:
		default:
			v = redactDsn(v)
		}
		x = append(x, fmt.Sprintf("  dsn = %v", v))
	} else { // else there's no DSN...
		keys := make([]string, 0, len(c.Data))
		for k := range c.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := c.Data[k]
			if k == "password" {
				v = "xxxxx"
			}
			x = append(x, fmt.Sprintf("  %v = %v", k, v))
		}
	}
	return strings.Join(x, "\n")
}

// GetDsn returns the DSN held in the connection data.
func (c ConnectionDetails) GetDsn() (string, error) {
	v, ok := c.Data[DefaultDsnConnectionKeyNames.Dsn]
	if !ok || v == "" {
		return "", fmt.Errorf("connection %q has no dsn", c.LogicalName)
	}
	return v, nil
}

// MustGetSysDateSql returns the SQL expression for the current date-time on the database type.
func (c ConnectionDetails) MustGetSysDateSql() string {
	switch c.Type {
	case constants.ConnectionTypeSqlServer:
		return "sysdatetime()"
	case constants.ConnectionTypeSnowflake, constants.ConnectionTypePostgres, constants.ConnectionTypeNetezza, constants.ConnectionTypeMock:
		return "current_timestamp"
	default:
		panic(fmt.Sprintf("unsupported database type %q in call to get SQL for current date", c.Type))
	}
}

// DBConnections is a set of connections keyed by the name used in a scenario.
type DBConnections map[string]ConnectionDetails

// LoadConnection will load the supplied *c[connectionName], which is expected to be in c, using the interface
// to do the actual loading.
func (c *DBConnections) LoadConnection(i ConnectionGetter, connectionName string) error {
	conn, ok := (*c)[connectionName]
	if !ok {
		return fmt.Errorf("connection %q not found", connectionName)
	}
	d, err := i.LoadConnection(conn.LogicalName) // fetch new ConnectionDetails from config using the logicalName, not the connectionName!
	if err != nil {
		return errors.Wrapf(err, "unable to load connection %q", connectionName)
	}
	(*c)[connectionName] = d // replace the connection with the loaded version
	return nil
}
