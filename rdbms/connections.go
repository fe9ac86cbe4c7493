package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/IBM/nzgo/v12"
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/xo/dburl"
)

// supportedDsnConnectionTypes is a map where keys are the connections opened via dburl.
// Snowflake, Netezza and mock connections are handled explicitly so do not need to be here.
var supportedDsnConnectionTypes = map[string]struct{}{
	constants.ConnectionTypeSqlServer: {},
	constants.ConnectionTypePostgres:  {},
}

// isSupportedConnection returns true if it can look up the supplied connection type t in map of supported
// connections supportedDsnConnectionTypes.
func isSupportedConnection(connectionType string) bool {
	_, ok := supportedDsnConnectionTypes[connectionType]
	return ok
}

// OpenDbConnection opens a database connection using the supplied ConnectionDetails struct in c.
func OpenDbConnection(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (db shared.Connector, err error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details in c.Data!
	switch c.Type {
	case constants.ConnectionTypeSnowflake:
		db, err = newSnowflakeConnection(ctx, log, shared.GetDsnConnectionDetails(&c))
	case constants.ConnectionTypeNetezza:
		db, err = newNetezzaConnection(ctx, log, shared.GetDsnConnectionDetails(&c))
	case constants.ConnectionTypeMock:
		db, err = shared.NewMockConnectionWithMockTx(log, constants.ConnectionTypeMock)
	default:
		if isSupportedConnection(c.Type) { // if the connection type is supported...
			db, err = newConnectionWithDsn(ctx, log, shared.GetDsnConnectionDetails(&c))
		} else { // else we have an unsupported database...
			err = fmt.Errorf("unsupported database type, %q", c.Type)
		}
	}
	return
}

func newConnectionWithDsn(ctx context.Context, log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	log.Info("Opening database connection: ", d)
	u, err := dburl.Parse(d.Dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, errors.Wrap(err, "error parsing DSN")
	}
	// Create the new Connector.
	conn := &shared.SqlConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{},
		DbType: u.Driver,
	}
	// Open the connection.
	conn.DbSql, err = sql.Open(u.Driver, u.DSN)
	if err != nil {
		return nil, err
	}
	// Test the connection.
	if err = conn.DbSql.PingContext(ctx); err != nil {
		_ = conn.DbSql.Close()
		return nil, errors.Wrapf(err, "unable to connect to %v", d)
	}
	log.Info("Successful connection to: ", d)
	return conn, nil
}

// PlaceholderFor returns the bind variable style used by the database type.
func PlaceholderFor(dbType string) shared.PlaceholderFunc {
	switch dbType {
	case constants.ConnectionTypeSqlServer, "mssql":
		return shared.PlaceholderAtP
	case constants.ConnectionTypePostgres, constants.ConnectionTypeNetezza:
		return shared.PlaceholderDollar
	case constants.ConnectionTypeSnowflake:
		return shared.PlaceholderQuestion
	default:
		return shared.PlaceholderColon
	}
}
