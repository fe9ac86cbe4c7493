package rdbms

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// newNetezzaConnection opens the Netezza database connection specified in d.
func newNetezzaConnection(ctx context.Context, log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	n := shared.NetezzaConnectionDetails{Dsn: d.Dsn}
	dsn, err := n.GetNzgoConnectionString()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("nzgo", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %v", n)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "unable to connect to %v", n)
	}
	log.Info("Connected to ", n)
	return &shared.SqlConnection{DbSql: db, Dml: &shared.DmlGeneratorTxtBatch{}, DbType: constants.ConnectionTypeNetezza}, nil
}
