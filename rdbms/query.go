package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// SqlQuery runs sqltext with args on db and sends the header then each row to i.
// It stops early with the context error if ctx is cancelled.
func SqlQuery(ctx context.Context, log logger.Logger, db shared.Querier, sqltext string, args []interface{}, i shared.SqlResultHandler) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	// Set up column types for Scan(...)
	log.Trace("fetching column types...")
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("error fetching column types: %w", err)
	}
	if err = i.HandleHeader(colTypes); err != nil {
		return err
	}
	// Scan the values dynamically.
	lenColTypes := len(colTypes)
	scanPtrs := make([]interface{}, lenColTypes)
	scanVals := make([]interface{}, lenColTypes)
	for idx := 0; idx < lenColTypes; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx] // save the value.
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if err = ctx.Err(); err != nil { // quit if asked to, else continue...
			return err
		}
		if err = rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		// Make a new row.
		row := make([]interface{}, lenColTypes)
		copy(row, scanVals)
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SqlExec runs sqltext with args on db and returns the number of rows affected, or -1 when the driver does not say.
func SqlExec(ctx context.Context, log logger.Logger, db shared.Querier, sqltext string, args ...interface{}) (int64, error) {
	log.Trace("exec SQL: ", sqltext)
	res, err := db.ExecContext(ctx, sqltext, args...)
	if err != nil {
		return 0, fmt.Errorf("error executing SQL: '%v': %w", sqltext, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}
