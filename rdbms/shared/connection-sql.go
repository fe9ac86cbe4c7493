package shared

import (
	"context"
	"database/sql"
	"errors"
)

// SqlConnection is a wrapper around Go native sql.DB.
// It also adds the DmlGenerator interface for use by code generators that output records to a database.
type SqlConnection struct {
	DbSql  *sql.DB
	Dml    DmlGenerator
	DbType string
}

// Connector:

func (c *SqlConnection) BeginTx(ctx context.Context) (Transacter, error) {
	if c.DbSql == nil {
		return nil, errors.New("SqlConnection was not configured correctly: DbSql is missing")
	}
	tx, err := c.DbSql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SqlTx{txSql: tx}, nil
}

func (c *SqlConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.DbSql.ExecContext(ctx, query, args...)
}

func (c *SqlConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	r, err := c.DbSql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &SqlRows{rowsSql: r}, nil
}

func (c *SqlConnection) Ping(ctx context.Context) error {
	return c.DbSql.PingContext(ctx)
}

func (c *SqlConnection) Close() {
	_ = c.DbSql.Close()
}

func (c *SqlConnection) GetDmlGenerator() DmlGenerator {
	return c.Dml
}

func (c *SqlConnection) GetType() string {
	return c.DbType
}

// Transacter:

type SqlTx struct {
	txSql *sql.Tx
}

func (t *SqlTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.txSql.ExecContext(ctx, query, args...)
}

func (t *SqlTx) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	r, err := t.txSql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &SqlRows{rowsSql: r}, nil
}

func (t *SqlTx) Commit() error {
	return t.txSql.Commit()
}

func (t *SqlTx) Rollback() error {
	return t.txSql.Rollback()
}

// Rows:

type SqlRows struct {
	rowsSql *sql.Rows
}

func (r *SqlRows) Close() error {
	return r.rowsSql.Close()
}

func (r *SqlRows) Columns() ([]string, error) {
	return r.rowsSql.Columns()
}

func (r *SqlRows) ColumnTypes() ([]ColumnType, error) {
	c, err := r.rowsSql.ColumnTypes() // get the specific column types.
	if err != nil {
		return nil, err
	}
	x := make([]ColumnType, len(c)) // make a generic slice of ColumnType.
	for i, v := range c {
		x[i] = v
	}
	return x, nil
}

func (r *SqlRows) Err() error {
	return r.rowsSql.Err()
}

func (r *SqlRows) Next() bool {
	return r.rowsSql.Next()
}

func (r *SqlRows) Scan(dest ...interface{}) error {
	return r.rowsSql.Scan(dest...)
}
