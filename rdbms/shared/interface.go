package shared

import (
	"context"
)

// Querier is the common subset of a database connection and a transaction.
// The engine runs all scenario SQL through a Querier so it can be bound to the
// transaction owned by the scenario tree.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
}

// Connector abstracts all access to Go SQL functionality.
type Connector interface {
	Querier
	BeginTx(ctx context.Context) (Transacter, error)
	Ping(ctx context.Context) error
	Close()
	GetType() string
	GetDmlGenerator() DmlGenerator
}

// Transacter is a transaction bound to one physical connection.
type Transacter interface {
	Querier
	Commit() error
	Rollback() error
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Rows abstracts *sql.Rows so mock connections can return scripted results.
type Rows interface {
	Columns() ([]string, error)
	ColumnTypes() ([]ColumnType, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// ColumnType is satisfied by *sql.ColumnType.
type ColumnType interface {
	Name() string
	DatabaseTypeName() string
	Nullable() (nullable, ok bool)
	Length() (length int64, ok bool)
	DecimalSize() (precision, scale int64, ok bool)
}

type DmlGenerator interface {
	NewInsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher
	NewUpdateGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher
	NewDeleteGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher
	NewMergeGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher
}

// SqlStmtGenerator is used as part of SqlStmtTxtBatcher.
type SqlStmtGenerator interface {
	GetStatement() string
}

// SqlStmtTxtBatcher is used to combine DML statements that affect individual records into one statement, aiming
// to improve performance and reduce network round trips.
type SqlStmtTxtBatcher interface {
	SqlStmtGenerator
	InitBatch(batchSize int)                             // reset variables and preallocate slices for the given batch size.
	AddValuesToBatch(values []interface{}) (bool, error) // add values to SQL statement.
	GetValues() []interface{}                            // get all values added to the batch so they can be supplied as args to exec the SQL returned by getStatement().
}

type SqlResultHandler interface {
	HandleHeader(columns []ColumnType) error
	HandleRow(values []interface{}) error
}

type ConnectionGetter interface {
	LoadConnection(name string) (ConnectionDetails, error)
}
