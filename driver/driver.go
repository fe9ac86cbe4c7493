package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// Driver describes a SQL dialect.
type Driver interface {
	Name() string
	InitSQL() []string
	StartTransactionSQL() []string
	IgnoreInitErrors() bool
	SupportsCallable() bool
	SupportsAnonymousBlocks() bool
	SupportsParametersInBlocks() bool
	SupportsParallelLoad() bool
	RequiresDdlConnection() bool
	Placeholder() shared.PlaceholderFunc
	FromDual() string
	MaxLinesPerBlock() int
	SavepointSQL(name string) string
	RollbackToSavepointSQL(name string) string
	IsParseError(err error) bool
	SqlType(databaseTypeName string) dataset.SqlType
	StageClob(ctx context.Context, q shared.Querier, key LobKey, value string) error
	StageBlob(ctx context.Context, q shared.Querier, key LobKey, value []byte) error
	WrapBlock(statements []string) string
	DefaultFunctionClass() string
	SysDateSQL() string
	CreateCursorTableSQL(name string, selectSQL string, temp bool) string
	DropTableSQL(name string) string
}

// LobKey identifies a staged large object value.
type LobKey struct {
	Destination string
	Field       string
	Key         string // primary key variable value, or the row ordinal.
}

// Dialect is a data-driven Driver.
type Dialect struct {
	DriverName           string
	Init                 []string
	StartTransaction     []string
	IgnoreInitExceptions bool
	Callable             bool
	AnonymousBlocks      bool
	ParametersInBlocks   bool
	ParallelLoad         bool
	DdlConnection        bool
	PlaceholderStyle     shared.PlaceholderFunc
	Dual                 string
	MaxLines             int
	SavepointFmt         string // e.g. "savepoint %v"
	RollbackToFmt        string
	BlockBegin           string
	BlockEnd             string
	BlockSeparator       string
	FunctionClass        string
	SysDate              string
	TempTableFmt         string // e.g. "create temporary table %v as %v"
	TableFmt             string
	DropFmt              string
	LobStageTable        string
	ParseError           func(err error) bool
	TypeOverrides        map[string]dataset.SqlType
}

func (d *Dialect) Name() string                     { return d.DriverName }
func (d *Dialect) InitSQL() []string                { return d.Init }
func (d *Dialect) StartTransactionSQL() []string    { return d.StartTransaction }
func (d *Dialect) IgnoreInitErrors() bool           { return d.IgnoreInitExceptions }
func (d *Dialect) SupportsCallable() bool           { return d.Callable }
func (d *Dialect) SupportsAnonymousBlocks() bool    { return d.AnonymousBlocks }
func (d *Dialect) SupportsParametersInBlocks() bool { return d.ParametersInBlocks }
func (d *Dialect) SupportsParallelLoad() bool       { return d.ParallelLoad }
func (d *Dialect) RequiresDdlConnection() bool      { return d.DdlConnection }
func (d *Dialect) FromDual() string                 { return d.Dual }
func (d *Dialect) DefaultFunctionClass() string     { return d.FunctionClass }
func (d *Dialect) SysDateSQL() string               { return d.SysDate }
func (d *Dialect) DropTableSQL(name string) string  { return fmt.Sprintf(d.DropFmt, name) }
// SavepointSQL returns "" if the dialect has no savepoints.
func (d *Dialect) SavepointSQL(name string) string {
	if d.SavepointFmt == "" {
		return ""
	}
	return fmt.Sprintf(d.SavepointFmt, name)
}

func (d *Dialect) RollbackToSavepointSQL(name string) string {
	if d.RollbackToFmt == "" {
		return ""
	}
	return fmt.Sprintf(d.RollbackToFmt, name)
}

func (d *Dialect) Placeholder() shared.PlaceholderFunc {
	if d.PlaceholderStyle == nil {
		return shared.PlaceholderColon
	}
	return d.PlaceholderStyle
}

// MaxLinesPerBlock returns the number of statements that may be sent in one execution.
// Values < 1 mean 1.
func (d *Dialect) MaxLinesPerBlock() int {
	if d.MaxLines < 1 {
		return 1
	}
	return d.MaxLines
}

func (d *Dialect) IsParseError(err error) bool {
	if err == nil || d.ParseError == nil {
		return false
	}
	return d.ParseError(err)
}

// SqlType maps a database type name to a dataset type.
func (d *Dialect) SqlType(databaseTypeName string) dataset.SqlType {
	n := strings.ToUpper(strings.TrimSpace(databaseTypeName))
	if t, ok := d.TypeOverrides[n]; ok {
		return t
	}
	return genericSqlType(n)
}

func (d *Dialect) CreateCursorTableSQL(name string, selectSQL string, temp bool) string {
	if temp {
		return fmt.Sprintf(d.TempTableFmt, name, selectSQL)
	}
	return fmt.Sprintf(d.TableFmt, name, selectSQL)
}

// WrapBlock joins statements into one executable unit.
func (d *Dialect) WrapBlock(statements []string) string {
	body := strings.Join(statements, d.BlockSeparator)
	if !d.AnonymousBlocks {
		return body
	}
	return d.BlockBegin + body + d.BlockEnd
}

func (d *Dialect) StageClob(ctx context.Context, q shared.Querier, key LobKey, value string) error {
	return d.stageLob(ctx, q, key, value, nil)
}

func (d *Dialect) StageBlob(ctx context.Context, q shared.Querier, key LobKey, value []byte) error {
	return d.stageLob(ctx, q, key, nil, value)
}

func (d *Dialect) stageLob(ctx context.Context, q shared.Querier, key LobKey, clob interface{}, blob interface{}) error {
	if d.LobStageTable == "" {
		return fmt.Errorf("driver %v does not support LOB staging", d.DriverName)
	}
	ph := d.Placeholder()
	sql := fmt.Sprintf("insert into %v (destination_name, field_name, row_key, clob_value, blob_value) values (%v,%v,%v,%v,%v)",
		d.LobStageTable, ph(1), ph(2), ph(3), ph(4), ph(5))
	_, err := q.ExecContext(ctx, sql, key.Destination, key.Field, key.Key, clob, blob)
	return err
}

func genericSqlType(n string) dataset.SqlType {
	if i := strings.Index(n, "("); i > 0 { // strip any length/precision.
		n = n[:i]
	}
	switch n {
	case "VARCHAR", "NVARCHAR", "CHAR", "NCHAR", "VARCHAR2", "NVARCHAR2", "STRING", "BPCHAR", "UUID", "UNIQUEIDENTIFIER":
		return dataset.TypeString
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "TINYINT", "BYTEINT",
		"NUMERIC", "DECIMAL", "NUMBER", "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "MONEY", "FIXED":
		return dataset.TypeNumber
	case "DATE", "TIME", "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET",
		"TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP_NTZ", "TIMESTAMP_LTZ", "TIMESTAMP_TZ":
		return dataset.TypeDate
	case "BOOL", "BOOLEAN", "BIT":
		return dataset.TypeBool
	case "CLOB", "NCLOB", "TEXT", "NTEXT", "XML", "JSON", "JSONB":
		return dataset.TypeClob
	case "BLOB", "BYTEA", "VARBINARY", "BINARY", "IMAGE":
		return dataset.TypeBlob
	}
	return dataset.TypeUnknown
}
