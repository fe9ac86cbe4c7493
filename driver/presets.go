package driver

import (
	"errors"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/lib/pq"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/rdbms/shared"
	sf "github.com/snowflakedb/gosnowflake"
)

const lobStageTable = "etl_lob_stage"

func newPostgres() Driver {
	return &Dialect{
		DriverName:         constants.ConnectionTypePostgres,
		StartTransaction:   []string{"set local statement_timeout = 0"},
		ParametersInBlocks: true,
		ParallelLoad:       true,
		PlaceholderStyle:   shared.PlaceholderDollar,
		MaxLines:           100,
		SavepointFmt:       "savepoint %v",
		RollbackToFmt:      "rollback to savepoint %v",
		BlockSeparator:     ";\n",
		FunctionClass:      constants.DriverGeneric,
		SysDate:            "current_timestamp",
		TempTableFmt:       "create temporary table %v as %v",
		TableFmt:           "create table %v as %v",
		DropFmt:            "drop table if exists %v",
		LobStageTable:      lobStageTable,
		ParseError:         isPostgresParseError,
		TypeOverrides:      map[string]dataset.SqlType{"TEXT": dataset.TypeString},
	}
}

func newSqlServer() Driver {
	return &Dialect{
		DriverName:         constants.ConnectionTypeSqlServer,
		Init:               []string{"set nocount on"},
		Callable:           true,
		AnonymousBlocks:    true,
		ParametersInBlocks: true,
		ParallelLoad:       true,
		PlaceholderStyle:   shared.PlaceholderAtP,
		MaxLines:           100,
		SavepointFmt:       "save transaction %v",
		RollbackToFmt:      "rollback transaction %v",
		BlockBegin:         "begin\n",
		BlockEnd:           ";\nend",
		BlockSeparator:     ";\n",
		FunctionClass:      constants.DriverGeneric,
		SysDate:            "sysdatetime()",
		TempTableFmt:       "select * into #%v from (%v) x",
		TableFmt:           "select * into %v from (%v) x",
		DropFmt:            "drop table if exists %v",
		LobStageTable:      lobStageTable,
		ParseError:         isSqlServerParseError,
	}
}

func newSnowflake() Driver {
	return &Dialect{
		DriverName:       constants.ConnectionTypeSnowflake,
		Init:             []string{"alter session set timezone = 'UTC'"},
		ParallelLoad:     true,
		PlaceholderStyle: shared.PlaceholderQuestion,
		MaxLines:         1, // the Go driver runs one statement per call unless multi-statement mode is enabled.
		BlockSeparator:   ";\n",
		FunctionClass:    constants.DriverGeneric,
		SysDate:          "current_timestamp",
		TempTableFmt:     "create temporary table %v as %v",
		TableFmt:         "create table %v as %v",
		DropFmt:          "drop table if exists %v",
		DdlConnection:    true, // DDL commits implicitly.
		ParseError:       isSnowflakeParseError,
		TypeOverrides:    map[string]dataset.SqlType{"TEXT": dataset.TypeString},
	}
}

func newNetezza() Driver {
	return &Dialect{
		DriverName:       constants.ConnectionTypeNetezza,
		PlaceholderStyle: shared.PlaceholderQuestion,
		MaxLines:         1,
		BlockSeparator:   ";\n",
		FunctionClass:    constants.DriverGeneric,
		SysDate:          "current_timestamp",
		TempTableFmt:     "create temporary table %v as %v",
		TableFmt:         "create table %v as %v",
		DropFmt:          "drop table %v if exists",
		DdlConnection:    true,
		ParseError:       isTextParseError,
	}
}

func newGeneric() Driver {
	return &Dialect{
		DriverName:       constants.DriverGeneric,
		PlaceholderStyle: shared.PlaceholderQuestion,
		MaxLines:         1,
		SavepointFmt:     "savepoint %v",
		RollbackToFmt:    "rollback to savepoint %v",
		BlockSeparator:   ";\n",
		FunctionClass:    constants.DriverGeneric,
		SysDate:          "current_timestamp",
		TempTableFmt:     "create temporary table %v as %v",
		TableFmt:         "create table %v as %v",
		DropFmt:          "drop table %v",
		ParseError:       isTextParseError,
	}
}

// newMock returns a permissive dialect for MockConnection.
// Each statement is executed on its own so tests can observe them individually.
func newMock() Driver {
	return &Dialect{
		DriverName:         constants.DriverMock,
		ParametersInBlocks: true,
		ParallelLoad:       true,
		PlaceholderStyle:   shared.PlaceholderColon,
		MaxLines:           1,
		SavepointFmt:       "savepoint %v",
		RollbackToFmt:      "rollback to savepoint %v",
		BlockSeparator:     ";\n",
		FunctionClass:      constants.DriverGeneric,
		SysDate:            "current_timestamp",
		TempTableFmt:       "create temporary table %v as %v",
		TableFmt:           "create table %v as %v",
		DropFmt:            "drop table %v",
		LobStageTable:      lobStageTable,
		ParseError:         isTextParseError,
	}
}

func isPostgresParseError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "42" // syntax error or access rule violation.
	}
	return isTextParseError(err)
}

func isSqlServerParseError(err error) bool {
	var e mssql.Error
	if errors.As(err, &e) {
		switch e.Number {
		case 102, 156, 170, 207, 208: // incorrect syntax, invalid column, invalid object.
			return true
		}
		return false
	}
	return isTextParseError(err)
}

func isSnowflakeParseError(err error) bool {
	var e *sf.SnowflakeError
	if errors.As(err, &e) {
		return strings.HasPrefix(e.SQLState, "42")
	}
	return isTextParseError(err)
}

func isTextParseError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "syntax error") || strings.Contains(s, "parse error")
}
