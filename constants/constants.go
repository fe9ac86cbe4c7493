package constants

// Engine

const (
	AppName                        = "etl"
	ServiceName                    = "etl-engine"
	EnvVarPrefix                   = "ETL" // prefix for environment variables that override config defaults
	StatsCaptureFrequencySeconds   = 5
	TimeFormatYearSecondsTZ        = "20060102T150405-0700" // includes the time zone for variables rendered into SQL.
	DefaultParallelism             = 1
	DefaultMaxScriptLoopIterations = 10000
	DefaultCodeGenBatchRows        = 500
	LoopSentinelValue              = "NO_MORE_ITERATIONS" // returned by loop scripts to end iteration.
	CursorTableSuffix              = "_ETL_CUR"
)

// Connection types

const (
	ConnectionTypeMock      = "mock"
	ConnectionTypeSnowflake = "snowflake"
	ConnectionTypeNetezza   = "netezza"
	ConnectionTypeSqlServer = "sqlserver"
	ConnectionTypePostgres  = "postgres"
	ConnectionTypeCsv       = "csv"
)

// Driver, connector, codegen and task registry keys.

const (
	DriverGeneric           = "generic"
	DriverMock              = "mock"
	ConnectorSql            = "sql"
	ConnectorCsv            = "csv"
	ConnectorDataSet        = "dataset"
	ConnectorLog            = "log"
	CodeGenSql              = "sql"
	TaskClassSqlExec        = "SqlExec"
	TaskClassJsonLogic      = "JsonLogicFilter"
	TaskClassSetVariable    = "SetVariable"
	TaskClassLog            = "Log"
	TaskClassHalt           = "Halt"
	ScriptLanguageJsonLogic = "jsonlogic"
)
