package shared

import (
	"strings"

	h "github.com/relloyd/etl-engine/helper"
)

// SqlMergeTxtBatch generates MERGE statements with batches of rows supplied.
// Values must be supplied as key columns followed by other columns.
type SqlMergeTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	AllCols   []string
	KeyCols   []string
	OtherCols []string
}

// NewMergeGenerator creates a MERGE generator.
// Configure defaults in SqlStatementGeneratorConfig.
func (*DmlGeneratorTxtBatch) NewMergeGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		cfg.Log.Panic(err)
	}
	cfg.Log.Debug("Creating new SqlMerge")
	o := &SqlMergeTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.KeyCols = orderedMapValues(o.Log, o.TargetKeyCols)
	o.OtherCols = orderedMapValues(o.Log, o.TargetOtherCols)
	o.AllCols = orderedMapValues(o.Log, o.TargetKeyCols, o.TargetOtherCols)
	// Keep this on one line per clause so tests can match it.
	o.sqlStmtTemplate = replaceTableTokens(`merge into <SCHEMA><SEPARATOR><TABLE> T using (<SELECT-FROM-DUAL>) S on (<KEY-COLS-EQUALS>) `+
		`when matched then update set <OTHER-COLS-EQUALS> `+
		`when not matched then insert (<ALL-COLS>) values (<SRC-COLS>)`, cfg)
	return o
}

func (o *SqlMergeTxtBatch) InitBatch(batchSize int) {
	o.initCore(batchSize, len(o.AllCols))
}

func (o *SqlMergeTxtBatch) AddValuesToBatch(values []interface{}) (bool, error) {
	return o.addValues("MERGE", values, len(o.AllCols))
}

func (o *SqlMergeTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch { // if we have a new number of rows and need to generate SQL...
		keyColsEquals := h.GenerateStringOfColsEqualsCols(o.KeyCols, "S", "T", " and ")
		otherColsEquals := h.GenerateStringOfColsEqualsCols(o.OtherCols, "T", "S", ",")
		s := strings.Replace(o.sqlStmtTemplate, "<SELECT-FROM-DUAL>",
			getInlineSelectOfValues(o.rowsInBatch, o.AllCols, o.Placeholder, o.FromDual).String(), 1)
		s = strings.Replace(s, "<KEY-COLS-EQUALS>", keyColsEquals, 1)
		if len(o.OtherCols) == 0 { // if there is nothing to update...
			s = strings.Replace(s, "when matched then update set <OTHER-COLS-EQUALS> ", "", 1)
		} else {
			s = strings.Replace(s, "<OTHER-COLS-EQUALS>", otherColsEquals, 1)
		}
		s = strings.Replace(s, "<ALL-COLS>", strings.Join(o.AllCols, ","), 1)
		s = strings.Replace(s, "<SRC-COLS>", "S."+strings.Join(o.AllCols, ",S."), 1) // aim to make: "S.col1,S.col2,S.col3..."
		o.sqlStmt = s
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	o.Log.Trace("SQL Merge Generator returning SQL: ", o.sqlStmt)
	return o.sqlStmt
}
