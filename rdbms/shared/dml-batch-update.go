package shared

import (
	"strings"

	h "github.com/relloyd/etl-engine/helper"
)

// SqlUpdateTxtBatch generates UPDATE ... FROM statements that apply a batch of rows joined by key columns.
// Values must be supplied as key columns followed by other columns.
type SqlUpdateTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList    []string
	KeyList    []string
	AllColList []string
}

func (*DmlGeneratorTxtBatch) NewUpdateGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		cfg.Log.Panic(err)
	}
	cfg.Log.Debug("Creating NewUpdateGenerator")
	o := &SqlUpdateTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.KeyList = orderedMapValues(o.Log, o.TargetKeyCols)
	o.ColList = orderedMapValues(o.Log, o.TargetOtherCols)
	o.AllColList = orderedMapValues(o.Log, o.TargetKeyCols, o.TargetOtherCols)
	o.sqlStmtTemplate = replaceTableTokens(`update <SCHEMA><SEPARATOR><TABLE> set <COL-TXT> from ( <FROM-TXT> ) src where <KEY-TXT>`, cfg)
	o.Log.Debug("setup UPDATE generator with SQL (<COL-TXT>, <FROM-TXT>, <KEY-TXT> pending): ", o.sqlStmtTemplate)
	return o
}

func (o *SqlUpdateTxtBatch) InitBatch(batchSize int) {
	o.initCore(batchSize, len(o.AllColList))
}

func (o *SqlUpdateTxtBatch) AddValuesToBatch(values []interface{}) (bool, error) {
	return o.addValues("UPDATE", values, len(o.AllColList))
}

func (o *SqlUpdateTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch { // if we have a new number of rows and need to generate SQL...
		setList := make([]string, len(o.ColList))
		for idx, c := range o.ColList {
			setList[idx] = c + " = src." + c
		}
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<COL-TXT>", strings.Join(setList, ","), 1)
		allRows := getInlineSelectOfValues(o.rowsInBatch, o.AllColList, o.Placeholder, o.FromDual)
		o.sqlStmt = strings.Replace(o.sqlStmt, "<FROM-TXT>", allRows.String(), 1)
		keyList := h.GenerateStringOfColsEqualsCols(o.KeyList, "src", o.OutputTable, " and ")
		o.sqlStmt = strings.Replace(o.sqlStmt, "<KEY-TXT>", keyList, 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	o.Log.Trace("SQL batch UPDATE generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
