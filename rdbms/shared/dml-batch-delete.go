package shared

import (
	"strings"

	h "github.com/relloyd/etl-engine/helper"
)

// SqlDeleteTxtBatch generates DELETE ... USING statements for a batch of key values.
type SqlDeleteTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	KeyList []string
}

func (*DmlGeneratorTxtBatch) NewDeleteGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		cfg.Log.Panic(err)
	}
	cfg.Log.Debug("Creating NewDeleteGenerator")
	o := &SqlDeleteTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.KeyList = orderedMapValues(o.Log, o.TargetKeyCols)
	o.sqlStmtTemplate = replaceTableTokens(`delete from <SCHEMA><SEPARATOR><TABLE> using (<USING>) src where <KEY-TXT>`, cfg)
	o.Log.Debug("setup DELETE generator setup SQL (<USING>, <KEY-TXT> pending): ", o.sqlStmtTemplate)
	return o
}

func (o *SqlDeleteTxtBatch) InitBatch(batchSize int) {
	o.initCore(batchSize, len(o.KeyList))
}

func (o *SqlDeleteTxtBatch) AddValuesToBatch(values []interface{}) (bool, error) {
	return o.addValues("DELETE", values, len(o.KeyList))
}

func (o *SqlDeleteTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch { // if we have a new number of rows and need to generate SQL...
		allRows := getInlineSelectOfValues(o.rowsInBatch, o.KeyList, o.Placeholder, o.FromDual)
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<USING>", allRows.String(), 1)
		keyList := h.GenerateStringOfColsEqualsCols(o.KeyList, "src", o.OutputTable, " and ")
		o.sqlStmt = strings.Replace(o.sqlStmt, "<KEY-TXT>", keyList, 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	o.Log.Trace("SQL batch DELETE generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
