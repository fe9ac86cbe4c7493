package shared

import (
	"fmt"
	"strings"
)

// SqlInsertTxtBatch implements interface SqlStmtTxtBatcher
// and is able to generate INSERT statements with batches of rows supplied.
type SqlInsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // list of columns extracted from SqlStatementGeneratorConfig.
}

// NewInsertGenerator creates a new generator that implements interface SqlStmtTxtBatcher.
// Configure defaults in SqlStatementGeneratorConfig.
func (*DmlGeneratorTxtBatch) NewInsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		cfg.Log.Panic(err)
	}
	cfg.Log.Debug("Creating NewInsertGenerator")
	o := &SqlInsertTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.ColList = orderedMapValues(o.Log, o.TargetKeyCols, o.TargetOtherCols)
	o.sqlStmtTemplate = replaceTableTokens(`insert into <SCHEMA><SEPARATOR><TABLE> (<TGT-COLS>) values <VALUES>`, cfg)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TGT-COLS>", strings.Join(o.ColList, ","), 1)
	o.Log.Debug("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
	return o
}

func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.initCore(batchSize, len(o.ColList))
}

func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (bool, error) {
	return o.addValues("INSERT", values, len(o.ColList))
}

func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch { // if we have a new number of rows and need to generate SQL...
		allRows := make([]string, o.rowsInBatch)
		valIdx := 1
		for rowIdx := 0; rowIdx < o.rowsInBatch; rowIdx++ { // for each row in the batch...
			row := make([]string, len(o.ColList))
			for idy := range o.ColList { // for each field in the current row...
				row[idy] = o.Placeholder(valIdx)
				valIdx++
			}
			allRows[rowIdx] = fmt.Sprintf("(%v)", strings.Join(row, ","))
		}
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", strings.Join(allRows, ","), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	} // else we have the same batch size and can use cached SQL...
	o.Log.Trace("SQL batch INSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
