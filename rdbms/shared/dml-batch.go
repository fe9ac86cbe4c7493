package shared

import (
	"fmt"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/etl-engine/logger"
)

// PlaceholderFunc renders the bind variable for the n-th (1-based) argument of a statement.
type PlaceholderFunc func(n int) string

func PlaceholderColon(n int) string    { return fmt.Sprintf(":%d", n) }
func PlaceholderDollar(n int) string   { return fmt.Sprintf("$%d", n) }
func PlaceholderAtP(n int) string      { return fmt.Sprintf("@p%d", n) }
func PlaceholderQuestion(_ int) string { return "?" }

type DmlGeneratorTxtBatch struct{}

type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	OutputSchema    string
	SchemaSeparator string
	OutputTable     string
	TargetKeyCols   *om.OrderedMap  // ordered map of: key = dataset field name; value = target table column name
	TargetOtherCols *om.OrderedMap  // ordered map of: key = dataset field name; value = target table column name
	Placeholder     PlaceholderFunc // defaults to PlaceholderColon.
	FromDual        string          // suffix required by some dialects to select literals, e.g. " from dual".
}

type sqlCoreCfg struct {
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
}

// initCore resets the batch counters and preallocates values for batchSize rows of numCols values.
func (c *sqlCoreCfg) initCore(batchSize int, numCols int) {
	c.batchSize = batchSize // statements are cached by rowsInBatch so there is nothing to reset here.
	c.rowsInBatch = 0
	c.sqlValues = make([]interface{}, 0, batchSize*numCols) // many values per row in a batch.
}

// addValues appends a row of values and returns whether the batch is full.
func (c *sqlCoreCfg) addValues(dml string, values []interface{}, expectedLen int) (batchIsFull bool, err error) {
	if c.rowsInBatch >= c.batchSize {
		return true, fmt.Errorf("no more rows allowed in %v batch", dml)
	}
	if len(values) != expectedLen {
		return false, fmt.Errorf("the number of values supplied (%v) does not match the number of %v columns (%v)", len(values), dml, expectedLen)
	}
	c.sqlValues = append(c.sqlValues, values...)
	c.rowsInBatch++                         // keep track of how close we are to the batch limit.
	return c.rowsInBatch >= c.batchSize, nil // if full the caller should exec SQL.
}

func (c *sqlCoreCfg) GetValues() []interface{} {
	return c.sqlValues
}

// getInlineSelectOfValues builds "select :1 as a, :2 as b union all select :3, :4" for numRows rows.
func getInlineSelectOfValues(numRows int, cols []string, ph PlaceholderFunc, fromDual string) *strings.Builder {
	allRows := strings.Builder{}
	valIdx := 1
	for rowIdx := 0; rowIdx < numRows; rowIdx++ { // for each row...
		row := make([]string, len(cols))
		for idy := range cols { // for each value in the current row...
			if rowIdx == 0 {
				row[idy] = fmt.Sprintf("%v as %v", ph(valIdx), cols[idy]) // include value as name.
			} else {
				row[idy] = ph(valIdx)
			}
			valIdx++
		}
		if rowIdx > 0 {
			allRows.WriteString(" union all ")
		}
		allRows.WriteString(fmt.Sprintf("select %v%v", strings.Join(row, ","), fromDual))
	}
	return &allRows
}

func orderedMapValues(log logger.Logger, maps ...*om.OrderedMap) []string {
	n := 0
	for _, m := range maps {
		n += m.Len()
	}
	retval := make([]string, n)
	idx := 0
	for _, m := range maps {
		iter := m.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			retval[idx] = fmt.Sprintf("%v", kv.Value)
			idx++
		}
	}
	log.Trace("ordered map values: ", retval)
	return retval
}

func replaceTableTokens(template string, cfg *SqlStatementGeneratorConfig) string {
	s := strings.Replace(template, "<SCHEMA>", cfg.OutputSchema, -1)
	s = strings.Replace(s, "<SEPARATOR>", cfg.SchemaSeparator, -1)
	return strings.Replace(s, "<TABLE>", cfg.OutputTable, -1)
}
