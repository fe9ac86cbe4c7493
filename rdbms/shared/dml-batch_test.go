package shared

import (
	"testing"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/etl-engine/logger"
)

func newTestGeneratorConfig(ph PlaceholderFunc) *SqlStatementGeneratorConfig {
	omKeys := ordered_map.NewOrderedMap()
	omKeys.Set("col1", "a")
	omKeys.Set("col2", "b")
	omCols := ordered_map.NewOrderedMap()
	omCols.Set("col3", "c")
	return &SqlStatementGeneratorConfig{
		Log:             logger.NewLogger("test", "error", false),
		OutputTable:     "t2",
		TargetKeyCols:   omKeys,
		TargetOtherCols: omCols,
		Placeholder:     ph,
	}
}

// fillBatch adds numRows rows of three values and returns the full flag of the last add.
func fillBatch(t *testing.T, o SqlStmtTxtBatcher, batchSize int, numRows int, numValues int) bool {
	o.InitBatch(batchSize)
	var full bool
	var err error
	for i := 0; i < numRows; i++ {
		row := make([]interface{}, numValues)
		for j := range row {
			row[j] = i*10 + j
		}
		full, err = o.AddValuesToBatch(row)
		if err != nil {
			t.Fatal(err)
		}
	}
	return full
}

func TestFixSqlStatementGeneratorConfig(t *testing.T) {
	cfg := &SqlStatementGeneratorConfig{}
	if err := FixSqlStatementGeneratorConfig(cfg); err == nil {
		t.Fatal("expected error for missing output table")
	}
	cfg.OutputTable = "x"
	cfg.OutputSchema = "s"
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.SchemaSeparator != "." {
		t.Fatalf("expected separator '.'; got %q", cfg.SchemaSeparator)
	}
	if cfg.Placeholder(3) != ":3" {
		t.Fatalf("expected default placeholder :3; got %q", cfg.Placeholder(3))
	}
	if cfg.TargetKeyCols == nil || cfg.TargetOtherCols == nil {
		t.Fatal("expected column maps to be created")
	}
}

func TestPlaceholders(t *testing.T) {
	cases := map[string]string{
		PlaceholderColon(2):    ":2",
		PlaceholderDollar(2):   "$2",
		PlaceholderAtP(2):      "@p2",
		PlaceholderQuestion(2): "?",
	}
	for got, expected := range cases {
		if got != expected {
			t.Fatalf("expected %q; got %q", expected, got)
		}
	}
}

func TestBatchRejectsExtraRows(t *testing.T) {
	dml := &DmlGeneratorTxtBatch{}
	o := dml.NewInsertGenerator(newTestGeneratorConfig(nil))
	if !fillBatch(t, o, 1, 1, 3) {
		t.Fatal("the batch should be full")
	}
	if _, err := o.AddValuesToBatch([]interface{}{1, 2, 3}); err == nil {
		t.Fatal("expected error adding a row to a full batch")
	}
	o.InitBatch(2)
	if _, err := o.AddValuesToBatch([]interface{}{1, 2}); err == nil {
		t.Fatal("expected error for wrong number of values")
	}
}
