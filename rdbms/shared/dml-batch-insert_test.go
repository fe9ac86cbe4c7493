package shared

import (
	"testing"
)

func TestSqlInsert(t *testing.T) {
	dml := &DmlGeneratorTxtBatch{}
	o := dml.NewInsertGenerator(newTestGeneratorConfig(nil))

	// Single row.
	if !fillBatch(t, o, 1, 1, 3) {
		t.Fatal("the batch should be full")
	}
	expected := `insert into t2 (a,b,c) values (:1,:2,:3)`
	if got := o.GetStatement(); got != expected {
		t.Fatalf("expected:\n%v\ngot:\n%v", expected, got)
	}
	if len(o.GetValues()) != 3 {
		t.Fatalf("expected 3 values; got %v", len(o.GetValues()))
	}

	// Partial batch generates SQL for the rows supplied only.
	if fillBatch(t, o, 5, 2, 3) {
		t.Fatal("the batch should not be full")
	}
	expected = `insert into t2 (a,b,c) values (:1,:2,:3),(:4,:5,:6)`
	if got := o.GetStatement(); got != expected {
		t.Fatalf("expected:\n%v\ngot:\n%v", expected, got)
	}
	if len(o.GetValues()) != 6 {
		t.Fatalf("expected 6 values; got %v", len(o.GetValues()))
	}
}

func TestSqlInsertWithSchemaAndDollarPlaceholders(t *testing.T) {
	cfg := newTestGeneratorConfig(PlaceholderDollar)
	cfg.OutputSchema = "s1"
	o := (&DmlGeneratorTxtBatch{}).NewInsertGenerator(cfg)
	fillBatch(t, o, 2, 2, 3)
	expected := `insert into s1.t2 (a,b,c) values ($1,$2,$3),($4,$5,$6)`
	if got := o.GetStatement(); got != expected {
		t.Fatalf("expected:\n%v\ngot:\n%v", expected, got)
	}
}
