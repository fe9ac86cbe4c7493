package connector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

func newTestParams(t *testing.T) *Params {
	log := logger.NewLogger("connector test", "error", false)
	return &Params{Log: log, BlockName: "test"}
}

func TestSqlConnectorPopulate(t *testing.T) {
	conn := shared.NewMockConnection("mock")
	conn.AddQueryResult("from customers", &shared.MockResultSet{
		Columns: []string{"ID", "NAME"},
		Types:   []string{"INTEGER", "VARCHAR"},
		Rows:    [][]interface{}{{1, "a"}, {2, "b"}, {3, "c"}, {4, "d"}},
	})
	drv, err := driver.Get("mock")
	require.NoError(t, err)
	p := newTestParams(t)
	p.Querier = conn
	p.SQL = "select id, name from customers"
	ds := dataset.New("customers")
	beforeCalled := 0
	before := func(ds *dataset.DataSet) error {
		beforeCalled++
		assert.Equal(t, []string{"ID", "NAME"}, ds.FieldNames())
		return nil
	}
	add := func(idx int, rec dataset.Record) (RowAction, error) {
		v, _ := rec.GetData("ID")
		switch v {
		case 2:
			return RowDiscard, nil
		case 4:
			return RowStop, nil
		}
		return RowKeep, nil
	}
	c, err := Get("sql")
	require.NoError(t, err)
	require.NoError(t, c.Populate(context.Background(), p, ds, drv, before, add))
	assert.Equal(t, 1, beforeCalled)
	require.Equal(t, 2, ds.Len())
	rec, _ := ds.Record(1)
	v, _ := rec.GetData("NAME")
	assert.Equal(t, "c", v)
	f, ok := ds.Field("NAME")
	require.True(t, ok)
	assert.Equal(t, dataset.TypeString, f.Type)
}

func TestSqlConnectorNeedsConnection(t *testing.T) {
	c := &SqlConnector{}
	err := c.Populate(context.Background(), newTestParams(t), dataset.New("x"), nil, nil, nil)
	assert.Error(t, err)
}

func TestCsvConnectorRoundTrip(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "out.csv")
	p := newTestParams(t)
	p.ObjectName = fileName
	src := dataset.New("src")
	src.SetFields([]dataset.Field{{Name: "ID"}, {Name: "NAME"}})
	for _, row := range [][]interface{}{{"1", "one"}, {"2", "two"}} {
		rec, err := dataset.NewRecordFromValues([]string{"ID", "NAME"}, row)
		require.NoError(t, err)
		src.AddRecord(rec)
	}
	w := &CsvConnector{}
	ctx := context.Background()
	require.NoError(t, w.PrePersist(ctx, p, src, nil))
	for _, rec := range src.Records() {
		require.NoError(t, w.InlinePersist(ctx, p, src, nil, rec))
	}
	require.NoError(t, w.PostPersist(ctx, p, src, nil))
	require.NoError(t, w.CleanUp(ctx, p, src, nil))

	r := &CsvConnector{}
	dst := dataset.New("dst")
	require.NoError(t, r.Populate(ctx, p, dst, nil, nil, nil))
	assert.Equal(t, []string{"ID", "NAME"}, dst.FieldNames())
	require.Equal(t, 2, dst.Len())
	rec, _ := dst.Record(1)
	assert.Equal(t, "two", rec.GetDataAsString("NAME"))
}

func TestCsvConnectorWithoutHeader(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "noheader.csv")
	p := newTestParams(t)
	p.ObjectName = fileName
	p.Options = map[string]string{CsvParamHeader: "false", CsvParamDelimiter: "|"}
	src := dataset.New("src")
	src.SetFields([]dataset.Field{{Name: "A"}, {Name: "B"}})
	rec, err := dataset.NewRecordFromValues([]string{"A", "B"}, []interface{}{"x", "y"})
	require.NoError(t, err)
	src.AddRecord(rec)
	w := &CsvConnector{}
	ctx := context.Background()
	require.NoError(t, w.PrePersist(ctx, p, src, nil))
	require.NoError(t, w.InlinePersist(ctx, p, src, nil, rec))
	require.NoError(t, w.PostPersist(ctx, p, src, nil))

	dst := dataset.New("dst")
	require.NoError(t, (&CsvConnector{}).Populate(ctx, p, dst, nil, nil, nil))
	assert.Equal(t, []string{"COL1", "COL2"}, dst.FieldNames())
	require.Equal(t, 1, dst.Len())
	got, _ := dst.Record(0)
	assert.Equal(t, "y", got.GetDataAsString("COL2"))
}

func TestDataSetCopyConnector(t *testing.T) {
	linked := dataset.New("linked")
	linked.SetFields([]dataset.Field{{Name: "K"}})
	for _, k := range []string{"a", "b", "c"} {
		rec, _ := dataset.NewRecordFromValues([]string{"K"}, []interface{}{k})
		linked.AddRecord(rec)
	}
	p := newTestParams(t)
	p.LinkedDataSet = linked
	ds := dataset.New("copy")
	c := &DataSetCopyConnector{}
	require.NoError(t, c.Populate(context.Background(), p, ds, nil, nil, func(idx int, rec dataset.Record) (RowAction, error) {
		if rec.GetDataAsString("K") == "b" {
			return RowDiscard, nil
		}
		return RowKeep, nil
	}))
	require.Equal(t, 2, ds.Len())
	// the copy must not share records with the linked dataset.
	rec, _ := ds.Record(0)
	rec.SetData("K", "changed")
	orig, _ := linked.Record(0)
	assert.Equal(t, "a", orig.GetDataAsString("K"))

	err := c.Populate(context.Background(), newTestParams(t), dataset.New("x"), nil, nil, nil)
	assert.Error(t, err)
}

func TestLogConnectorIsWriteOnly(t *testing.T) {
	c := &LogConnector{}
	p := newTestParams(t)
	ds := dataset.New("log")
	assert.ErrorIs(t, c.Populate(context.Background(), p, ds, nil, nil, nil), ErrNotSupported)
	rec, _ := dataset.NewRecordFromValues([]string{"A"}, []interface{}{1})
	require.NoError(t, c.PrePersist(context.Background(), p, ds, nil))
	require.NoError(t, c.InlinePersist(context.Background(), p, ds, nil, rec))
	require.NoError(t, c.PostPersist(context.Background(), p, ds, nil))
	assert.Equal(t, 1, c.rows)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"csv", "dataset", "log", "sql"}, Names())
	_, err := Get("nope")
	assert.Error(t, err)
	Register("custom", func() DataSetConnector { return &LogConnector{} })
	defer func() {
		mu.Lock()
		delete(registry, "custom")
		mu.Unlock()
	}()
	c, err := Get("custom")
	require.NoError(t, err)
	assert.IsType(t, &LogConnector{}, c)
}
