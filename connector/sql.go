package connector

import (
	"context"
	"errors"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// SqlConnector populates a dataset from a query.
// Its persist methods do nothing because load SQL is produced by the code generator.
type SqlConnector struct{}

func (c *SqlConnector) GetDataSetConnectorParams() []string {
	return nil
}

func (c *SqlConnector) Populate(ctx context.Context, p *Params, ds *dataset.DataSet, drv driver.Driver, before BeforeFunc, add AddRecordFunc) error {
	if p.Querier == nil {
		return errors.New("sql connector needs a connection")
	}
	h := &sqlPopulator{ds: ds, drv: drv, before: before, add: add}
	err := rdbms.SqlQuery(ctx, p.Log, p.Querier, p.SQL, p.Args, h)
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func (c *SqlConnector) PrePersist(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	return nil
}

func (c *SqlConnector) InlinePersist(context.Context, *Params, *dataset.DataSet, driver.Driver, dataset.Record) error {
	return nil
}

func (c *SqlConnector) PostPersist(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	return nil
}

func (c *SqlConnector) CleanUp(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	return nil
}

// sqlPopulator implements shared.SqlResultHandler.
type sqlPopulator struct {
	ds     *dataset.DataSet
	drv    driver.Driver
	before BeforeFunc
	add    AddRecordFunc
	names  []string
}

func (h *sqlPopulator) HandleHeader(columns []shared.ColumnType) error {
	fields := make([]dataset.Field, len(columns))
	h.names = make([]string, len(columns))
	for idx, c := range columns {
		f := dataset.Field{Name: c.Name(), DatabaseTypeName: c.DatabaseTypeName()}
		if h.drv != nil {
			f.Type = h.drv.SqlType(f.DatabaseTypeName)
		}
		if n, ok := c.Nullable(); ok {
			f.Nullable = n
		}
		if l, ok := c.Length(); ok {
			f.Length = l
		}
		if p, s, ok := c.DecimalSize(); ok {
			f.Precision, f.Scale = p, s
		}
		fields[idx] = f
		h.names[idx] = f.Name
	}
	h.ds.SetFields(fields)
	if h.before != nil {
		return h.before(h.ds)
	}
	return nil
}

func (h *sqlPopulator) HandleRow(values []interface{}) error {
	rec, err := dataset.NewRecordFromValues(h.names, values)
	if err != nil {
		return err
	}
	return addRow(h.ds, rec, h.add)
}
