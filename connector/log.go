package connector

import (
	"context"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
)

// LogConnector is a writer that logs each persisted row as JSON.
type LogConnector struct {
	rows int
}

func (c *LogConnector) GetDataSetConnectorParams() []string {
	return nil
}

func (c *LogConnector) Populate(context.Context, *Params, *dataset.DataSet, driver.Driver, BeforeFunc, AddRecordFunc) error {
	return ErrNotSupported
}

func (c *LogConnector) PrePersist(_ context.Context, p *Params, ds *dataset.DataSet, _ driver.Driver) error {
	p.Log.Info(p.BlockName, " fields: ", ds.FieldNames())
	return nil
}

func (c *LogConnector) InlinePersist(_ context.Context, p *Params, _ *dataset.DataSet, _ driver.Driver, rec dataset.Record) error {
	b, err := rec.GetJson()
	if err != nil {
		return err
	}
	c.rows++
	p.Log.Info(p.BlockName, " row ", c.rows, ": ", string(b))
	return nil
}

func (c *LogConnector) PostPersist(_ context.Context, p *Params, _ *dataset.DataSet, _ driver.Driver) error {
	p.Log.Info(p.BlockName, " logged ", c.rows, " rows")
	return nil
}

func (c *LogConnector) CleanUp(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	return nil
}
