package connector

import (
	"context"
	"errors"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
)

// DataSetCopyConnector populates a dataset from another in-memory dataset (a linked source).
// Persisting copies the dataset into Params.LinkedDataSet.
type DataSetCopyConnector struct{}

func (c *DataSetCopyConnector) GetDataSetConnectorParams() []string {
	return nil
}

func (c *DataSetCopyConnector) Populate(ctx context.Context, p *Params, ds *dataset.DataSet, _ driver.Driver, before BeforeFunc, add AddRecordFunc) error {
	if p.LinkedDataSet == nil {
		return errors.New("dataset connector needs a linked dataset")
	}
	ds.SetFields(p.LinkedDataSet.Fields())
	if before != nil {
		if err := before(ds); err != nil {
			return err
		}
	}
	for _, rec := range p.LinkedDataSet.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addRow(ds, rec.Copy(), add); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (c *DataSetCopyConnector) PrePersist(_ context.Context, p *Params, ds *dataset.DataSet, _ driver.Driver) error {
	if p.LinkedDataSet == nil {
		return errors.New("dataset connector needs a linked dataset")
	}
	p.LinkedDataSet.SetFields(ds.Fields())
	return nil
}

func (c *DataSetCopyConnector) InlinePersist(_ context.Context, p *Params, _ *dataset.DataSet, _ driver.Driver, rec dataset.Record) error {
	p.LinkedDataSet.AddRecord(rec.Copy())
	return nil
}

func (c *DataSetCopyConnector) PostPersist(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	return nil
}

func (c *DataSetCopyConnector) CleanUp(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	return nil
}
