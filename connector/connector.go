package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// RowAction is returned by an AddRecordFunc to say what happens to the row just added.
type RowAction uint8

const (
	RowKeep RowAction = iota
	RowDiscard
	RowStop // discard the row and stop populating.
)

// BeforeFunc is called once, after the fields are known and before the first row.
type BeforeFunc func(ds *dataset.DataSet) error

// AddRecordFunc is called once per row after it has been appended to the dataset at index idx.
type AddRecordFunc func(idx int, rec dataset.Record) (RowAction, error)

// Params configures one use of a connector.
type Params struct {
	Log           logger.Logger
	BlockName     string
	ObjectName    string
	Querier       shared.Querier // nil for connectors that do not use a database.
	SQL           string
	Args          []interface{}
	Options       map[string]string
	LinkedDataSet *dataset.DataSet
}

func (p *Params) Option(name string, defaultValue string) string {
	if v, ok := p.Options[name]; ok && v != "" {
		return v
	}
	return defaultValue
}

// DataSetConnector populates a dataset from, or persists it to, an external store.
// The persist methods are called in the order PrePersist, InlinePersist (per row), PostPersist.
// CleanUp is always called, even after a failure.
type DataSetConnector interface {
	GetDataSetConnectorParams() []string
	Populate(ctx context.Context, p *Params, ds *dataset.DataSet, drv driver.Driver, before BeforeFunc, add AddRecordFunc) error
	PrePersist(ctx context.Context, p *Params, ds *dataset.DataSet, drv driver.Driver) error
	InlinePersist(ctx context.Context, p *Params, ds *dataset.DataSet, drv driver.Driver, rec dataset.Record) error
	PostPersist(ctx context.Context, p *Params, ds *dataset.DataSet, drv driver.Driver) error
	CleanUp(ctx context.Context, p *Params, ds *dataset.DataSet, drv driver.Driver) error
}

// ErrNotSupported is returned by connectors that only read or only write.
var ErrNotSupported = errors.New("operation not supported by connector")

// errStop ends population early without error.
var errStop = errors.New("stop populating")

// addRow appends rec to ds, runs add and undoes the append if the row is discarded.
// It returns errStop when population should end.
func addRow(ds *dataset.DataSet, rec dataset.Record, add AddRecordFunc) error {
	idx := ds.AddRecord(rec)
	if add == nil {
		return nil
	}
	action, err := add(idx, rec)
	if err != nil {
		ds.DeleteLastRecord()
		return err
	}
	switch action {
	case RowDiscard:
		ds.DeleteLastRecord()
	case RowStop:
		ds.DeleteLastRecord()
		return errStop
	}
	return nil
}

// Factory creates a DataSetConnector.
type Factory func() DataSetConnector

var (
	mu       sync.RWMutex
	registry = map[string]Factory{
		constants.ConnectorSql:     func() DataSetConnector { return &SqlConnector{} },
		constants.ConnectorCsv:     func() DataSetConnector { return &CsvConnector{} },
		constants.ConnectorDataSet: func() DataSetConnector { return &DataSetCopyConnector{} },
		constants.ConnectorLog:     func() DataSetConnector { return &LogConnector{} },
	}
)

// Register adds or replaces the factory for name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Get returns a new connector registered under name.
func Get(name string) (DataSetConnector, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", name)
	}
	return f(), nil
}

// Names returns the registered connector names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	retval := make([]string, 0, len(registry))
	for k := range registry {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}
