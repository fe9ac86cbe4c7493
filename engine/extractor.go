package engine

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/relloyd/etl-engine/connector"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/scenario"
	"github.com/relloyd/etl-engine/stats"
	"github.com/relloyd/etl-engine/task"
)

// RowSink receives rows forwarded by a streamed extract.
// The row is never kept in the source dataset.
type RowSink func(ctx context.Context, fields []dataset.Field, rec dataset.Record) error

// Extractor populates the datasets of a scenario's sources.
type Extractor struct {
	ec *execContext
}

func newExtractor(ec *execContext) *Extractor {
	return &Extractor{ec: ec}
}

// isStreamed returns true if rows of src are pulled by its destinations during the load.
// Every enabled destination bound to src must stream, else src is extracted up front
// and streaming destinations load from the buffered rows.
func (x *Extractor) isStreamed(src *scenario.Source) bool {
	if src.Mandatory || !x.ec.scenario.Action.Includes(scenario.ActionLoad) {
		return false
	}
	n := 0
	for _, d := range x.ec.scenario.DestinationsFor(src) {
		if !d.IsEnabled() {
			continue
		}
		if !d.Stream {
			return false
		}
		n++
	}
	return n > 0
}

// ExtractMandatory extracts the mandatory sources one at a time, ignoring the scenario action.
func (x *Extractor) ExtractMandatory(ctx context.Context) error {
	for _, src := range x.ec.scenario.SourceList() {
		if !src.Mandatory || !src.IsEnabled() {
			continue
		}
		if _, ok := x.ec.arena.extractedDataSet(src.Name); ok {
			continue
		}
		if _, err := x.extract(ctx, src, x.ec.branch, nil); err != nil {
			return err
		}
	}
	return nil
}

// Extract populates every enabled source in declaration order.
// Sources already extracted are skipped, streamed sources are left to the loader
// and a stub waits for the parallel extracts submitted before it.
func (x *Extractor) Extract(ctx context.Context) error {
	s := x.ec.scenario
	pool := newWorkerPool(ctx, x.ec.parallelism(s.Parallel.Sources))
	for _, src := range s.SourceList() {
		if pool.IsTerminated() {
			break
		}
		if src.IsStub() {
			x.ec.log.Debug("source ", src.Name, " is a barrier, waiting for parallel extracts")
			if err := pool.WaitUntilDone(); err != nil {
				return err
			}
			continue
		}
		if !src.IsEnabled() {
			continue
		}
		if _, ok := x.ec.arena.extractedDataSet(src.Name); ok {
			continue
		}
		if x.isStreamed(src) {
			x.ec.log.Debug("source ", src.Name, " will be streamed to its destination")
			continue
		}
		src := src
		if src.IsParallel() && pool.Size() > 1 {
			branch := x.ec.branchFor("source:" + src.Name)
			pool.Submit(func(ctx context.Context) error {
				_, err := x.extract(ctx, src, branch, nil)
				return err
			})
			continue
		}
		if _, err := x.extract(ctx, src, x.ec.branch, nil); err != nil {
			pool.Terminate()
			_ = pool.WaitUntilDone()
			return err
		}
	}
	if err := pool.WaitUntilDone(); err != nil {
		return err
	}
	return ctx.Err()
}

// extract populates the dataset of src using the transactions of branch.
// When sink is set every row is forwarded to it instead of being kept, using a
// dataset of its own, and src is not marked as extracted.
// An error ignored by the source's exception policy gives a nil dataset and no error.
func (x *Extractor) extract(ctx context.Context, src *scenario.Source, branch string, sink RowSink) (*dataset.DataSet, error) {
	ec := x.ec
	log := ec.log.WithField("source", src.Name)
	ds := ec.arena.dataset(src.Name)
	markExtracted := func() {
		if sink == nil {
			ec.arena.markExtracted(src.Name)
		}
	}
	if sink != nil { // if rows are forwarded they are never kept...
		ds = dataset.New(src.Name)
	}
	ds.ClearData()
	ds.SetEncoded(src.Encoded)
	vars := NewVariableStore(ec.vars)
	if err := ec.resolveVariables(ctx, vars, scenario.VariableList(src.Variables), src.ConnectionName, branch); err != nil {
		return nil, err
	}
	if ok, err := ec.conditionMet(src.Condition, vars); err != nil {
		return nil, pkgerrors.Wrapf(err, "source %v", src.Name)
	} else if !ok {
		log.Info("condition not met, skipping source ", src.Name)
		markExtracted()
		return ds, nil
	}
	watcher := ec.x.stats.AddBlockWatcher("source:" + src.Name)
	watcher.StartWatching()
	defer watcher.StopWatching()
	var conn *Connection
	var drv driver.Driver
	var err error
	if src.ConnectionName != "" {
		if conn, err = ec.connection(ctx, src.ConnectionName, ec.scenario.DriverFor(src), branch); err != nil {
			return nil, err
		}
		drv = conn.Driver
	} else if drv, err = ec.defaultDriver(ec.scenario.DriverFor(src)); err != nil {
		return nil, err
	}
	tasks, err := task.NewExecutor(src.Tasks)
	if err != nil {
		return nil, err
	}
	newContext := ec.taskContextFunc(ctx, src, ds, vars, branch)
	err = x.run(ctx, log, src, ds, drv, conn, vars, tasks, newContext, watcher, sink)
	if err != nil {
		if err = x.handleException(ctx, log, src, drv, err); err != nil {
			return nil, err
		}
		ds.ClearData()
		markExtracted()
		return nil, nil
	}
	markExtracted()
	log.Info(src.Name, " extracted ", watcher.RowCount(), " rows")
	return ds, nil
}

func (x *Extractor) run(ctx context.Context, log logger.Logger, src *scenario.Source, ds *dataset.DataSet, drv driver.Driver, conn *Connection, vars *VariableStore, tasks *task.Executor, newContext task.ContextFunc, watcher *stats.BlockWatcher, sink RowSink) error {
	for _, scope := range []scenario.TaskScope{scenario.TaskScopeBeforeEtl, scenario.TaskScopePre} {
		if ok, err := runTasks(ctx, log, tasks, scope, newContext, ds); err != nil || !ok {
			return err
		}
	}
	if err := x.populate(ctx, log, src, ds, drv, conn, vars, tasks, newContext, watcher, sink); err != nil {
		return err
	}
	_, err := runTasks(ctx, log, tasks, scenario.TaskScopePost, newContext, ds)
	return err
}

// populate drives the reader connector of src through the per-row pipeline:
// inline tasks, the secondary writer, then the sink.
func (x *Extractor) populate(ctx context.Context, log logger.Logger, src *scenario.Source, ds *dataset.DataSet, drv driver.Driver, conn *Connection, vars *VariableStore, tasks *task.Executor, newContext task.ContextFunc, watcher *stats.BlockWatcher, sink RowSink) (err error) {
	ec := x.ec
	p := &connector.Params{Log: log, BlockName: src.Name, Options: src.ReaderParams}
	readerName := src.Reader
	switch {
	case src.LinkedSourceName != "":
		readerName = constants.ConnectorDataSet
		p.LinkedDataSet = ec.arena.dataset(src.LinkedSourceName)
	case readerName == "" && src.SQL != "":
		readerName = constants.ConnectorSql
	case readerName == "": // if the source is driven by its tasks...
		return nil
	}
	if readerName != constants.ConnectorSql && ec.onPopulate == scenario.PolicySkip {
		log.Info("populate policy is SKIP, not reading ", readerName, " source ", src.Name)
		return nil
	}
	if src.SQL != "" {
		if conn == nil {
			return pkgerrors.Errorf("source %v has SQL but no connection", src.Name)
		}
		p.Querier = conn
		if p.SQL, p.Args, err = ec.bind(vars, conn, vars.Substitute(src.SQL), src.Binds, nil); err != nil {
			return err
		}
	}
	reader, err := connector.Get(readerName)
	if err != nil {
		return err
	}
	var writer connector.DataSetConnector
	wp := &connector.Params{Log: log, BlockName: src.Name, ObjectName: src.Name, Querier: p.Querier, Options: src.WriterParams}
	if src.Writer != "" && ec.onSave != scenario.PolicySkip {
		if writer, err = connector.Get(src.Writer); err != nil {
			return err
		}
		defer func() {
			if cerr := writer.CleanUp(ctx, wp, ds, drv); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}
	before := func(ds *dataset.DataSet) error {
		if writer != nil {
			return writer.PrePersist(ctx, wp, ds, drv)
		}
		return nil
	}
	inline := tasks.Has(scenario.TaskScopeInline)
	add := func(idx int, rec dataset.Record) (connector.RowAction, error) {
		if inline {
			r, err := tasks.Run(ctx, scenario.TaskScopeInline, newContext, rec)
			if err != nil {
				return connector.RowDiscard, err
			}
			switch r.Code {
			case task.Reject:
				return connector.RowDiscard, nil
			case task.Stop:
				log.Info("stopped by inline task: ", r.Message)
				return connector.RowStop, nil
			}
		}
		if writer != nil {
			if err := writer.InlinePersist(ctx, wp, ds, drv, rec); err != nil {
				return connector.RowDiscard, err
			}
		}
		watcher.AddRows(1)
		watcher.SetBuffered(ds.Len())
		if sink != nil {
			if err := sink(ctx, ds.Fields(), rec); err != nil {
				return connector.RowDiscard, err
			}
			return connector.RowDiscard, nil // forwarded.
		}
		return connector.RowKeep, nil
	}
	if err = reader.Populate(ctx, p, ds, drv, before, add); err != nil {
		return err
	}
	if writer != nil {
		return writer.PostPersist(ctx, wp, ds, drv)
	}
	return nil
}

// handleException applies the exception policy of src to err.
// HALT and cancellation are never ignored.
func (x *Extractor) handleException(ctx context.Context, log logger.Logger, src *scenario.Source, drv driver.Driver, err error) error {
	var halt *task.HaltError
	if errors.As(err, &halt) || ctx.Err() != nil {
		return err
	}
	if src.Exception.Handle(err, drv.IsParseError(err)) == scenario.ExceptionIgnore {
		log.Warn("ignoring error extracting ", src.Name, ": ", err)
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Scenario: x.ec.scenario.Name, Block: src.Name, LastCode: src.SQL, FileName: x.ec.scenario.ScriptName, Err: err}
}
