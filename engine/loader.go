package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/relloyd/etl-engine/codegen"
	"github.com/relloyd/etl-engine/connector"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	h "github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
	"github.com/relloyd/etl-engine/stats"
	"github.com/relloyd/etl-engine/task"
)

// Loader persists the datasets of a scenario's destinations.
type Loader struct {
	ec        *execContext
	extractor *Extractor
	loadIndex int
	factory   codegen.Factory
}

func newLoader(ec *execContext, extractor *Extractor, loadIndex int) (*Loader, error) {
	f, err := codegen.Get(ec.scenario.CodeGenName)
	if err != nil {
		return nil, err
	}
	return &Loader{ec: ec, extractor: extractor, loadIndex: loadIndex, factory: f}, nil
}

// Load groups the enabled destinations by EtlUnit and loads each group,
// concurrently when the scenario asks for parallel connections.
func (l *Loader) Load(ctx context.Context) error {
	s := l.ec.scenario
	var dests []*scenario.Destination
	for _, d := range s.DestinationList() {
		if d.IsEnabled() {
			dests = append(dests, d)
		}
	}
	units, groups := scenario.GroupDestinations(dests, func(d *scenario.Destination) string {
		return s.DriverFor(d)
	})
	l.ec.log.Debug("load ", l.loadIndex, " has ", len(units), " connection group(s)")
	if s.Parallel.Connections && len(units) > 1 {
		pool := newWorkerPool(ctx, len(units))
		for _, u := range units {
			if pool.IsTerminated() {
				break
			}
			u := u
			pool.Submit(func(ctx context.Context) error {
				return l.loadDestinationsForConnection(ctx, u, groups[u], l.ec.branchFor("unit:"+u.String()))
			})
		}
		if err := pool.WaitUntilDone(); err != nil {
			return err
		}
		return ctx.Err()
	}
	for _, u := range units {
		if err := l.loadDestinationsForConnection(ctx, u, groups[u], l.ec.branch); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// loadDestinationsForConnection loads a group of destinations that share one connection and driver.
// GLOBAL destinations accumulate code in one CodeGen which is executed at the end of the group
// or before the next SINGLE destination.
func (l *Loader) loadDestinationsForConnection(ctx context.Context, u scenario.EtlUnit, dests []*scenario.Destination, branch string) (err error) {
	ec := l.ec
	log := ec.log.WithField("connection", u.ConnectionName)
	var conn *Connection
	var drv driver.Driver
	if u.ConnectionName != "" {
		if conn, err = ec.connection(ctx, u.ConnectionName, u.DriverName, branch); err != nil {
			return err
		}
		drv = conn.Driver
	} else if drv, err = ec.defaultDriver(u.DriverName); err != nil {
		return err
	}
	cg := l.factory(log, drv)
	pool := newWorkerPool(ctx, ec.parallelism(ec.scenario.Parallel.Destinations))
	defer func() {
		if err != nil {
			pool.Terminate()
			_ = pool.WaitUntilDone()
			l.cleanUpOnException(log, u, drv, cg)
			return
		}
		err = l.cleanUp(ctx, u, drv, cg, conn)
	}()
	turn := make(chan struct{}) // closed once the previous destination has prepared its code.
	close(turn)
	for _, d := range dests {
		if pool.IsTerminated() {
			break
		}
		if d.IsWait() {
			log.Debug("destination ", d.Name, " is a barrier, waiting for parallel loads")
			if err = pool.WaitUntilDone(); err != nil {
				return err
			}
			continue
		}
		if d.IsSingle() && cg.HasPending() {
			if err = pool.WaitUntilDone(); err != nil {
				return err
			}
			log.Debug("flushing batched code before single destination ", d.Name)
			if err = l.flush(ctx, cg, conn); err != nil {
				return err
			}
		}
		d := d
		o := &orderedPrepare{CodeGen: cg, prev: turn, done: make(chan struct{})}
		turn = o.done
		if d.IsParallel() && drv.SupportsParallelLoad() && pool.Size() > 1 {
			dbranch := branch + "/destination:" + d.Name
			pool.Submit(func(ctx context.Context) error {
				defer o.release()
				return l.loadDestination(ctx, d, o, dbranch)
			})
			continue
		}
		err = l.loadDestination(ctx, d, o, branch)
		o.release()
		if err != nil {
			return err
		}
	}
	if err = pool.WaitUntilDone(); err != nil {
		return err
	}
	if cg.HasPending() {
		if err = l.flush(ctx, cg, conn); err != nil {
			return err
		}
	}
	ec.arena.clearDeferred()
	return ctx.Err()
}

// orderedPrepare lets destinations of a group load in parallel while their code
// is added to the group's CodeGen in declaration order.
type orderedPrepare struct {
	codegen.CodeGen
	prev <-chan struct{}
	done chan struct{}
	once sync.Once
}

func (o *orderedPrepare) Prepare(ctx context.Context, p *codegen.Params) error {
	select {
	case <-o.prev:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer o.release()
	return o.CodeGen.Prepare(ctx, p)
}

// release lets the next destination prepare. It is safe to call more than once.
func (o *orderedPrepare) release() {
	o.once.Do(func() { close(o.done) })
}

// flush assembles and executes the code prepared so far.
func (l *Loader) flush(ctx context.Context, cg codegen.CodeGen, conn *Connection) error {
	if conn == nil {
		return errors.New("generated code cannot be executed without a connection")
	}
	code, err := cg.AssembleCode()
	if err != nil {
		return err
	}
	return l.execute(ctx, cg, conn, code)
}

func (l *Loader) execute(ctx context.Context, cg codegen.CodeGen, q shared.Querier, code []codegen.Code) error {
	if err := cg.Execute(ctx, q, code); err != nil {
		block := ""
		if n := cg.LastLine(); n > 0 && n <= len(code) {
			block = strings.Join(code[n-1].Destinations, ",")
		}
		return &ExecutionError{
			Scenario: l.ec.scenario.Name,
			Block:    block,
			LastCode: cg.LastCode(),
			LastLine: cg.LastLine(),
			FileName: l.ec.scenario.ScriptName,
			Err:      err,
		}
	}
	return nil
}

// cleanUp releases generated objects once the group has loaded.
func (l *Loader) cleanUp(ctx context.Context, u scenario.EtlUnit, drv driver.Driver, cg codegen.CodeGen, conn *Connection) error {
	if conn == nil {
		return nil
	}
	if drv.RequiresDdlConnection() {
		return l.ec.x.monitor.Autonomous(ctx, u.ConnectionName, func(q shared.Querier) error {
			return cg.CleanUp(ctx, q)
		})
	}
	return cg.CleanUp(ctx, conn)
}

// cleanUpOnException runs on its own committed transaction because the group's transaction will be rolled back.
func (l *Loader) cleanUpOnException(log logger.Logger, u scenario.EtlUnit, drv driver.Driver, cg codegen.CodeGen) {
	if u.ConnectionName == "" {
		return
	}
	ctx := context.Background()
	err := l.ec.x.monitor.Autonomous(ctx, u.ConnectionName, func(q shared.Querier) error {
		return cg.CleanUpOnException(ctx, q)
	})
	if err != nil {
		log.Warn("cleanup after error failed: ", err)
	}
}

// loadDestination loads one destination. The bound source's usage counter is
// released and the destination's cache cleared whatever the outcome.
func (l *Loader) loadDestination(ctx context.Context, d *scenario.Destination, cg codegen.CodeGen, branch string) (err error) {
	ec := l.ec
	log := ec.log.WithField("destination", d.Name)
	src, hasSource := ec.scenario.SourceFor(d)
	lobsStaged := false
	defer func() {
		if hasSource {
			l.release(src, lobsStaged)
		}
		l.clearCache(log, d)
	}()
	vars := NewVariableStore(ec.vars)
	if err = ec.resolveVariables(ctx, vars, scenario.VariableList(d.Variables), d.ConnectionName, branch); err != nil {
		return err
	}
	if ok, err := ec.conditionMet(d.Condition, vars); err != nil {
		return pkgerrors.Wrapf(err, "destination %v", d.Name)
	} else if !ok {
		log.Info("condition not met, skipping destination ", d.Name)
		return nil
	}
	watcher := ec.x.stats.AddBlockWatcher("destination:" + d.Name)
	watcher.StartWatching()
	defer watcher.StopWatching()
	var conn *Connection
	var drv driver.Driver
	if d.ConnectionName != "" {
		if conn, err = ec.connection(ctx, d.ConnectionName, ec.scenario.DriverFor(d), branch); err != nil {
			return err
		}
		drv = conn.Driver
	} else if drv, err = ec.defaultDriver(ec.scenario.DriverFor(d)); err != nil {
		return err
	}
	savepoint := ""
	if conn != nil && d.Exception != nil && d.Exception.Savepoint {
		savepoint = "etl_" + strconv.Itoa(l.loadIndex) + "_" + h.SanitiseName(d.Name)
		if sp := drv.SavepointSQL(savepoint); sp != "" {
			if _, err = rdbms.SqlExec(ctx, log, conn, sp); err != nil {
				return err
			}
		} else {
			log.Warn("driver ", drv.Name(), " has no savepoints, an ignored error in ", d.Name, " will not be undone")
			savepoint = ""
		}
	}
	defer func() {
		if err != nil {
			err = l.handleException(ctx, log, d, drv, conn, savepoint, err)
		}
	}()
	ds := dataset.New(d.Name)
	tasks, err := task.NewExecutor(d.Tasks)
	if err != nil {
		return err
	}
	newContext := ec.taskContextFunc(ctx, d, ds, vars, branch)
	if ok, err := runTasks(ctx, log, tasks, scenario.TaskScopePre, newContext, ds); err != nil || !ok {
		return err
	}
	if d.Stream && hasSource && l.extractor.isStreamed(src) {
		if err = l.stream(ctx, log, d, src, vars, conn, drv, cg, watcher, branch); err != nil {
			return err
		}
		_, err = runTasks(ctx, log, tasks, scenario.TaskScopePost, newContext, ds)
		return err
	}
	if hasSource {
		if err = l.populate(ctx, src, ds, branch); err != nil {
			return err
		}
	}
	watcher.AddRows(int64(ds.Len()))
	watcher.SetBuffered(ds.Len())
	switch {
	case d.Writer != "":
		if ok, err := runTasks(ctx, log, tasks, scenario.TaskScopeBeforeEtl, newContext, ds); err != nil || !ok {
			return err
		}
		if err = l.persist(ctx, log, d, ds, drv, conn); err != nil {
			return err
		}
	case d.IsSingle():
		if ok, err := runTasks(ctx, log, tasks, scenario.TaskScopeBeforeEtl, newContext, ds); err != nil || !ok {
			return err
		}
		single := l.factory(log, drv)
		lobsStaged, err = l.prepareAndExecute(ctx, log, d, ds, vars, conn, drv, single, true)
		cg.Absorb(single)
		if err != nil {
			return err
		}
	default:
		if d.LoadAction != scenario.LoadDelete && conn != nil {
			if lobsStaged, err = l.loadBlobs(ctx, d, ds, drv, conn); err != nil {
				return err
			}
		}
		if ok, err := runTasks(ctx, log, tasks, scenario.TaskScopeBeforeEtl, newContext, ds); err != nil || !ok {
			return err
		}
		if err = cg.Prepare(ctx, l.params(log, d, ds, vars, conn, drv, true)); err != nil {
			return err
		}
	}
	_, err = runTasks(ctx, log, tasks, scenario.TaskScopePost, newContext, ds)
	return err
}

// populate copies the bound source's dataset, extracting it first if this
// execution has not extracted it, e.g. for a LOAD-only action.
// Destinations sharing the source extract it once.
func (l *Loader) populate(ctx context.Context, src *scenario.Source, ds *dataset.DataSet, branch string) error {
	srcDs, ok := l.ec.arena.extractedDataSet(src.Name)
	if !ok {
		var err error
		if srcDs, err = l.ec.arena.extractOnce(src.Name, func() (*dataset.DataSet, error) {
			return l.extractor.extract(ctx, src, branch, nil)
		}); err != nil {
			return err
		}
	}
	if srcDs != nil {
		ds.CopyFrom(srcDs)
	}
	return nil
}

// stream pulls rows of src through the extractor and loads each one as it arrives.
// Rows are read on a transaction of their own so the load can write while the cursor is open.
func (l *Loader) stream(ctx context.Context, log logger.Logger, d *scenario.Destination, src *scenario.Source, vars *VariableStore, conn *Connection, drv driver.Driver, cg codegen.CodeGen, watcher *stats.BlockWatcher, branch string) error {
	rows := 0
	sink := func(ctx context.Context, fields []dataset.Field, rec dataset.Record) error {
		row := dataset.New(d.Name)
		row.SetFields(fields)
		row.AddRecord(rec.Copy())
		single := l.factory(log, drv)
		_, err := l.prepareAndExecute(ctx, log, d, row, vars, conn, drv, single, false)
		cg.Absorb(single)
		if err != nil {
			return err
		}
		rows++
		watcher.AddRows(1)
		watcher.SetBuffered(row.Len())
		return nil
	}
	if _, err := l.extractor.extract(ctx, src, branch+"/stream:"+src.Name, sink); err != nil {
		return err
	}
	log.Info(d.Name, " streamed ", rows, " rows")
	return l.runFragments(ctx, log, d, vars, conn, rows > 0)
}

// runFragments executes the then/else/after SQL of a streamed destination once the stream has ended.
func (l *Loader) runFragments(ctx context.Context, log logger.Logger, d *scenario.Destination, vars *VariableStore, conn *Connection, loaded bool) error {
	var stmts []string
	if loaded && d.Then != "" {
		stmts = append(stmts, d.Then)
	} else if !loaded && d.Else != "" {
		stmts = append(stmts, d.Else)
	}
	if d.After != "" {
		stmts = append(stmts, d.After)
	}
	if len(stmts) > 0 && conn == nil {
		return pkgerrors.Errorf("destination %v has conditional SQL but no connection", d.Name)
	}
	for _, s := range stmts {
		if _, err := rdbms.SqlExec(ctx, log, conn, vars.Substitute(s)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) params(log logger.Logger, d *scenario.Destination, ds *dataset.DataSet, vars *VariableStore, conn *Connection, drv driver.Driver, withFragments bool) *codegen.Params {
	p := &codegen.Params{Log: log, Destination: d, DataSet: ds, Driver: drv}
	if conn != nil {
		p.Dml = conn.DmlGenerator()
	}
	if withFragments {
		p.Then = vars.Substitute(d.Then)
		p.Else = vars.Substitute(d.Else)
		p.After = vars.Substitute(d.After)
	}
	return p
}

// prepareAndExecute runs the code of one destination as a unit of its own.
// cg.CleanUp always runs.
func (l *Loader) prepareAndExecute(ctx context.Context, log logger.Logger, d *scenario.Destination, ds *dataset.DataSet, vars *VariableStore, conn *Connection, drv driver.Driver, cg codegen.CodeGen, withFragments bool) (staged bool, err error) {
	if conn == nil {
		return false, pkgerrors.Errorf("destination %v has no connection", d.Name)
	}
	run := func(q shared.Querier) (err error) {
		defer func() {
			if cerr := cg.CleanUp(ctx, q); cerr != nil && err == nil {
				err = cerr
			}
		}()
		if ds.HasLobs() && !drv.SupportsParametersInBlocks() {
			if staged, err = l.loadBlobs(ctx, d, ds, drv, q); err != nil {
				return err
			}
		}
		if err = cg.Prepare(ctx, l.params(log, d, ds, vars, conn, drv, withFragments)); err != nil {
			return err
		}
		code, err := cg.AssembleCode()
		if err != nil {
			return err
		}
		return l.execute(ctx, cg, q, code)
	}
	if d.Type == scenario.DestinationDDL && drv.RequiresDdlConnection() {
		return staged, l.ec.x.monitor.Autonomous(ctx, d.ConnectionName, run)
	}
	return staged, run(conn)
}

// loadBlobs stages the large object values of ds when the driver supports callable statements.
// Values are keyed by the destination's load key or, without one, the row ordinal.
func (l *Loader) loadBlobs(ctx context.Context, d *scenario.Destination, ds *dataset.DataSet, drv driver.Driver, q shared.Querier) (bool, error) {
	lobs := ds.LobFields()
	if len(lobs) == 0 || !drv.SupportsCallable() || q == nil {
		return false, nil
	}
	for idx, rec := range ds.Records() {
		key := strconv.Itoa(idx + 1)
		if len(d.LoadKey) > 0 {
			parts := make([]string, len(d.LoadKey))
			for i, k := range d.LoadKey {
				parts[i] = rec.GetDataAsString(k)
			}
			key = strings.Join(parts, "|")
		}
		for _, f := range lobs {
			k := driver.LobKey{Destination: d.Name, Field: f.Name, Key: key}
			v, _ := rec.GetData(f.Name)
			var err error
			if f.Type == dataset.TypeBlob {
				b, ok := v.([]byte)
				if !ok {
					b = []byte(h.GetStringFromInterface(v, true))
				}
				err = drv.StageBlob(ctx, q, k, b)
			} else {
				err = drv.StageClob(ctx, q, k, h.GetStringFromInterface(v, true))
			}
			if err != nil {
				return false, pkgerrors.Wrapf(err, "unable to stage %v of %v", f.Name, d.Name)
			}
		}
	}
	return true, nil
}

// persist writes ds through the destination's writer connector.
func (l *Loader) persist(ctx context.Context, log logger.Logger, d *scenario.Destination, ds *dataset.DataSet, drv driver.Driver, conn *Connection) (err error) {
	if l.ec.onPersist == scenario.PolicySkip {
		log.Info("persist policy is SKIP, not writing ", d.Name)
		return nil
	}
	w, err := connector.Get(d.Writer)
	if err != nil {
		return err
	}
	p := &connector.Params{Log: log, BlockName: d.Name, ObjectName: d.ObjectName, Options: d.WriterParams}
	if conn != nil {
		p.Querier = conn
	}
	defer func() {
		if cerr := w.CleanUp(ctx, p, ds, drv); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err = w.PrePersist(ctx, p, ds, drv); err != nil {
		return err
	}
	for _, rec := range ds.Records() {
		if err = w.InlinePersist(ctx, p, ds, drv, rec); err != nil {
			return err
		}
	}
	return w.PostPersist(ctx, p, ds, drv)
}

// release decrements the usage counter of src and frees its rows once no destination needs them.
// Large objects that were not staged stay until the group's code has executed.
func (l *Loader) release(src *scenario.Source, lobsStaged bool) {
	if n := l.ec.arena.release(src.Name); n > 0 {
		return
	}
	ds, ok := l.ec.arena.extractedDataSet(src.Name)
	if !ok {
		return
	}
	if ds.HasLobs() && !lobsStaged {
		l.ec.arena.clearLater(ds)
		return
	}
	ds.ClearData()
}

func (l *Loader) clearCache(log logger.Logger, d *scenario.Destination) {
	if d.CacheName == "" {
		return
	}
	if c, ok := l.ec.x.proc.Cache(d.CacheName); ok {
		c.Clear()
		return
	}
	log.Warn("cache ", d.CacheName, " of destination ", d.Name, " is not registered")
}

// handleException applies the exception policy of d to err, rolling back to the savepoint when the error is ignored.
func (l *Loader) handleException(ctx context.Context, log logger.Logger, d *scenario.Destination, drv driver.Driver, conn *Connection, savepoint string, err error) error {
	var halt *task.HaltError
	if errors.As(err, &halt) || ctx.Err() != nil {
		return err
	}
	if d.Exception.Handle(err, drv.IsParseError(err)) != scenario.ExceptionIgnore {
		return err
	}
	log.Warn("ignoring error loading ", d.Name, ": ", err)
	if savepoint != "" {
		if _, rerr := rdbms.SqlExec(ctx, log, conn, drv.RollbackToSavepointSQL(savepoint)); rerr != nil {
			return pkgerrors.Wrapf(rerr, "unable to roll back to savepoint after ignored error %v", err)
		}
	}
	return nil
}
