package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/scenario"
	"github.com/relloyd/etl-engine/script"
	"github.com/relloyd/etl-engine/stats"
	"github.com/relloyd/etl-engine/task"
)

// execution is the state shared by every branch of one top-level execution.
type execution struct {
	id          string
	log         logger.Logger
	proc        *EtlProcess
	monitor     *TransactionMonitor
	stats       stats.StatsManager
	parallelism int
	maxLoops    int
	loads       int64
	storeMu     sync.Mutex
	taskStores  map[*scenario.Task]map[string]interface{}
}

func (x *execution) taskStore(t *scenario.Task) map[string]interface{} {
	x.storeMu.Lock()
	defer x.storeMu.Unlock()
	if m, ok := x.taskStores[t]; ok {
		return m
	}
	m := make(map[string]interface{})
	x.taskStores[t] = m
	return m
}

func (ec *execContext) nextLoadIndex() int {
	return int(atomic.AddInt64(&ec.x.loads, 1))
}

// arena holds the mutable state of one execution of a scenario body.
// The parsed scenario is never modified.
type arena struct {
	mu        sync.Mutex
	datasets  map[string]*dataset.DataSet
	extracted map[string]bool
	usage     map[string]*int64
	lazy      map[string]*lazyExtract
	deferred  []*dataset.DataSet // cleared once the connection group has executed its code.
}

// lazyExtract latches the outcome of extracting a source on demand.
type lazyExtract struct {
	once sync.Once
	ds   *dataset.DataSet
	err  error
}

func newArena(s *scenario.Scenario) *arena {
	a := &arena{
		datasets:  make(map[string]*dataset.DataSet),
		extracted: make(map[string]bool),
		usage:     make(map[string]*int64),
		lazy:      make(map[string]*lazyExtract),
	}
	for _, src := range s.SourceList() {
		n := int64(s.UsageCount(src))
		a.usage[src.Name] = &n
	}
	return a
}

// dataset returns the dataset of source name, creating it on first use.
func (a *arena) dataset(name string) *dataset.DataSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ds, ok := a.datasets[name]; ok {
		return ds
	}
	ds := dataset.New(name)
	a.datasets[name] = ds
	return ds
}

func (a *arena) markExtracted(name string) {
	a.mu.Lock()
	a.extracted[name] = true
	a.mu.Unlock()
}

// extractedDataSet returns the dataset of source name if it has been extracted.
func (a *arena) extractedDataSet(name string) (*dataset.DataSet, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.extracted[name] {
		return nil, false
	}
	return a.datasets[name], true
}

// extractOnce calls fn the first time it is asked for source name.
// Later callers wait for it and get the same dataset or error.
func (a *arena) extractOnce(name string, fn func() (*dataset.DataSet, error)) (*dataset.DataSet, error) {
	a.mu.Lock()
	le, ok := a.lazy[name]
	if !ok {
		le = &lazyExtract{}
		a.lazy[name] = le
	}
	a.mu.Unlock()
	le.once.Do(func() {
		le.ds, le.err = fn()
	})
	return le.ds, le.err
}

// release decrements the usage counter of source name and returns what remains.
func (a *arena) release(name string) int64 {
	a.mu.Lock()
	n, ok := a.usage[name]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.AddInt64(n, -1)
}

func (a *arena) usageCount(name string) int64 {
	a.mu.Lock()
	n, ok := a.usage[name]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(n)
}

func (a *arena) clearLater(ds *dataset.DataSet) {
	a.mu.Lock()
	a.deferred = append(a.deferred, ds)
	a.mu.Unlock()
}

func (a *arena) clearDeferred() {
	a.mu.Lock()
	deferred := a.deferred
	a.deferred = nil
	a.mu.Unlock()
	for _, ds := range deferred {
		ds.ClearData()
	}
}

// execContext is passed by reference through each phase of a scenario node.
type execContext struct {
	x          *execution
	log        logger.Logger
	scenario   *scenario.Scenario
	vars       *VariableStore
	arena      *arena
	branch     string // transactions are keyed by connection name and branch.
	onSave     scenario.Policy
	onPersist  scenario.Policy
	onPopulate scenario.Policy
}

func (ec *execContext) child(s *scenario.Scenario, vars *VariableStore, branch string) *execContext {
	return &execContext{
		x:          ec.x,
		log:        ec.x.log.WithField("scenario", s.Name),
		scenario:   s,
		vars:       vars,
		branch:     branch,
		onSave:     s.OnSave.Resolve(ec.onSave),
		onPersist:  s.OnPersist.Resolve(ec.onPersist),
		onPopulate: s.OnPopulate.Resolve(ec.onPopulate),
	}
}

// branchFor returns the branch key of parallel work named name.
func (ec *execContext) branchFor(name string) string {
	if ec.branch == "" {
		return name
	}
	return ec.branch + "/" + name
}

// parallelism returns the pool size for a configured degree n.
func (ec *execContext) parallelism(n int) int {
	if n > 0 {
		return n
	}
	if ec.x.parallelism > 0 {
		return ec.x.parallelism
	}
	return constants.DefaultParallelism
}

// connection returns the transaction on connection name for branch.
// Init and start-transaction SQL run once, when the transaction is registered.
func (ec *execContext) connection(ctx context.Context, name string, driverName string, branch string) (*Connection, error) {
	c, isNew, err := ec.x.monitor.Acquire(ctx, name, branch, driverName)
	if err != nil {
		return nil, err
	}
	if !isNew {
		return c, nil
	}
	stmts := append(append([]string{}, c.Driver.InitSQL()...), c.Driver.StartTransactionSQL()...)
	for _, s := range stmts {
		if _, err = rdbms.SqlExec(ctx, ec.log, c, s); err != nil {
			if c.Driver.IgnoreInitErrors() {
				ec.log.Warn("ignoring error in init SQL on connection ", name, ": ", err)
				continue
			}
			return nil, errors.Wrapf(err, "init SQL failed on connection %v", name)
		}
	}
	return c, nil
}

// defaultDriver is used by blocks without a connection.
func (ec *execContext) defaultDriver(name string) (driver.Driver, error) {
	if name == "" {
		name = constants.DriverGeneric
	}
	return driver.Get(name)
}

// conditionMet evaluates c against the variables in store.
func (ec *execContext) conditionMet(c *scenario.ConditionPolicy, store *VariableStore) (bool, error) {
	if !c.IsSet() {
		return true, nil
	}
	e, err := script.Get(c.Language)
	if err != nil {
		return false, err
	}
	ok, err := script.EvaluateBool(e, c.Code, store.Map())
	if err != nil {
		return false, errors.Wrap(err, "unable to evaluate condition")
	}
	return ok, nil
}

// taskContextFunc builds task contexts for the tasks of block b.
// Tasks without a connection of their own use the block's connection.
func (ec *execContext) taskContextFunc(ctx context.Context, b scenario.Block, ds *dataset.DataSet, store *VariableStore, branch string) task.ContextFunc {
	return func(t *scenario.Task) (*task.Context, error) {
		vars := store
		if t.Variables != nil && t.Variables.Len() > 0 {
			vars = NewVariableStore(store)
			if err := ec.resolveVariables(ctx, vars, scenario.VariableList(t.Variables), b.GetConnectionName(), branch); err != nil {
				return nil, err
			}
		}
		tc := &task.Context{
			Log:       ec.log.WithField("block", b.GetName()).WithField("task", t.Name),
			Task:      t,
			Scenario:  ec.scenario,
			BlockName: b.GetName(),
			DataSet:   ds,
			Variables: vars,
			Store:     ec.x.taskStore(t),
		}
		connectionName := t.ConnectionName
		driverName := t.DriverName
		if connectionName == "" {
			connectionName = b.GetConnectionName()
		}
		if driverName == "" {
			driverName = ec.scenario.DriverFor(b)
		}
		if connectionName == "" {
			return tc, nil
		}
		c, err := ec.connection(ctx, connectionName, driverName, branch)
		if err != nil {
			return nil, err
		}
		tc.Querier = c
		tc.Driver = c.Driver
		tc.Bind = func(sqlText string, binds []string, rec *dataset.Record) (string, []interface{}, error) {
			return ec.bind(vars, c, sqlText, binds, rec)
		}
		tc.Commit = func(ctx context.Context) error {
			return ec.x.monitor.CommitAndContinue(ctx, c)
		}
		return tc, nil
	}
}

// runTasks runs the tasks of one lifecycle point, applying a replacement dataset to ds.
// It returns false when a task asked to stop the phase.
func runTasks(ctx context.Context, log logger.Logger, tasks *task.Executor, scope scenario.TaskScope, newContext task.ContextFunc, ds *dataset.DataSet) (bool, error) {
	if !tasks.Has(scope) {
		return true, nil
	}
	r, err := tasks.Run(ctx, scope, newContext, dataset.Record{})
	if r.DataSet != nil && r.DataSet != ds {
		ds.CopyFrom(r.DataSet)
	}
	if err != nil {
		return false, err
	}
	if r.Code == task.Stop {
		log.Info("stopped by ", scope, " task: ", r.Message)
		return false, nil
	}
	return true, nil
}
