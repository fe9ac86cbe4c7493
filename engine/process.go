package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
	"github.com/relloyd/etl-engine/stats"
)

// Cache is a provider attached to destinations by name.
// It is cleared after each destination that names it has loaded.
type Cache interface {
	Clear()
}

// Config holds the collaborators of an EtlProcess.
type Config struct {
	Log         logger.Logger
	Settings    *config.Settings        // optional; when set an uninitialised configuration is reported.
	Connections shared.ConnectionGetter // checked before execution so a missing connection gives NO_CONFIG.
	Opener      ConnectionOpener        // defaults to opening Connections.
	Repository  scenario.Repository     // resolves scenarios by name, including inner scenarios.
	Defaults    config.Defaults
}

// Request asks for one execution of a scenario.
// Scenario takes precedence over ScenarioName.
type Request struct {
	ExecutionID  string
	ScenarioName string
	Scenario     *scenario.Scenario
	Variables    map[string]string  // override scenario variables of the same name.
	Stats        stats.StatsManager // optional, so callers can read stats while the execution runs.
}

// Response is the outcome of an execution.
type Response struct {
	ExecutionID    string            `json:"executionId"`
	Scenario       string            `json:"scenario"`
	ReturnCode     ReturnCode        `json:"returnCode"`
	Error          string            `json:"error,omitempty"`
	LastCode       string            `json:"lastCode,omitempty"`
	LastLine       int               `json:"lastLine,omitempty"`
	FileName       string            `json:"fileName,omitempty"`
	Stats          []stats.Stats     `json:"stats"`
	Variables      map[string]string `json:"variables,omitempty"`
	StartTime      time.Time         `json:"startTime"`
	ElapsedSeconds float64           `json:"elapsedSeconds"`
}

func (r *Response) OK() bool {
	return r.ReturnCode == ReturnOK
}

func (r *Response) setError(code ReturnCode, err error) {
	r.ReturnCode = code
	r.Error = err.Error()
	var ee *ExecutionError
	if errors.As(err, &ee) {
		r.LastCode = ee.LastCode
		r.LastLine = ee.LastLine
		if ee.FileName != "" {
			r.FileName = ee.FileName
		}
	}
}

// EtlProcess executes scenarios.
// It is safe for concurrent use; every execution gets its own transactions and datasets.
type EtlProcess struct {
	cfg    Config
	log    logger.Logger
	mu     sync.RWMutex
	caches map[string]Cache
}

func NewEtlProcess(cfg Config) *EtlProcess {
	if cfg.Log == nil {
		cfg.Log = logger.NewLogger(constants.ServiceName, "info", false)
	}
	if cfg.Opener == nil && cfg.Connections != nil {
		cfg.Opener = NewConfigOpener(cfg.Log, cfg.Connections)
	}
	if cfg.Defaults.MaxScriptLoopIterations <= 0 {
		cfg.Defaults.MaxScriptLoopIterations = constants.DefaultMaxScriptLoopIterations
	}
	return &EtlProcess{cfg: cfg, log: cfg.Log, caches: make(map[string]Cache)}
}

// RegisterCache makes c available to destinations that name it.
func (p *EtlProcess) RegisterCache(name string, c Cache) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caches[name] = c
}

func (p *EtlProcess) Cache(name string) (Cache, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.caches[name]
	return c, ok
}

// Execute runs the requested scenario tree inside one transaction boundary.
// It never panics on bad input: failures are reported in the Response.
func (p *EtlProcess) Execute(ctx context.Context, req *Request) *Response {
	start := time.Now()
	id := req.ExecutionID
	if id == "" {
		id = xid.New().String()
	}
	resp := &Response{ExecutionID: id, Scenario: req.ScenarioName, StartTime: start}
	log := p.log.WithField("execution", id)
	sm := req.Stats
	if sm == nil {
		sm = stats.NewManager(log, stats.SetStatsDumpFrequency(p.cfg.Defaults.StatsDumpFrequency))
	}
	defer func() {
		resp.Stats = sm.GetStats()
		resp.ElapsedSeconds = time.Since(start).Seconds()
	}()
	if p.cfg.Settings != nil && !p.cfg.Settings.Initialized() {
		resp.setError(ReturnConfigNotInitialized, errors.New("configuration has not been initialised, add a connection with 'etl config connections add'"))
		return resp
	}
	s, err := p.resolve(req)
	if err != nil {
		resp.setError(ReturnError, err)
		return resp
	}
	resp.Scenario = s.Name
	resp.FileName = s.ScriptName
	if v := s.Validate(); !v.OK() {
		resp.setError(ReturnError, v)
		return resp
	}
	if err = p.checkConnections(s); err != nil {
		resp.setError(ReturnNoConfig, err)
		return resp
	}
	if p.cfg.Opener == nil {
		resp.setError(ReturnNoConfig, errors.New("no connection configuration has been supplied"))
		return resp
	}
	monitor := NewTransactionMonitor(log, p.cfg.Opener)
	defer monitor.Close()
	x := &execution{
		id:          id,
		log:         log,
		proc:        p,
		monitor:     monitor,
		stats:       sm,
		parallelism: p.cfg.Defaults.Parallelism,
		maxLoops:    p.cfg.Defaults.MaxScriptLoopIterations,
		taskStores:  make(map[*scenario.Task]map[string]interface{}),
	}
	vars := NewVariableStore(nil)
	for k, v := range req.Variables {
		vars.Define(k, v, false)
	}
	root := &execContext{x: x, log: log, onSave: scenario.PolicySave, onPersist: scenario.PolicySave, onPopulate: scenario.PolicySave}
	sm.StartDumping()
	log.Info("executing scenario ", s.Name)
	err = root.child(s, vars, "").run(ctx)
	sm.StopDumping()
	// commit point.
	switch {
	case err == nil && ctx.Err() != nil:
		monitor.Rollback(nil)
		err = pkgerrors.Wrap(ctx.Err(), "execution interrupted")
	case err != nil:
		monitor.Rollback(err)
	default:
		err = monitor.Commit()
	}
	resp.Variables = vars.Visible()
	if err != nil {
		var nc *NoConfigError
		if errors.As(err, &nc) {
			resp.setError(ReturnNoConfig, err)
		} else {
			resp.setError(ReturnError, err)
		}
		log.Error("scenario ", s.Name, " failed: ", err)
		return resp
	}
	log.Info("scenario ", s.Name, " complete")
	return resp
}

// resolve returns the scenario to execute. A scenario that is not ready is
// loaded again by name, so only fully parsed scenarios are executed.
func (p *EtlProcess) resolve(req *Request) (*scenario.Scenario, error) {
	if s := req.Scenario; s != nil {
		if s.IsReady() {
			return s, nil
		}
		if p.cfg.Repository == nil {
			return nil, pkgerrors.Errorf("scenario %v is not ready and there is no repository to load it from", s.Name)
		}
		return p.cfg.Repository.Load(s.Name)
	}
	if req.ScenarioName == "" {
		return nil, errors.New("no scenario was requested")
	}
	if p.cfg.Repository == nil {
		return nil, pkgerrors.Errorf("no repository to load scenario %v from", req.ScenarioName)
	}
	return p.cfg.Repository.Load(req.ScenarioName)
}

// checkConnections confirms every connection named in the materialised tree is configured.
func (p *EtlProcess) checkConnections(s *scenario.Scenario) error {
	if p.cfg.Connections == nil {
		return nil
	}
	for _, name := range ConnectionNames(s) {
		if _, err := p.cfg.Connections.LoadConnection(name); err != nil {
			return &NoConfigError{Connection: name, Err: err}
		}
	}
	return nil
}

// ConnectionNames returns the sorted connection names used by s and its materialised inner scenarios.
func ConnectionNames(s *scenario.Scenario) []string {
	seen := make(map[string]bool)
	var walk func(s *scenario.Scenario)
	addBlock := func(b scenario.Block) {
		seen[b.GetConnectionName()] = true
		for _, t := range b.GetTasks() {
			seen[t.ConnectionName] = true
		}
		for _, v := range scenario.VariableList(b.GetVariables()) {
			seen[v.ConnectionName] = true
		}
	}
	walk = func(s *scenario.Scenario) {
		if s.Loop != nil {
			seen[s.Loop.ConnectionName] = true
		}
		for _, v := range scenario.VariableList(s.Variables) {
			seen[v.ConnectionName] = true
		}
		for _, src := range s.SourceList() {
			addBlock(src)
		}
		for _, d := range s.DestinationList() {
			addBlock(d)
		}
		for _, inner := range s.Execute {
			if inner.IsReady() {
				walk(inner)
			}
		}
	}
	walk(s)
	delete(seen, "")
	retval := make([]string, 0, len(seen))
	for k := range seen {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// run resolves the scenario variables and runs the body, once or per loop iteration.
func (ec *execContext) run(ctx context.Context) error {
	s := ec.scenario
	if err := ec.resolveVariables(ctx, ec.vars, scenario.VariableList(s.Variables), "", ec.branch); err != nil {
		return err
	}
	if s.Loop == nil {
		return ec.runBody(ctx)
	}
	return ec.runLoop(ctx)
}

// runBody executes the inner scenarios depth first and then the scenario's own extract and load.
func (ec *execContext) runBody(ctx context.Context) error {
	if ok, err := ec.conditionMet(ec.scenario.Condition, ec.vars); err != nil {
		return pkgerrors.Wrapf(err, "scenario %v", ec.scenario.Name)
	} else if !ok {
		ec.log.Info("condition not met, skipping scenario ", ec.scenario.Name)
		return nil
	}
	if err := ec.runInner(ctx); err != nil {
		return err
	}
	return ec.runSelf(ctx)
}

func (ec *execContext) runInner(ctx context.Context) error {
	s := ec.scenario
	if len(s.Execute) == 0 {
		return nil
	}
	pool := newWorkerPool(ctx, ec.parallelism(s.Parallel.InnerScenarios))
	for _, ref := range s.Execute {
		if pool.IsTerminated() {
			break
		}
		inner, err := ec.materialize(ref)
		if err != nil {
			pool.Terminate()
			_ = pool.WaitUntilDone()
			return err
		}
		vars := NewVariableStore(ec.vars)
		for _, v := range scenario.VariableList(ref.Variables) {
			if !ref.IsReady() { // values given on a reference are assigned by the parent.
				vars.Define(v.Name, ec.vars.Substitute(v.Value), v.Hidden)
			}
		}
		if ref.IsParallel && pool.Size() > 1 {
			child := ec.child(inner, vars, ec.branchFor("scenario:"+inner.Name))
			pool.Submit(child.run)
			continue
		}
		if err = ec.child(inner, vars, ec.branch).run(ctx); err != nil {
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

// materialize returns ref if it is ready, else loads it fresh from the repository.
func (ec *execContext) materialize(ref *scenario.Scenario) (*scenario.Scenario, error) {
	if ref.IsReady() {
		return ref, nil
	}
	repo := ec.x.proc.cfg.Repository
	if repo == nil {
		return nil, pkgerrors.Errorf("inner scenario %v cannot be loaded without a repository", ref.Name)
	}
	s, err := repo.Load(ref.Name)
	if err != nil {
		return nil, err
	}
	if s.DriverName == "" {
		s.DriverName = ec.scenario.DriverName
	}
	if v := s.Validate(); !v.OK() {
		return nil, pkgerrors.Wrapf(v, "inner scenario %v", ref.Name)
	}
	return s, nil
}

// runSelf extracts then loads the scenario's own blocks.
// Without EXTRACT in the action only mandatory sources are extracted up front.
func (ec *execContext) runSelf(ctx context.Context) error {
	s := ec.scenario
	ec.arena = newArena(s)
	x := newExtractor(ec)
	if err := x.ExtractMandatory(ctx); err != nil {
		return err
	}
	if s.Action.Includes(scenario.ActionExtract) {
		if err := x.Extract(ctx); err != nil {
			return err
		}
	}
	if !s.Action.Includes(scenario.ActionLoad) {
		return nil
	}
	l, err := newLoader(ec, x, ec.nextLoadIndex())
	if err != nil {
		return err
	}
	return l.Load(ctx)
}
