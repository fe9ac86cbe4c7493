package codegen

import (
	"context"
	"fmt"
	"strings"
	"sync"

	om "github.com/cevaris/ordered_map"
	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

// unit is a group of statements that will be executed together.
type unit struct {
	lines        []string
	args         []interface{}
	destinations []string
}

// SqlCodeGen generates DML for destinations using the text batch generators.
// Statements that take arguments share a unit only when the driver uses unnumbered placeholders
// and accepts parameters in blocks; other statements are grouped up to the driver's line limit.
type SqlCodeGen struct {
	mu        sync.Mutex
	log       logger.Logger
	drv       driver.Driver
	state     State
	units     []*unit
	assembled bool
	executed  []Code
	cleanup   []string // statements to run on CleanUp, e.g. dropping cursor tables.
	lastCode  string
	lastLine  int
}

func NewSqlCodeGen(log logger.Logger, drv driver.Driver) *SqlCodeGen {
	return &SqlCodeGen{log: log, drv: drv}
}

func (c *SqlCodeGen) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SqlCodeGen) canShareArgs() bool {
	ph := c.drv.Placeholder()
	return c.drv.SupportsParametersInBlocks() && ph(1) == ph(2)
}

// addLine appends a statement to the current unit or starts a new one.
// Caller must hold the lock.
func (c *SqlCodeGen) addLine(dest string, sql string, args []interface{}) {
	var cur *unit
	if len(c.units) > 0 {
		cur = c.units[len(c.units)-1]
	}
	full := cur == nil ||
		len(cur.lines) >= c.drv.MaxLinesPerBlock() ||
		(len(args) > 0 && len(cur.args) > 0 && !c.canShareArgs())
	if full {
		cur = &unit{}
		c.units = append(c.units, cur)
	}
	cur.lines = append(cur.lines, sql)
	cur.args = append(cur.args, args...)
	if len(cur.destinations) == 0 || cur.destinations[len(cur.destinations)-1] != dest {
		cur.destinations = append(cur.destinations, dest)
	}
}

// Prepare generates the code for one destination and adds it to the pending units.
func (c *SqlCodeGen) Prepare(ctx context.Context, p *Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Destination == nil {
		return errors.New("code generator needs a destination")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateExecuted { // if this is the start of a new batch...
		c.assembled = false
	}
	d := p.Destination
	empty := p.DataSet == nil || p.DataSet.IsEmpty()
	var err error
	switch d.Type {
	case scenario.DestinationWait:
		return nil
	case scenario.DestinationDDL:
		err = c.prepareDDL(p)
	case scenario.DestinationProc, scenario.DestinationFunc:
		err = c.prepareCalls(p)
	default:
		err = c.prepareDml(p)
	}
	if err != nil {
		return errors.Wrapf(err, "error preparing code for destination %v", d.Name)
	}
	if !empty && p.Then != "" {
		c.addLine(d.Name, p.Then, nil)
	} else if empty && p.Else != "" {
		c.addLine(d.Name, p.Else, nil)
	}
	if p.After != "" {
		c.addLine(d.Name, p.After, nil)
	}
	c.state = StatePrepared
	return nil
}

// prepareDDL treats the first field of each row as a statement.
func (c *SqlCodeGen) prepareDDL(p *Params) error {
	if p.DataSet == nil {
		return nil
	}
	fields := p.DataSet.FieldNames()
	if len(fields) == 0 {
		return nil
	}
	for _, rec := range p.DataSet.Records() {
		if stmt := strings.TrimSpace(rec.GetDataAsString(fields[0])); stmt != "" {
			c.addLine(p.Destination.Name, stmt, nil)
		}
	}
	return nil
}

// prepareCalls generates one procedure or function call per row.
func (c *SqlCodeGen) prepareCalls(p *Params) error {
	if p.DataSet == nil {
		return nil
	}
	cols := columns(p.Destination, p.DataSet)
	ph := c.drv.Placeholder()
	marks := make([]string, len(cols))
	for idx := range cols {
		marks[idx] = ph(idx + 1)
	}
	var sql string
	if p.Destination.Type == scenario.DestinationProc {
		sql = fmt.Sprintf("call %v(%v)", p.Destination.ObjectName, strings.Join(marks, ","))
	} else {
		sql = fmt.Sprintf("select %v(%v)%v", p.Destination.ObjectName, strings.Join(marks, ","), c.drv.FromDual())
	}
	for _, rec := range p.DataSet.Records() {
		c.addLine(p.Destination.Name, sql, rec.GetValues(cols))
	}
	return nil
}

// prepareDml generates batched DML for the destination's load action.
// With a cursor table the rows are inserted into it and its SQL moves them on.
func (c *SqlCodeGen) prepareDml(p *Params) error {
	d := p.Destination
	if p.DataSet == nil || p.DataSet.IsEmpty() {
		return nil
	}
	ct := d.CursorTable
	if ct == nil {
		return c.prepareBatches(p, d.ObjectName, d.LoadAction)
	}
	name := ct.Name
	if name == "" {
		cur := rdbms.ParseSchemaTable(d.ObjectName).WithSuffix(constants.CursorTableSuffix)
		if ct.Temp { // temporary tables live outside the target's schema.
			cur.Schema = ""
		}
		name = cur.String()
	}
	c.addLine(d.Name, c.drv.CreateCursorTableSQL(name, fmt.Sprintf("select * from %v where 1=0", d.ObjectName), ct.Temp), nil)
	if !ct.KeepOnFinish {
		c.cleanup = append(c.cleanup, c.drv.DropTableSQL(name))
	}
	if err := c.prepareBatches(p, name, scenario.LoadInsert); err != nil {
		return err
	}
	if ct.SQL != "" {
		c.addLine(d.Name, ct.SQL, nil)
	}
	return nil
}

func (c *SqlCodeGen) prepareBatches(p *Params, target string, action scenario.LoadAction) error {
	d := p.Destination
	cols := columns(d, p.DataSet)
	keys := make(map[string]bool, len(d.LoadKey))
	keyCols := om.NewOrderedMap()
	for _, k := range d.LoadKey {
		keys[k] = true
		keyCols.Set(k, k)
	}
	otherCols := om.NewOrderedMap()
	var valueCols []string
	valueCols = append(valueCols, d.LoadKey...)
	for _, col := range cols {
		if !keys[col] {
			otherCols.Set(col, col)
			if action != scenario.LoadDelete {
				valueCols = append(valueCols, col)
			}
		}
	}
	if action != scenario.LoadInsert && len(d.LoadKey) == 0 {
		return fmt.Errorf("%v needs a load key", action)
	}
	st := rdbms.ParseSchemaTable(target)
	cfg := &shared.SqlStatementGeneratorConfig{
		Log:             p.Log,
		OutputSchema:    st.Schema,
		OutputTable:     st.Table,
		TargetKeyCols:   keyCols,
		TargetOtherCols: otherCols,
		Placeholder:     c.drv.Placeholder(),
		FromDual:        c.drv.FromDual(),
	}
	if action == scenario.LoadInsert { // if inserting, the key is just another column...
		cfg.TargetKeyCols = om.NewOrderedMap()
		cfg.TargetOtherCols = om.NewOrderedMap()
		valueCols = valueCols[:0]
		for _, col := range cols {
			cfg.TargetOtherCols.Set(col, col)
			valueCols = append(valueCols, col)
		}
	}
	if err := shared.FixSqlStatementGeneratorConfig(cfg); err != nil {
		return err
	}
	dml := p.Dml
	if dml == nil {
		dml = &shared.DmlGeneratorTxtBatch{}
	}
	var gen shared.SqlStmtTxtBatcher
	switch action {
	case scenario.LoadUpdate:
		gen = dml.NewUpdateGenerator(cfg)
	case scenario.LoadDelete:
		gen = dml.NewDeleteGenerator(cfg)
	case scenario.LoadMerge:
		gen = dml.NewMergeGenerator(cfg)
	default:
		gen = dml.NewInsertGenerator(cfg)
	}
	batchRows := p.BatchRows
	if batchRows < 1 {
		batchRows = constants.DefaultCodeGenBatchRows
	}
	records := p.DataSet.Records()
	gen.InitBatch(batchRows)
	for idx, rec := range records {
		full, err := gen.AddValuesToBatch(rec.GetValues(valueCols))
		if err != nil {
			return errors.Wrapf(err, "row %v", idx+1)
		}
		if full || idx == len(records)-1 { // if we have a batch to emit...
			args := make([]interface{}, len(gen.GetValues()))
			copy(args, gen.GetValues())
			c.addLine(d.Name, gen.GetStatement(), args)
			gen.InitBatch(batchRows)
		}
	}
	return nil
}

// columns returns the destination's columns or all dataset fields.
func columns(d *scenario.Destination, ds *dataset.DataSet) []string {
	if len(d.Columns) > 0 {
		return d.Columns
	}
	return ds.FieldNames()
}

// AssembleCode turns the pending units into executable code.
func (c *SqlCodeGen) AssembleCode() ([]Code, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePrepared {
		return nil, fmt.Errorf("cannot assemble code in state %v", c.state)
	}
	retval := make([]Code, 0, len(c.units))
	for _, u := range c.units {
		sql := u.lines[0]
		if len(u.lines) > 1 {
			sql = c.drv.WrapBlock(u.lines)
		}
		retval = append(retval, Code{SQL: sql, Args: u.args, Lines: len(u.lines), Destinations: u.destinations})
	}
	c.assembled = true
	return retval, nil
}

// Execute runs code on q in order and moves to the EXECUTED state.
// On failure LastCode and LastLine identify the unit that failed.
func (c *SqlCodeGen) Execute(ctx context.Context, q shared.Querier, code []Code) error {
	c.mu.Lock()
	if !c.assembled {
		c.mu.Unlock()
		return errors.New("code must be assembled before it is executed")
	}
	c.mu.Unlock()
	for idx, u := range code {
		c.mu.Lock()
		c.lastCode = u.SQL
		c.lastLine = idx + 1
		c.mu.Unlock()
		if _, err := rdbms.SqlExec(ctx, c.log, q, u.SQL, u.Args...); err != nil {
			return err
		}
		c.mu.Lock()
		c.executed = append(c.executed, u)
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.units = nil
	c.assembled = false
	c.state = StateExecuted
	c.mu.Unlock()
	return nil
}

// CleanUp drops temporary objects created by the generated code.
func (c *SqlCodeGen) CleanUp(ctx context.Context, q shared.Querier) error {
	c.mu.Lock()
	stmts := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()
	var firstErr error
	for _, s := range stmts {
		if _, err := rdbms.SqlExec(ctx, c.log, q, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CleanUpOnException discards pending code then cleans up.
func (c *SqlCodeGen) CleanUpOnException(ctx context.Context, q shared.Querier) error {
	c.mu.Lock()
	c.units = nil
	c.assembled = false
	c.mu.Unlock()
	return c.CleanUp(ctx, q)
}

// Absorb takes over the executed history and pending cleanup of child.
func (c *SqlCodeGen) Absorb(child CodeGen) {
	ch, ok := child.(*SqlCodeGen)
	if !ok || ch == c {
		return
	}
	ch.mu.Lock()
	executed := ch.executed
	cleanup := ch.cleanup
	lastCode, lastLine := ch.lastCode, ch.lastLine
	ch.executed = nil
	ch.cleanup = nil
	ch.mu.Unlock()
	c.mu.Lock()
	c.executed = append(c.executed, executed...)
	c.cleanup = append(c.cleanup, cleanup...)
	if lastCode != "" {
		c.lastCode, c.lastLine = lastCode, lastLine
	}
	c.mu.Unlock()
}

func (c *SqlCodeGen) LastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCode
}

func (c *SqlCodeGen) LastLine() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLine
}

// Executed returns a copy of all code run so far.
func (c *SqlCodeGen) Executed() []Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	retval := make([]Code, len(c.executed))
	copy(retval, c.executed)
	return retval
}

// HasPending returns true if code has been prepared but not executed.
func (c *SqlCodeGen) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePrepared && len(c.units) > 0
}
