package engine

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	h "github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
	"github.com/relloyd/etl-engine/script"
)

// loopBatch collects loop values and runs the scenario body every size values.
type loopBatch struct {
	ec         *execContext
	size       int
	variable   string
	values     []string
	executions int
}

func (b *loopBatch) add(ctx context.Context, value string) error {
	b.values = append(b.values, value)
	if len(b.values) < b.size {
		return nil
	}
	return b.flush(ctx)
}

// flush runs the body for the values collected so far, if any.
func (b *loopBatch) flush(ctx context.Context) error {
	if len(b.values) == 0 {
		return nil
	}
	if b.variable != "" {
		b.ec.vars.Define(b.variable, strings.Join(b.values, ","), false)
	}
	b.values = b.values[:0]
	b.executions++
	b.ec.log.Debug("loop iteration ", b.executions)
	return b.ec.runBody(ctx)
}

// runLoop runs the body once per batch of Loop.Count driving values, then once more for a final partial batch.
func (ec *execContext) runLoop(ctx context.Context) error {
	l := ec.scenario.Loop
	b := &loopBatch{ec: ec, size: l.BatchSize(), variable: l.VariableName}
	var err error
	if l.IsScript() {
		err = ec.scriptLoop(ctx, l, b)
	} else {
		err = ec.sqlLoop(ctx, l, b)
	}
	if err != nil {
		return err
	}
	if err = b.flush(ctx); err != nil {
		return err
	}
	ec.log.Info("loop of scenario ", ec.scenario.Name, " ran ", b.executions, " time(s)")
	return nil
}

// loopRows buffers the driving query so the body can use the connection while iterating.
type loopRows struct {
	fields []string
	rows   []dataset.Record
}

func (r *loopRows) HandleHeader(columns []shared.ColumnType) error {
	r.fields = make([]string, len(columns))
	for idx, c := range columns {
		r.fields[idx] = c.Name()
	}
	return nil
}

func (r *loopRows) HandleRow(values []interface{}) error {
	rec, err := dataset.NewRecordFromValues(r.fields, values)
	if err != nil {
		return err
	}
	r.rows = append(r.rows, rec)
	return nil
}

func (ec *execContext) sqlLoop(ctx context.Context, l *scenario.Loop, b *loopBatch) error {
	if l.ConnectionName == "" {
		return errors.Errorf("loop of scenario %v has no connection", ec.scenario.Name)
	}
	c, err := ec.connection(ctx, l.ConnectionName, ec.scenario.DriverName, ec.branch)
	if err != nil {
		return err
	}
	q, args, err := ec.bind(ec.vars, c, ec.vars.Substitute(l.Code), nil, nil)
	if err != nil {
		return err
	}
	lr := &loopRows{}
	if err = rdbms.SqlQuery(ctx, ec.log, c, q, args, lr); err != nil {
		return &ExecutionError{Scenario: ec.scenario.Name, LastCode: q, FileName: ec.scenario.ScriptName, Err: err}
	}
	pattern := loopPattern(l, lr.fields)
	for _, rec := range lr.rows {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = b.add(ctx, loopValue(pattern, rec)); err != nil {
			return err
		}
	}
	return nil
}

// loopPattern returns the pattern applied to each driving row.
func loopPattern(l *scenario.Loop, fields []string) string {
	if l.Pattern != "" {
		return l.Pattern
	}
	f := l.Field
	if f == "" && len(fields) > 0 {
		f = fields[0]
	}
	return "${" + f + "}"
}

// loopValue substitutes the fields of rec into pattern; field names match case-insensitively.
func loopValue(pattern string, rec dataset.Record) string {
	return h.ReplaceTextVariables(pattern, func(name string) (string, bool) {
		if v, ok := rec.GetData(name); ok {
			return h.GetStringFromInterface(v, true), true
		}
		for k, v := range rec.GetDataMap() {
			if strings.EqualFold(k, name) {
				return h.GetStringFromInterface(v, true), true
			}
		}
		return "", false
	})
}

// scriptLoop evaluates the loop script with the current variables and an "iteration" counter
// until it returns the sentinel, null or false.
func (ec *execContext) scriptLoop(ctx context.Context, l *scenario.Loop, b *loopBatch) error {
	e, err := script.Get(l.Language)
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if i >= ec.x.maxLoops {
			return errors.Errorf("loop of scenario %v exceeded %v iterations", ec.scenario.Name, ec.x.maxLoops)
		}
		data := ec.vars.Map()
		data["iteration"] = i
		v, err := e.Evaluate(l.Code, data)
		if err != nil {
			return errors.Wrapf(err, "loop script of scenario %v failed", ec.scenario.Name)
		}
		if v == nil || v == false || v == constants.LoopSentinelValue {
			return nil
		}
		if err = b.add(ctx, h.GetStringFromInterface(v, true)); err != nil {
			return err
		}
	}
}
