package task

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/dataset"
	h "github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/script"
)

const (
	ParamRowsVariable = "rowsVariable"
	ParamOnFalse      = "onFalse"
	ParamVariable     = "variable"
	ParamValue        = "value"
	ParamField        = "field"
	ParamMessage      = "message"
)

// substitute replaces ${name} tokens in s with variable values.
func substitute(tc *Context, s string) string {
	if tc.Variables == nil {
		return s
	}
	return h.ReplaceTextVariables(s, tc.Variables.Get)
}

// scriptData merges the variables with the row values; row values win.
func scriptData(tc *Context, rec *dataset.Record) map[string]interface{} {
	data := make(map[string]interface{})
	if tc.Variables != nil {
		for k, v := range tc.Variables.Map() {
			data[k] = v
		}
	}
	if rec != nil && !rec.IsNil() {
		for k, v := range rec.GetDataMap() {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			data[k] = v
		}
	}
	return data
}

func evaluate(tc *Context, rec *dataset.Record) (bool, error) {
	if tc.Task.Code == "" {
		return true, nil
	}
	e, err := script.Get("")
	if err != nil {
		return false, err
	}
	return script.EvaluateBool(e, tc.Task.Code, scriptData(tc, rec))
}

// SqlExec runs the task code on the block's connection.
// Pre-task by default. Inline it binds row values by field name.
type SqlExec struct {
	Base
}

func (t *SqlExec) IsPreTask() bool { return true }

func (t *SqlExec) exec(ctx context.Context, tc *Context, rec *dataset.Record) (Result, error) {
	if tc.Querier == nil {
		return ResultContinue, errors.New("SqlExec needs a connection")
	}
	sqlText := substitute(tc, tc.Task.Code)
	args := []interface{}(nil)
	if tc.Bind != nil {
		var err error
		if sqlText, args, err = tc.Bind(sqlText, tc.Task.Binds, rec); err != nil {
			return ResultContinue, err
		}
	}
	n, err := rdbms.SqlExec(ctx, tc.Log, tc.Querier, sqlText, args...)
	if err != nil {
		return ResultContinue, err
	}
	if v := tc.Task.Param(ParamRowsVariable); v != "" && tc.Variables != nil {
		tc.Variables.Set(v, strconv.FormatInt(n, 10))
	}
	return ResultContinue, nil
}

func (t *SqlExec) ExecuteBeforeEtlTask(ctx context.Context, tc *Context) (Result, error) {
	return t.exec(ctx, tc, nil)
}

func (t *SqlExec) ExecutePreTask(ctx context.Context, tc *Context) (Result, error) {
	return t.exec(ctx, tc, nil)
}

func (t *SqlExec) ExecuteInlineTask(ctx context.Context, tc *Context, rec dataset.Record) (Result, error) {
	return t.exec(ctx, tc, &rec)
}

func (t *SqlExec) ExecutePostTask(ctx context.Context, tc *Context) (Result, error) {
	return t.exec(ctx, tc, nil)
}

// JsonLogicFilter keeps rows for which the rule in the task code is true.
// Rejected rows are discarded unless the onFalse parameter is "stop".
// As a pre or post task a false rule stops the phase.
type JsonLogicFilter struct {
	Base
}

func (t *JsonLogicFilter) IsInlineTask() bool { return true }

func (t *JsonLogicFilter) phase(tc *Context) (Result, error) {
	ok, err := evaluate(tc, nil)
	if err != nil || ok {
		return ResultContinue, err
	}
	return Result{Code: Stop}, nil
}

func (t *JsonLogicFilter) ExecuteBeforeEtlTask(_ context.Context, tc *Context) (Result, error) {
	return t.phase(tc)
}

func (t *JsonLogicFilter) ExecutePreTask(_ context.Context, tc *Context) (Result, error) {
	return t.phase(tc)
}

func (t *JsonLogicFilter) ExecuteInlineTask(_ context.Context, tc *Context, rec dataset.Record) (Result, error) {
	ok, err := evaluate(tc, &rec)
	if err != nil || ok {
		return ResultContinue, err
	}
	if tc.Task.Param(ParamOnFalse) == "stop" {
		return Result{Code: Stop}, nil
	}
	return Result{Code: Reject}, nil
}

func (t *JsonLogicFilter) ExecutePostTask(_ context.Context, tc *Context) (Result, error) {
	return t.phase(tc)
}

// SetVariable assigns the variable named by the "variable" parameter.
// The value is the "value" parameter, else the task code, after ${name} substitution.
// Inline, a "field" parameter takes the value from the current row.
type SetVariable struct {
	Base
}

func (t *SetVariable) IsPreTask() bool { return true }

func (t *SetVariable) set(tc *Context, rec *dataset.Record) (Result, error) {
	name := tc.Task.Param(ParamVariable)
	if name == "" {
		return ResultContinue, errors.New("SetVariable needs a variable parameter")
	}
	if tc.Variables == nil {
		return ResultContinue, errors.New("SetVariable has no variables to set")
	}
	var value string
	if f := tc.Task.Param(ParamField); f != "" && rec != nil {
		value = rec.GetDataAsString(f)
	} else if v := tc.Task.Param(ParamValue); v != "" {
		value = substitute(tc, v)
	} else {
		value = substitute(tc, tc.Task.Code)
	}
	tc.Variables.Set(name, value)
	return ResultContinue, nil
}

func (t *SetVariable) ExecuteBeforeEtlTask(_ context.Context, tc *Context) (Result, error) {
	return t.set(tc, nil)
}

func (t *SetVariable) ExecutePreTask(_ context.Context, tc *Context) (Result, error) {
	return t.set(tc, nil)
}

func (t *SetVariable) ExecuteInlineTask(_ context.Context, tc *Context, rec dataset.Record) (Result, error) {
	return t.set(tc, &rec)
}

func (t *SetVariable) ExecutePostTask(_ context.Context, tc *Context) (Result, error) {
	return t.set(tc, nil)
}

// Log writes the "message" parameter, or the task code, to the log.
// Inline it also logs the row.
type Log struct {
	Base
}

func (t *Log) IsPostTask() bool { return true }

func (t *Log) message(tc *Context) string {
	msg := tc.Task.Param(ParamMessage)
	if msg == "" {
		msg = tc.Task.Code
	}
	return substitute(tc, msg)
}

func (t *Log) ExecuteBeforeEtlTask(_ context.Context, tc *Context) (Result, error) {
	tc.Log.Info(tc.BlockName, ": ", t.message(tc))
	return ResultContinue, nil
}

func (t *Log) ExecutePreTask(_ context.Context, tc *Context) (Result, error) {
	tc.Log.Info(tc.BlockName, ": ", t.message(tc))
	return ResultContinue, nil
}

func (t *Log) ExecuteInlineTask(_ context.Context, tc *Context, rec dataset.Record) (Result, error) {
	b, err := rec.GetJson()
	if err != nil {
		return ResultContinue, err
	}
	tc.Log.Info(tc.BlockName, ": ", t.message(tc), " ", string(b))
	return ResultContinue, nil
}

func (t *Log) ExecutePostTask(_ context.Context, tc *Context) (Result, error) {
	n := 0
	if tc.DataSet != nil {
		n = tc.DataSet.Len()
	}
	tc.Log.Info(tc.BlockName, ": ", t.message(tc), " (", n, " rows)")
	return ResultContinue, nil
}

// HaltTask aborts the scenario with the "message" parameter.
// If the task has code it is a rule and the task halts only when it is true.
type HaltTask struct {
	Base
}

func (t *HaltTask) IsPreTask() bool { return true }

func (t *HaltTask) halt(tc *Context, rec *dataset.Record) (Result, error) {
	ok, err := evaluate(tc, rec)
	if err != nil || !ok {
		return ResultContinue, err
	}
	msg := tc.Task.Param(ParamMessage)
	if msg == "" {
		msg = "halted"
	}
	return Result{Code: Halt, Message: substitute(tc, msg)}, nil
}

func (t *HaltTask) ExecuteBeforeEtlTask(_ context.Context, tc *Context) (Result, error) {
	return t.halt(tc, nil)
}

func (t *HaltTask) ExecutePreTask(_ context.Context, tc *Context) (Result, error) {
	return t.halt(tc, nil)
}

func (t *HaltTask) ExecuteInlineTask(_ context.Context, tc *Context, rec dataset.Record) (Result, error) {
	return t.halt(tc, &rec)
}

func (t *HaltTask) ExecutePostTask(_ context.Context, tc *Context) (Result, error) {
	return t.halt(tc, nil)
}
