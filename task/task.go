package task

import (
	"context"
	"fmt"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

// ResultCode is the control signal returned by a task.
type ResultCode uint8

const (
	Continue ResultCode = iota // proceed to the next task.
	Reject                     // discard the current row.
	Stop                       // end this lifecycle phase for the block without error.
	Halt                       // abort the whole scenario.
)

func (c ResultCode) String() string {
	return [...]string{"CONTINUE", "REJECT", "STOP", "HALT"}[c]
}

// Result is returned by every task method.
// A non-nil DataSet replaces the block's dataset.
type Result struct {
	Code    ResultCode
	DataSet *dataset.DataSet
	Message string
}

var ResultContinue = Result{Code: Continue}

// HaltError is the error raised for a HALT result.
type HaltError struct {
	Task    string
	Message string
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("halted by task %v: %v", e.Task, e.Message)
}

// Variables is the view of scenario variables given to tasks.
type Variables interface {
	Get(name string) (string, bool)
	Set(name string, value string)
	Map() map[string]interface{}
}

// Binder converts the :name markers in sqlText into driver placeholders.
// Row values, when rec is not nil, take precedence over variables.
type Binder func(sqlText string, binds []string, rec *dataset.Record) (string, []interface{}, error)

// Context is everything a task may use, resolved just before it runs.
type Context struct {
	Log       logger.Logger
	Task      *scenario.Task
	Scenario  *scenario.Scenario
	BlockName string
	Querier   shared.Querier
	Driver    driver.Driver
	DataSet   *dataset.DataSet
	Variables Variables
	Bind      Binder
	Commit    func(ctx context.Context) error // commits work done so far on the task's connection.
	Store     map[string]interface{}          // transient storage for the life of one execution.
}

// OnTask is a pluggable unit of work attached to a block.
// The Is* methods declare the lifecycle points a task runs at when its definition has no explicit scope.
type OnTask interface {
	IsBeforeEtlTask() bool
	IsPreTask() bool
	IsPostTask() bool
	IsInlineTask() bool
	ExecuteBeforeEtlTask(ctx context.Context, tc *Context) (Result, error)
	ExecutePreTask(ctx context.Context, tc *Context) (Result, error)
	ExecuteInlineTask(ctx context.Context, tc *Context, rec dataset.Record) (Result, error)
	ExecutePostTask(ctx context.Context, tc *Context) (Result, error)
}

// Base can be embedded to get a task that does nothing at every lifecycle point.
type Base struct{}

func (Base) IsBeforeEtlTask() bool { return false }
func (Base) IsPreTask() bool       { return false }
func (Base) IsPostTask() bool      { return false }
func (Base) IsInlineTask() bool    { return false }

func (Base) ExecuteBeforeEtlTask(context.Context, *Context) (Result, error) {
	return ResultContinue, nil
}

func (Base) ExecutePreTask(context.Context, *Context) (Result, error) {
	return ResultContinue, nil
}

func (Base) ExecuteInlineTask(context.Context, *Context, dataset.Record) (Result, error) {
	return ResultContinue, nil
}

func (Base) ExecutePostTask(context.Context, *Context) (Result, error) {
	return ResultContinue, nil
}

// DefaultScope returns the lifecycle points declared by impl.
func DefaultScope(impl OnTask) scenario.TaskScope {
	var s scenario.TaskScope
	if impl.IsBeforeEtlTask() {
		s |= scenario.TaskScopeBeforeEtl
	}
	if impl.IsPreTask() {
		s |= scenario.TaskScopePre
	}
	if impl.IsPostTask() {
		s |= scenario.TaskScopePost
	}
	if impl.IsInlineTask() {
		s |= scenario.TaskScopeInline
	}
	return s
}

// EffectiveScope returns the declared scope of t, or the defaults of impl when none was declared.
func EffectiveScope(t *scenario.Task, impl OnTask) scenario.TaskScope {
	if t.Scope != 0 {
		return t.Scope
	}
	return DefaultScope(impl)
}
