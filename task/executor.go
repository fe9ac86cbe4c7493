package task

import (
	"context"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/scenario"
)

type boundTask struct {
	def   *scenario.Task
	impl  OnTask
	scope scenario.TaskScope
}

// Executor runs the tasks of one block at a lifecycle point.
// Task classes are resolved once when the Executor is created.
type Executor struct {
	tasks []boundTask
}

// ContextFunc builds the Context for a task just before it runs.
type ContextFunc func(t *scenario.Task) (*Context, error)

func NewExecutor(tasks []*scenario.Task) (*Executor, error) {
	e := &Executor{tasks: make([]boundTask, 0, len(tasks))}
	for _, t := range tasks {
		impl, err := Get(t.Class)
		if err != nil {
			return nil, errors.Wrapf(err, "task %v", t.Name)
		}
		e.tasks = append(e.tasks, boundTask{def: t, impl: impl, scope: EffectiveScope(t, impl)})
	}
	return e, nil
}

// Has returns true if any task runs at scope.
func (e *Executor) Has(scope scenario.TaskScope) bool {
	for _, t := range e.tasks {
		if t.scope.Has(scope) {
			return true
		}
	}
	return false
}

// Run executes the tasks for scope in declaration order.
// It stops at the first result other than CONTINUE and returns it.
// A HALT result is returned together with a *HaltError.
// rec is only used for the inline scope.
func (e *Executor) Run(ctx context.Context, scope scenario.TaskScope, newContext ContextFunc, rec dataset.Record) (Result, error) {
	final := ResultContinue
	for _, t := range e.tasks {
		if !t.scope.Has(scope) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return final, err
		}
		tc, err := newContext(t.def)
		if err != nil {
			return final, err
		}
		var r Result
		switch scope {
		case scenario.TaskScopeBeforeEtl:
			r, err = t.impl.ExecuteBeforeEtlTask(ctx, tc)
		case scenario.TaskScopePre:
			r, err = t.impl.ExecutePreTask(ctx, tc)
		case scenario.TaskScopeInline:
			r, err = t.impl.ExecuteInlineTask(ctx, tc, rec)
		case scenario.TaskScopePost:
			r, err = t.impl.ExecutePostTask(ctx, tc)
		default:
			return final, errors.Errorf("unsupported task scope %v", scope)
		}
		if err != nil {
			return r, errors.Wrapf(err, "task %v failed", t.def.Name)
		}
		if r.DataSet != nil {
			final.DataSet = r.DataSet
		}
		if t.def.CommitWhenDone && tc.Commit != nil {
			if err = tc.Commit(ctx); err != nil {
				return r, errors.Wrapf(err, "commit after task %v failed", t.def.Name)
			}
		}
		switch r.Code {
		case Continue:
			continue
		case Halt:
			if r.DataSet == nil {
				r.DataSet = final.DataSet
			}
			return r, &HaltError{Task: t.def.Name, Message: r.Message}
		default:
			if r.DataSet == nil {
				r.DataSet = final.DataSet
			}
			return r, nil
		}
	}
	return final, nil
}
