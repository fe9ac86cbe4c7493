package scenario

import (
	"fmt"
	"strings"
)

// Action says which phases of a scenario run.
type Action uint8

const (
	ActionNothing Action = 0
	ActionExtract Action = 1 << 0
	ActionLoad    Action = 1 << 1
	// ActionExtractLoad is the default.
	ActionExtractLoad = ActionExtract | ActionLoad
)

func (a Action) Includes(x Action) bool {
	return a&x == x && x != ActionNothing
}

func (a Action) String() string {
	switch a {
	case ActionNothing:
		return "NOTHING"
	case ActionExtract:
		return "EXTRACT"
	case ActionLoad:
		return "LOAD"
	case ActionExtractLoad:
		return "EXTRACT_LOAD"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

func ParseAction(s string) (Action, error) {
	switch normalise(s) {
	case "", "EXTRACT_LOAD", "EXTRACTLOAD":
		return ActionExtractLoad, nil
	case "NOTHING", "NONE":
		return ActionNothing, nil
	case "EXTRACT":
		return ActionExtract, nil
	case "LOAD":
		return ActionLoad, nil
	}
	return ActionNothing, fmt.Errorf("unknown action %q", s)
}

// Policy controls whether a scenario saves, skips or inherits a behaviour from its parent.
type Policy uint8

const (
	PolicyParent Policy = iota
	PolicySave
	PolicySkip
)

func (p Policy) String() string {
	return [...]string{"PARENT", "SAVE", "SKIP"}[p]
}

func ParsePolicy(s string) (Policy, error) {
	switch normalise(s) {
	case "", "PARENT":
		return PolicyParent, nil
	case "SAVE":
		return PolicySave, nil
	case "SKIP":
		return PolicySkip, nil
	}
	return PolicyParent, fmt.Errorf("unknown policy %q", s)
}

// Resolve returns p, or parent if p is PolicyParent.
func (p Policy) Resolve(parent Policy) Policy {
	if p == PolicyParent {
		return parent
	}
	return p
}

// DestinationType is the kind of object a destination writes to.
type DestinationType uint8

const (
	DestinationRegular DestinationType = iota
	DestinationProc
	DestinationFunc
	DestinationDDL
	DestinationWait
	DestinationTable
)

func (t DestinationType) String() string {
	return [...]string{"REGULAR", "PROC", "FUNC", "DDL", "WAIT", "TABLE"}[t]
}

func ParseDestinationType(s string) (DestinationType, error) {
	switch normalise(s) {
	case "", "REGULAR":
		return DestinationRegular, nil
	case "PROC":
		return DestinationProc, nil
	case "FUNC":
		return DestinationFunc, nil
	case "DDL":
		return DestinationDDL, nil
	case "WAIT":
		return DestinationWait, nil
	case "TABLE":
		return DestinationTable, nil
	}
	return DestinationRegular, fmt.Errorf("unknown destination type %q", s)
}

// LoadAction is the DML used to persist a destination's dataset.
type LoadAction uint8

const (
	LoadInsert LoadAction = iota
	LoadUpdate
	LoadDelete
	LoadMerge
)

func (l LoadAction) String() string {
	return [...]string{"INSERT", "UPDATE", "DELETE", "MERGE"}[l]
}

func ParseLoadAction(s string) (LoadAction, error) {
	switch normalise(s) {
	case "", "INSERT":
		return LoadInsert, nil
	case "UPDATE":
		return LoadUpdate, nil
	case "DELETE":
		return LoadDelete, nil
	case "MERGE":
		return LoadMerge, nil
	}
	return LoadInsert, fmt.Errorf("unknown load action %q", s)
}

// DestinationScope says whether a destination may share a batch with others on the same connection.
type DestinationScope uint8

const (
	ScopeGlobal DestinationScope = iota
	ScopeSingle
)

func (s DestinationScope) String() string {
	return [...]string{"GLOBAL", "SINGLE"}[s]
}

func ParseDestinationScope(s string) (DestinationScope, error) {
	switch normalise(s) {
	case "", "GLOBAL":
		return ScopeGlobal, nil
	case "SINGLE":
		return ScopeSingle, nil
	}
	return ScopeGlobal, fmt.Errorf("unknown destination scope %q", s)
}

// TaskScope is a bitmask of the lifecycle points a task runs at.
type TaskScope uint8

const (
	TaskScopePre       TaskScope = 2
	TaskScopePost      TaskScope = 4
	TaskScopeInline    TaskScope = 8
	TaskScopeBeforeEtl TaskScope = 16
)

func (s TaskScope) Has(x TaskScope) bool {
	return s&x != 0
}

func (s TaskScope) String() string {
	var parts []string
	for _, x := range []struct {
		v TaskScope
		n string
	}{{TaskScopePre, "PRE"}, {TaskScopePost, "POST"}, {TaskScopeInline, "INLINE"}, {TaskScopeBeforeEtl, "BEFORE_ETL"}} {
		if s.Has(x.v) {
			parts = append(parts, x.n)
		}
	}
	return strings.Join(parts, "|")
}

// ParseTaskScope reads a list like "pre,post".
func ParseTaskScope(names []string) (TaskScope, error) {
	var s TaskScope
	for _, n := range names {
		switch normalise(n) {
		case "PRE":
			s |= TaskScopePre
		case "POST":
			s |= TaskScopePost
		case "INLINE":
			s |= TaskScopeInline
		case "BEFORE_ETL", "BEFOREETL":
			s |= TaskScopeBeforeEtl
		case "":
		default:
			return 0, fmt.Errorf("unknown task scope %q", n)
		}
	}
	return s, nil
}

// VariableSource says how a variable's value is produced.
type VariableSource uint8

const (
	VariableLiteral VariableSource = iota
	VariableFunction
	VariableClass
	VariableCode
)

func (v VariableSource) String() string {
	return [...]string{"LITERAL", "FUNCTION", "CLASS", "CODE"}[v]
}

func ParseVariableSource(s string) (VariableSource, error) {
	switch normalise(s) {
	case "", "LITERAL", "VALUE":
		return VariableLiteral, nil
	case "FUNCTION":
		return VariableFunction, nil
	case "CLASS":
		return VariableClass, nil
	case "CODE", "SQL":
		return VariableCode, nil
	}
	return VariableLiteral, fmt.Errorf("unknown variable source %q", s)
}

// ExceptionAction is the outcome of applying an ExceptionPolicy to an error.
type ExceptionAction uint8

const (
	ExceptionRaise ExceptionAction = iota
	ExceptionIgnore
)

func (e ExceptionAction) String() string {
	return [...]string{"RAISE", "IGNORE"}[e]
}

func ParseExceptionAction(s string) (ExceptionAction, error) {
	switch normalise(s) {
	case "", "RAISE":
		return ExceptionRaise, nil
	case "IGNORE":
		return ExceptionIgnore, nil
	}
	return ExceptionRaise, fmt.Errorf("unknown exception action %q", s)
}

func normalise(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
}
