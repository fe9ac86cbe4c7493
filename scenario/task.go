package scenario

import (
	om "github.com/cevaris/ordered_map"
)

// Task is a unit of work attached to a Block.
// Scope 0 means the implementation's default scope applies.
type Task struct {
	Name           string
	Class          string
	ConnectionName string
	DriverName     string
	Code           string
	Binds          []string
	Scope          TaskScope
	CommitWhenDone bool
	Variables      *om.OrderedMap // name -> *Variable
	Params         map[string]string
}

func (t *Task) Param(name string) string {
	if t.Params == nil {
		return ""
	}
	return t.Params[name]
}
