package scenario

import (
	om "github.com/cevaris/ordered_map"
)

// Variable is a named value available to SQL, scripts and tasks.
type Variable struct {
	Name              string
	Value             string
	Source            VariableSource
	Code              string // function name, class name or SQL depending on Source.
	ConnectionName    string
	Global            bool // visible to inner scenarios.
	Hidden            bool // excluded from ${name} text substitution and responses.
	Linked            string
	TolerateException bool
}

// VariableList returns the *Variable values of m in order.
func VariableList(m *om.OrderedMap) []*Variable {
	if m == nil {
		return nil
	}
	retval := make([]*Variable, 0, m.Len())
	iter := m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(*Variable))
	}
	return retval
}
