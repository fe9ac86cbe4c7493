package engine

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	om "github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	h "github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

type variableValue struct {
	value  string
	hidden bool
}

// VariableStore holds the variable values of one scope.
// Lookups fall back to the parent scope, so blocks see scenario variables
// and inner scenarios see the variables of their parent.
// It is safe for concurrent use.
type VariableStore struct {
	mu     sync.RWMutex
	parent *VariableStore
	values *om.OrderedMap // name -> variableValue
}

func NewVariableStore(parent *VariableStore) *VariableStore {
	return &VariableStore{parent: parent, values: om.NewOrderedMap()}
}

// Define sets name in this scope regardless of the parents.
func (v *VariableStore) Define(name string, value string, hidden bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values.Set(name, variableValue{value: value, hidden: hidden})
}

// HasLocal returns true if name is defined in this scope.
func (v *VariableStore) HasLocal(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.values.Get(name)
	return ok
}

func (v *VariableStore) get(name string) (variableValue, bool) {
	for s := v; s != nil; s = s.parent {
		s.mu.RLock()
		x, ok := s.values.Get(name)
		s.mu.RUnlock()
		if ok {
			return x.(variableValue), true
		}
	}
	return variableValue{}, false
}

// Get returns the value of name from the nearest scope that defines it.
func (v *VariableStore) Get(name string) (string, bool) {
	x, ok := v.get(name)
	return x.value, ok
}

// Lookup is Get for ${name} text substitution; hidden variables are not found.
func (v *VariableStore) Lookup(name string) (string, bool) {
	x, ok := v.get(name)
	if !ok || x.hidden {
		return "", false
	}
	return x.value, true
}

// Set updates name in the nearest scope that defines it, or defines it here.
func (v *VariableStore) Set(name string, value string) {
	for s := v; s != nil; s = s.parent {
		s.mu.Lock()
		if x, ok := s.values.Get(name); ok {
			s.values.Set(name, variableValue{value: value, hidden: x.(variableValue).hidden})
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
	v.Define(name, value, false)
}

func (v *VariableStore) collect(out map[string]variableValue) {
	if v.parent != nil {
		v.parent.collect(out)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	iter := v.values.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		out[kv.Key.(string)] = kv.Value.(variableValue)
	}
}

// Map returns every visible value keyed by name, inner scopes winning.
func (v *VariableStore) Map() map[string]interface{} {
	all := make(map[string]variableValue)
	v.collect(all)
	retval := make(map[string]interface{}, len(all))
	for k, x := range all {
		retval[k] = x.value
	}
	return retval
}

// Visible returns the values of variables that are not hidden.
func (v *VariableStore) Visible() map[string]string {
	all := make(map[string]variableValue)
	v.collect(all)
	retval := make(map[string]string, len(all))
	for k, x := range all {
		if !x.hidden {
			retval[k] = x.value
		}
	}
	return retval
}

// Substitute replaces ${name} tokens in s.
func (v *VariableStore) Substitute(s string) string {
	return h.ReplaceTextVariables(s, v.Lookup)
}

// VariableFunc produces the value of a function variable from its argument.
type VariableFunc func(ctx context.Context, arg string) (string, error)

var (
	functionsMu sync.RWMutex
	functions   = map[string]VariableFunc{
		"now": func(ctx context.Context, arg string) (string, error) {
			if arg == "" {
				arg = constants.TimeFormatYearSecondsTZ
			}
			return time.Now().Format(arg), nil
		},
		"id": func(ctx context.Context, arg string) (string, error) {
			return xid.New().String(), nil
		},
		"env": func(ctx context.Context, arg string) (string, error) {
			v, ok := os.LookupEnv(arg)
			if !ok {
				return "", errors.Errorf("environment variable %v is not set", arg)
			}
			return v, nil
		},
	}
)

// RegisterFunction adds or replaces a function available to function variables.
func RegisterFunction(name string, fn VariableFunc) {
	functionsMu.Lock()
	defer functionsMu.Unlock()
	functions[strings.ToLower(name)] = fn
}

func getFunction(name string) (VariableFunc, bool) {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	fn, ok := functions[strings.ToLower(name)]
	return fn, ok
}

// resolveVariables computes vars in declaration order and defines them in store.
// Names already defined in store are left alone so values supplied by the caller win.
// connectionName is the default connection for code variables.
func (ec *execContext) resolveVariables(ctx context.Context, store *VariableStore, vars []*scenario.Variable, connectionName string, branch string) error {
	for _, v := range vars {
		if store.HasLocal(v.Name) {
			continue
		}
		value, err := ec.variableValue(ctx, store, v, connectionName, branch)
		if err != nil {
			if !v.TolerateException {
				return errors.Wrapf(err, "unable to resolve variable %v", v.Name)
			}
			ec.log.Warn("tolerating error resolving variable ", v.Name, ": ", err)
			value = ""
		}
		store.Define(v.Name, value, v.Hidden)
	}
	return nil
}

func (ec *execContext) variableValue(ctx context.Context, store *VariableStore, v *scenario.Variable, connectionName string, branch string) (string, error) {
	if v.Linked != "" {
		value, ok := store.Get(v.Linked)
		if !ok {
			return "", errors.Errorf("linked variable %v is not defined", v.Linked)
		}
		return value, nil
	}
	switch v.Source {
	case scenario.VariableFunction:
		fn, ok := getFunction(v.Code)
		if !ok {
			return "", errors.Errorf("unknown function %q", v.Code)
		}
		return fn(ctx, store.Substitute(v.Value))
	case scenario.VariableClass:
		return ec.classValue(ctx, store, v, connectionName, branch)
	case scenario.VariableCode:
		if v.ConnectionName != "" {
			connectionName = v.ConnectionName
		}
		return ec.scalar(ctx, store, v.Code, connectionName, branch)
	}
	return store.Substitute(v.Value), nil
}

// classValue evaluates a function of the driver's function class, e.g. sysdate, on the database.
// Names the driver does not know fall back to the function registry.
func (ec *execContext) classValue(ctx context.Context, store *VariableStore, v *scenario.Variable, connectionName string, branch string) (string, error) {
	if v.ConnectionName != "" {
		connectionName = v.ConnectionName
	}
	if strings.EqualFold(v.Code, "sysdate") && connectionName != "" {
		c, err := ec.connection(ctx, connectionName, "", branch)
		if err != nil {
			return "", err
		}
		return ec.scalar(ctx, store, "select "+c.Driver.SysDateSQL()+c.Driver.FromDual(), connectionName, branch)
	}
	fn, ok := getFunction(v.Code)
	if !ok {
		return "", errors.Errorf("function %q is not available in class %v", v.Code, ec.scenario.FunctionClass)
	}
	return fn(ctx, store.Substitute(v.Value))
}

// scalarHandler keeps the first column of the first row.
type scalarHandler struct {
	value interface{}
	found bool
}

func (s *scalarHandler) HandleHeader(columns []shared.ColumnType) error {
	if len(columns) == 0 {
		return errors.New("query returned no columns")
	}
	return nil
}

func (s *scalarHandler) HandleRow(values []interface{}) error {
	if !s.found {
		s.value = values[0]
		s.found = true
	}
	return nil
}

// scalar runs sqlText on connectionName and returns the first column of the first row.
// No rows gives an empty string.
func (ec *execContext) scalar(ctx context.Context, store *VariableStore, sqlText string, connectionName string, branch string) (string, error) {
	if connectionName == "" {
		return "", errors.New("code variable has no connection")
	}
	c, err := ec.connection(ctx, connectionName, "", branch)
	if err != nil {
		return "", err
	}
	q, args, err := ec.bind(store, c, store.Substitute(sqlText), nil, nil)
	if err != nil {
		return "", err
	}
	sh := &scalarHandler{}
	if err = rdbms.SqlQuery(ctx, ec.log, c, q, args, sh); err != nil {
		return "", err
	}
	return h.GetStringFromInterface(sh.value, true), nil
}

// bind converts :name markers to the placeholders of c's driver.
// Values of rec take precedence over variables.
func (ec *execContext) bind(store *VariableStore, c *Connection, sqlText string, binds []string, rec *dataset.Record) (string, []interface{}, error) {
	lookup := func(name string) (interface{}, bool) {
		if rec != nil && !rec.IsNil() {
			if v, ok := rec.GetData(name); ok {
				return v, true
			}
		}
		if v, ok := store.Get(name); ok {
			return v, true
		}
		return nil, false
	}
	return h.BindNamedParameters(sqlText, binds, lookup, c.Driver.Placeholder())
}
