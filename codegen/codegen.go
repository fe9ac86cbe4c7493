package codegen

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

// State of a CodeGen.
type State uint8

const (
	StateCreated State = iota
	StatePrepared
	StateExecuted
)

func (s State) String() string {
	return [...]string{"CREATED", "PREPARED", "EXECUTED"}[s]
}

// Code is one executable unit produced by AssembleCode.
type Code struct {
	SQL          string
	Args         []interface{}
	Lines        int
	Destinations []string
}

// Params describes one destination load to prepare.
// Then, Else and After must already have their text variables substituted.
type Params struct {
	Log         logger.Logger
	Destination *scenario.Destination
	DataSet     *dataset.DataSet
	Driver      driver.Driver
	Dml         shared.DmlGenerator // defaults to text batch generators.
	BatchRows   int                 // rows per generated DML statement.
	Then        string
	Else        string
	After       string
}

// CodeGen accumulates generated code for destinations that share a connection and runs it as one unit.
type CodeGen interface {
	State() State
	Prepare(ctx context.Context, p *Params) error
	AssembleCode() ([]Code, error)
	Execute(ctx context.Context, q shared.Querier, code []Code) error
	CleanUp(ctx context.Context, q shared.Querier) error
	CleanUpOnException(ctx context.Context, q shared.Querier) error
	Absorb(child CodeGen)
	LastCode() string
	LastLine() int
	Executed() []Code
	HasPending() bool
}

// Factory creates a CodeGen for a driver.
type Factory func(log logger.Logger, drv driver.Driver) CodeGen

var (
	mu       sync.RWMutex
	registry = map[string]Factory{
		constants.CodeGenSql: func(log logger.Logger, drv driver.Driver) CodeGen { return NewSqlCodeGen(log, drv) },
	}
)

// Register adds or replaces the factory for name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Get returns the factory registered under name; an empty name means the SQL code generator.
func Get(name string) (Factory, error) {
	if name == "" {
		name = constants.CodeGenSql
	}
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown code generator %q", name)
	}
	return f, nil
}

// Names returns the registered code generator names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	retval := make([]string, 0, len(registry))
	for k := range registry {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}
