package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relloyd/etl-engine/constants"
)

// Factory creates a Driver.
type Factory func() Driver

var (
	mu       sync.RWMutex
	registry = map[string]Factory{
		constants.ConnectionTypePostgres:  newPostgres,
		constants.ConnectionTypeSqlServer: newSqlServer,
		constants.ConnectionTypeSnowflake: newSnowflake,
		constants.ConnectionTypeNetezza:   newNetezza,
		constants.DriverGeneric:           newGeneric,
		constants.DriverMock:              newMock,
	}
)

// Register adds or replaces the factory for name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Get returns a new Driver registered under name.
func Get(name string) (Driver, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver %q", name)
	}
	return f(), nil
}

// Names returns the registered driver names, sorted.
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
