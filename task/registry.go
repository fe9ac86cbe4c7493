package task

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relloyd/etl-engine/constants"
)

// Factory creates an OnTask.
type Factory func() OnTask

var (
	mu       sync.RWMutex
	registry = map[string]Factory{
		constants.TaskClassSqlExec:     func() OnTask { return &SqlExec{} },
		constants.TaskClassJsonLogic:   func() OnTask { return &JsonLogicFilter{} },
		constants.TaskClassSetVariable: func() OnTask { return &SetVariable{} },
		constants.TaskClassLog:         func() OnTask { return &Log{} },
		constants.TaskClassHalt:        func() OnTask { return &HaltTask{} },
	}
)

// Register adds or replaces the factory for a task class.
func Register(class string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[class] = f
}

// Get returns a new task of the given class.
func Get(class string) (OnTask, error) {
	mu.RLock()
	f, ok := registry[class]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown task class %q", class)
	}
	return f(), nil
}

// Names returns the registered task classes, sorted.
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
