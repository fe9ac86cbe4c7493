package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReturnCode is the outcome of an execution.
type ReturnCode uint8

const (
	ReturnOK ReturnCode = iota
	ReturnError
	ReturnNoConfig
	ReturnConfigNotInitialized
)

func (r ReturnCode) String() string {
	return [...]string{"OK", "ERROR", "NO_CONFIG", "CONFIG_NOT_INITIALIZED"}[r]
}

func (r ReturnCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// ExitCode maps the return code to a process exit status.
func (r ReturnCode) ExitCode() int {
	return int(r)
}

// ExecutionError carries the code that was running when an error occurred.
type ExecutionError struct {
	Scenario string
	Block    string
	LastCode string
	LastLine int
	FileName string
	Err      error
}

func (e *ExecutionError) Error() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("scenario %v", e.Scenario))
	if e.Block != "" {
		s.WriteString(fmt.Sprintf(" block %v", e.Block))
	}
	if e.LastLine > 0 {
		s.WriteString(fmt.Sprintf(" line %v", e.LastLine))
	}
	s.WriteString(": ")
	s.WriteString(e.Err.Error())
	return s.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NoConfigError is returned when a connection named by a scenario has no configuration.
type NoConfigError struct {
	Connection string
	Err        error
}

func (e *NoConfigError) Error() string {
	return fmt.Sprintf("no configuration for connection %q: %v", e.Connection, e.Err)
}

func (e *NoConfigError) Unwrap() error {
	return e.Err
}
