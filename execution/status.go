package execution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/relloyd/etl-engine/engine"
)

type Status uint32

const (
	StatusMissing Status = iota
	StatusStarting
	StatusRunning
	StatusComplete
	StatusCompleteWithError
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return ""
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusCompleteWithError:
		return "complete with error"
	case StatusShutdown:
		return "shutdown by user"
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s > StatusShutdown {
		return nil, fmt.Errorf("unhandled Status value %v in custom MarshalJSON() conversion", uint32(s))
	}
	return json.Marshal(s.String())
}

// ExecutionStatus is the progress of one launched execution.
// Response is set once the execution has finished.
type ExecutionStatus struct {
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
	Status    Status           `json:"executionStatus"`
	Error     string           `json:"error"`
	Response  *engine.Response `json:"response,omitempty"`
}

func (s *ExecutionStatus) IsFinished() bool {
	if s.Status == StatusStarting || s.Status == StatusRunning { // if the execution is running...
		return false
	}
	return true
}
