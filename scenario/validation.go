package scenario

import (
	"fmt"
	"strings"
)

// ErrorCode identifies a validation failure.
type ErrorCode string

const (
	ErrMissingName           ErrorCode = "MISSING_NAME"
	ErrMissingConnection     ErrorCode = "MISSING_CONNECTION"
	ErrMissingDriver         ErrorCode = "MISSING_DRIVER"
	ErrMissingObjectName     ErrorCode = "MISSING_OBJECT_NAME"
	ErrMissingLoadKey        ErrorCode = "MISSING_LOAD_KEY"
	ErrMissingTaskClass      ErrorCode = "MISSING_TASK_CLASS"
	ErrUnknownSource         ErrorCode = "UNKNOWN_SOURCE"
	ErrMandatoryStream       ErrorCode = "MANDATORY_SOURCE_STREAMED"
	ErrBadExceptionMask      ErrorCode = "BAD_EXCEPTION_MASK"
	ErrMissingLoopCode       ErrorCode = "MISSING_LOOP_CODE"
	ErrMissingLoopConnection ErrorCode = "MISSING_LOOP_CONNECTION"
)

// ValidationError is one failure found by Validate.
type ValidationError struct {
	Code  ErrorCode
	Block string
	Text  string
}

func (v ValidationError) String() string {
	if v.Block == "" {
		return fmt.Sprintf("%v: %v", v.Code, v.Text)
	}
	return fmt.Sprintf("%v: %v: %v", v.Code, v.Block, v.Text)
}

// ValidationResult collects validation failures rather than raising them.
type ValidationResult struct {
	Errors []ValidationError
}

func (r *ValidationResult) add(code ErrorCode, block string, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationError{Code: code, Block: block, Text: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Codes returns the error codes in the order they were found.
func (r *ValidationResult) Codes() []ErrorCode {
	retval := make([]ErrorCode, len(r.Errors))
	for i, e := range r.Errors {
		retval[i] = e.Code
	}
	return retval
}

func (r *ValidationResult) Error() string {
	s := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		s[i] = e.String()
	}
	return strings.Join(s, "; ")
}

// Validate checks the structure of s and its ready inner scenarios.
func (s *Scenario) Validate() *ValidationResult {
	r := &ValidationResult{}
	s.validate(r)
	return r
}

func (s *Scenario) validate(r *ValidationResult) {
	if s.Name == "" {
		r.add(ErrMissingName, "", "scenario has no name")
	}
	if s.Loop != nil {
		if s.Loop.Code == "" {
			r.add(ErrMissingLoopCode, s.Name, "loop has no code")
		}
		if !s.Loop.IsScript() && s.Loop.ConnectionName == "" {
			r.add(ErrMissingLoopConnection, s.Name, "SQL loop has no connection")
		}
	}
	for _, src := range s.SourceList() {
		validateBlock(r, s, &src.BlockCore, src.SQL != "")
		if src.LinkedSourceName != "" {
			if _, ok := s.GetSource(src.LinkedSourceName); !ok {
				r.add(ErrUnknownSource, src.Name, "linked source %q not found", src.LinkedSourceName)
			}
		}
	}
	for _, d := range s.DestinationList() {
		validateBlock(r, s, &d.BlockCore, !d.IsWait())
		if d.IsWait() {
			continue
		}
		if d.ObjectName == "" && d.Writer == "" {
			r.add(ErrMissingObjectName, d.Name, "destination has no object name")
		}
		if d.LoadAction != LoadInsert && len(d.LoadKey) == 0 {
			r.add(ErrMissingLoadKey, d.Name, "%v needs a load key", d.LoadAction)
		}
		if d.SourceName != "" {
			src, ok := s.GetSource(d.SourceName)
			if !ok {
				r.add(ErrUnknownSource, d.Name, "bound source %q not found", d.SourceName)
			} else if src.Mandatory && d.Stream {
				r.add(ErrMandatoryStream, d.Name, "mandatory source %q cannot be streamed", src.Name)
			}
		}
	}
	for _, inner := range s.Execute {
		if inner.IsReady() {
			inner.validate(r)
		} else if inner.Name == "" {
			r.add(ErrMissingName, s.Name, "inner scenario has no name")
		}
	}
}

func validateBlock(r *ValidationResult, s *Scenario, b *BlockCore, needsConnection bool) {
	if b.Name == "" {
		r.add(ErrMissingName, s.Name, "block has no name")
	}
	if needsConnection && b.ConnectionName == "" {
		r.add(ErrMissingConnection, b.Name, "no connection name")
	}
	if needsConnection && b.DriverName == "" && s.DriverName == "" {
		r.add(ErrMissingDriver, b.Name, "no driver and no scenario default driver")
	}
	if b.Exception != nil {
		if err := b.Exception.Compile(); err != nil {
			r.add(ErrBadExceptionMask, b.Name, "%v", err)
		}
	}
	for _, t := range b.Tasks {
		if t.Class == "" {
			r.add(ErrMissingTaskClass, b.Name, "task %q has no class", t.Name)
		}
	}
}
