package pipeline

import (
	"errors"
	"fmt"

	"github.com/roach88/stagerun/internal/stage"
)

// ErrCodePipeline is the CLI error code for assembly and invariant errors.
const ErrCodePipeline = "E207"

// AssemblyError reports a driver or request that cannot form a valid run.
type AssemblyError struct {
	Message string
}

func (e *AssemblyError) Error() string { return "invalid pipeline: " + e.Message }

// Code returns the CLI error code.
func (e *AssemblyError) Code() string { return ErrCodePipeline }

// InvariantError reports a broken internal guarantee, such as reaching the
// runner with a non-executable artifact.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return "internal error: " + e.Message }

// Code returns the CLI error code.
func (e *InvariantError) Code() string { return ErrCodePipeline }

// StepError wraps the failure of one translator with the stages it was
// converting between.
type StepError struct {
	Translator string
	From       stage.Stage
	To         stage.Stage
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s -> %s (%s): %v", e.From, e.To, e.Translator, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Code returns the code of the wrapped error, if it has one.
func (e *StepError) Code() string {
	var coded interface{ Code() string }
	if errors.As(e.Err, &coded) {
		return coded.Code()
	}
	return ""
}

// ErrCodeGeneric is reported for errors that carry no code of their own.
const ErrCodeGeneric = "E001"

// ErrorCode returns the code of err or of the first error it wraps that has
// one, else ErrCodeGeneric.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}
	return ErrCodeGeneric
}
