package toolexec

import "fmt"

// Error codes reported by the CLI for tool failures.
const (
	ErrCodeToolNotFound  = "E203"
	ErrCodeToolExecution = "E204"
)

// ToolNotFoundError is returned when the executable cannot be started
// because it does not exist.
type ToolNotFoundError struct {
	Tool   string
	Path   string
	EnvVar string
	Origin Origin
	Err    error
}

func (e *ToolNotFoundError) Error() string {
	switch e.Origin {
	case OriginEnv:
		return fmt.Sprintf("could not find '%s' binary at '%s', set via the %s env variable", e.Tool, e.Path, e.EnvVar)
	case OriginConfig:
		return fmt.Sprintf("could not find '%s' binary at '%s', set in the toolchain config", e.Tool, e.Path)
	}
	if e.EnvVar == "" {
		return fmt.Sprintf("could not find '%s' binary in your $PATH", e.Tool)
	}
	return fmt.Sprintf("could not find '%s' binary in your $PATH; set an explicit path with the %s env variable", e.Tool, e.EnvVar)
}

func (e *ToolNotFoundError) Unwrap() error { return e.Err }

// Code returns the CLI error code.
func (e *ToolNotFoundError) Code() string { return ErrCodeToolNotFound }

// FromOverride reports whether the missing path was explicitly configured.
func (e *ToolNotFoundError) FromOverride() bool { return e.Origin != OriginDefault }

// ToolExecutionError is returned when the tool ran and exited with a
// non-zero status. Only the first stderr line is part of the message; the
// full stderr is kept in Stderr for logging.
type ToolExecutionError struct {
	Tool      string
	Path      string
	ExitCode  int
	FirstLine string
	Stderr    string
	Err       error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("an error occurred while calling '%s': %s", e.Tool, e.FirstLine)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Code returns the CLI error code.
func (e *ToolExecutionError) Code() string { return ErrCodeToolExecution }
