package stage

import "fmt"

// Error codes reported by the CLI for stage errors.
const (
	ErrCodeInvalidStage        = "E201"
	ErrCodeUnsupportedEncoding = "E202"
)

// InvalidStageError is returned when an artifact is handed to a translator
// that expects a different input stage. It indicates a pipeline assembly bug
// or caller misuse.
type InvalidStageError struct {
	Got      Stage
	Expected Stage
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("expected %s artifact, got %s", e.Expected, e.Got)
}

// Code returns the CLI error code.
func (e *InvalidStageError) Code() string { return ErrCodeInvalidStage }

// UnsupportedEncodingError is returned when a stage, or the translator
// producing it, cannot use the requested encoding.
type UnsupportedEncodingError struct {
	Stage    Stage
	Encoding Encoding
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("%s does not support %s encoding", e.Stage, e.Encoding)
}

// Code returns the CLI error code.
func (e *UnsupportedEncodingError) Code() string { return ErrCodeUnsupportedEncoding }
