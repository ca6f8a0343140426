package graphir

import (
	"fmt"

	"github.com/roach88/stagerun/internal/stage"
)

// ErrCodeMalformedGraph is the CLI error code for graph IR that does not
// decode or fails validation.
const ErrCodeMalformedGraph = "E209"

// DecodeError reports a graph IR payload that could not become a Graph.
// Path is empty for payloads held in memory.
type DecodeError struct {
	Encoding stage.Encoding
	Path     string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed %s graph %s: %v", e.Encoding, e.Path, e.Err)
	}
	return fmt.Sprintf("malformed %s graph: %v", e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Code returns the CLI error code.
func (e *DecodeError) Code() string { return ErrCodeMalformedGraph }
