package loader

import (
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrCodeProgramLoad is the CLI error code for every ProgramLoadError.
const ErrCodeProgramLoad = "E205"

// Kind classifies a program load failure.
type Kind string

const (
	// KindLoadFailed covers unreadable files, CUE syntax and evaluation
	// errors, and calls to undefined functions.
	KindLoadFailed Kind = "load_failed"
	// KindMissingEntryPoint means no top-level field carries the module name.
	KindMissingEntryPoint Kind = "missing_entry_point"
	// KindNotAModule means the entry point does not satisfy #Module.
	KindNotAModule Kind = "not_a_module"
	// KindMissingMain means the module defines no main function.
	KindMissingMain Kind = "missing_main"
	// KindBinarySource means the source artifact was not textual.
	KindBinarySource Kind = "binary_source"
)

// ProgramLoadError reports why a source program could not become a graph.
// Path is empty when the program came from standard input or memory.
type ProgramLoadError struct {
	Kind    Kind
	Module  string
	Path    string
	Message string
	Pos     token.Pos
}

func (e *ProgramLoadError) Error() string {
	var msg string
	switch e.Kind {
	case KindMissingEntryPoint:
		msg = fmt.Sprintf("program%s does not define %q", e.in(), e.Module)
	case KindNotAModule:
		msg = fmt.Sprintf("%q%s is not a module: %s", e.Module, e.in(), e.Message)
	case KindMissingMain:
		msg = fmt.Sprintf("module %q%s has no main function", e.Module, e.in())
	case KindBinarySource:
		msg = "source programs must be textual, got binary"
	default:
		msg = fmt.Sprintf("failed to load program%s: %s", e.in(), e.Message)
	}
	if e.Path != "" && e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

func (e *ProgramLoadError) in() string {
	if e.Path == "" {
		return ""
	}
	return " " + e.Path
}

// Code returns the CLI error code.
func (e *ProgramLoadError) Code() string { return ErrCodeProgramLoad }

// cueFailure converts a CUE error into a ProgramLoadError, keeping the first
// error and its first position inside the program. Positions in the embedded
// schema mean nothing to the user and are skipped.
func cueFailure(kind Kind, module, path string, err error) *ProgramLoadError {
	ple := &ProgramLoadError{Kind: kind, Module: module, Path: path, Message: err.Error()}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return ple
	}
	first := errs[0]
	ple.Message = first.Error()
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() != schemaFilename {
			ple.Pos = pos
			break
		}
	}
	return ple
}
