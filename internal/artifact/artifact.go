// Package artifact provides the Handle type that carries compilation data
// between pipeline stages.
//
// A Handle is either resident (constructed from an in-memory payload) or
// file-backed (constructed from a path). File-backed handles load their
// payload on the first call to Payload and cache it; every later call returns
// the cached bytes without touching the filesystem again.
//
// Handles are never mutated after construction: a translator consumes one
// handle and produces a new one for the next stage.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/roach88/stagerun/internal/stage"
)

// ErrCodeDataUnavailable is the CLI error code for DataUnavailableError.
const ErrCodeDataUnavailable = "E206"

// Handle is a piece of pipeline data at a specific stage and encoding.
type Handle struct {
	stage    stage.Stage
	encoding stage.Encoding
	path     string

	once    sync.Once
	payload []byte
	loadErr error
	loaded  atomic.Bool
}

// New creates a resident handle from an in-memory payload.
// The payload is not copied; callers must not modify it afterwards.
func New(s stage.Stage, enc stage.Encoding, payload []byte) *Handle {
	h := &Handle{stage: s, encoding: enc, payload: payload}
	h.loaded.Store(true)
	return h
}

// NewText creates a resident textual handle.
func NewText(s stage.Stage, text string) *Handle {
	return New(s, stage.Textual, []byte(text))
}

// FromPath creates a file-backed handle. Nothing is read until Payload is
// called.
func FromPath(s stage.Stage, enc stage.Encoding, path string) *Handle {
	return &Handle{stage: s, encoding: enc, path: path}
}

// FromReader reads all of r as text and returns a resident handle. Only the
// Textual encoding is accepted; standard input is always read as text.
func FromReader(s stage.Stage, enc stage.Encoding, r io.Reader) (*Handle, error) {
	if enc != stage.Textual {
		return nil, &stage.UnsupportedEncodingError{Stage: s, Encoding: enc}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s input: %w", s, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("reading %s input: not valid UTF-8 text", s)
	}
	return New(s, enc, data), nil
}

// Stage returns the stage of the artifact.
func (h *Handle) Stage() stage.Stage { return h.stage }

// Encoding returns the encoding of the artifact.
func (h *Handle) Encoding() stage.Encoding { return h.encoding }

// Path returns the backing file path, or "" for resident handles.
func (h *Handle) Path() string { return h.path }

// FileBacked reports whether the handle was constructed from a path.
func (h *Handle) FileBacked() bool { return h.path != "" }

// Loaded reports whether the payload is resident in memory. It does not
// trigger a load.
func (h *Handle) Loaded() bool { return h.loaded.Load() }

// Load reads the backing file into memory if that has not happened yet.
// It is idempotent: the file is read at most once, and a failed read is
// remembered and returned again on later calls.
func (h *Handle) Load() error {
	h.once.Do(func() {
		if h.loaded.Load() {
			return
		}
		if h.path == "" {
			h.loadErr = &DataUnavailableError{Stage: h.stage}
			return
		}
		data, err := os.ReadFile(h.path)
		if err != nil {
			h.loadErr = &DataUnavailableError{Stage: h.stage, Path: h.path, Err: err}
			return
		}
		if h.encoding == stage.Textual && !utf8.Valid(data) {
			h.loadErr = &DataUnavailableError{Stage: h.stage, Path: h.path, Err: errNotText}
			return
		}
		h.payload = data
		h.loaded.Store(true)
	})
	return h.loadErr
}

// Payload returns the artifact data, loading it from the backing file on
// first use.
func (h *Handle) Payload() ([]byte, error) {
	if err := h.Load(); err != nil {
		return nil, err
	}
	return h.payload, nil
}

// Text returns the payload as a string.
func (h *Handle) Text() (string, error) {
	data, err := h.Payload()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteTo writes the payload verbatim to path. Executables are written with
// mode 0755, everything else with 0644.
func (h *Handle) WriteTo(path string) error {
	data, err := h.Payload()
	if err != nil {
		return err
	}
	perm := os.FileMode(0o644)
	if h.stage == stage.Executable {
		perm = 0o755
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s artifact to %s: %w", h.stage, path, err)
	}
	// WriteFile leaves the mode of an existing file untouched.
	if perm != 0o644 {
		if err := os.Chmod(path, perm); err != nil {
			return fmt.Errorf("writing %s artifact to %s: %w", h.stage, path, err)
		}
	}
	return nil
}

// String describes the handle for logs.
func (h *Handle) String() string {
	if h.path != "" {
		return fmt.Sprintf("%s/%s(%s)", h.stage, h.encoding, h.path)
	}
	return fmt.Sprintf("%s/%s(in-memory)", h.stage, h.encoding)
}

var errNotText = errors.New("not valid UTF-8 text")

// DataUnavailableError is returned when a handle has no payload to give:
// either nothing was attached to it or its backing file could not be read.
type DataUnavailableError struct {
	Stage stage.Stage
	Path  string
	Err   error
}

func (e *DataUnavailableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("no data available for %s artifact", e.Stage)
	}
	return fmt.Sprintf("loading %s artifact from %s: %v", e.Stage, e.Path, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// Code returns the CLI error code.
func (e *DataUnavailableError) Code() string { return ErrCodeDataUnavailable }
