// Package runner executes the final artifact of a pipeline.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/stage"
)

// ErrCodeExecution is the CLI error code for ExecutionError.
const ErrCodeExecution = "E208"

// Runner executes an executable artifact.
type Runner interface {
	Run(ctx context.Context, exe *artifact.Handle) error
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, exe *artifact.Handle) error

// Run calls f.
func (f Func) Run(ctx context.Context, exe *artifact.Handle) error { return f(ctx, exe) }

// Exec runs the executable as a child process with the given streams.
type Exec struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Args are passed to the program.
	Args []string
}

// Run materializes exe to a temp file when it is not file-backed, runs it and
// removes the temp file afterwards.
func (e *Exec) Run(ctx context.Context, exe *artifact.Handle) error {
	if exe.Stage() != stage.Executable {
		return &stage.InvalidStageError{Got: exe.Stage(), Expected: stage.Executable}
	}

	path := exe.Path()
	if !exe.FileBacked() {
		tmp, err := materialize(exe)
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	slog.Info("running executable", "path", path)
	cmd := exec.CommandContext(ctx, path, e.Args...)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Run(); err != nil {
		execErr := &ExecutionError{Path: exe.Path(), ExitCode: -1, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return execErr
	}
	return nil
}

func materialize(exe *artifact.Handle) (string, error) {
	f, err := os.CreateTemp("", "stagerun-*.out")
	if err != nil {
		return "", fmt.Errorf("creating executable file: %w", err)
	}
	path := f.Name()
	f.Close()
	if err := exe.WriteTo(path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ExecutionError reports that the final program failed to start or exited
// with a non-zero status. Path is empty for in-memory executables.
type ExecutionError struct {
	Path     string
	ExitCode int
	Err      error
}

func (e *ExecutionError) Error() string {
	name := e.Path
	if name == "" {
		name = "executable"
	}
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s exited with status %d", name, e.ExitCode)
	}
	return fmt.Sprintf("running %s: %v", name, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Code returns the CLI error code.
func (e *ExecutionError) Code() string { return ErrCodeExecution }
