// Package toolexec locates and runs the external programs that perform each
// stage transition.
//
// A Tool is resolved once, when the toolchain is built: an override path from
// the environment (or the configuration file) wins over the default name,
// which is looked up on $PATH when the command starts. Run executes the tool,
// captures stdout and stderr, and classifies failures into ToolNotFoundError
// and ToolExecutionError. On success the captured stdout is the output
// payload; there is no further parsing.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/roach88/stagerun/internal/stage"
)

// Origin records where a tool path came from.
type Origin int

const (
	// OriginDefault means the default name is resolved against $PATH.
	OriginDefault Origin = iota
	// OriginEnv means the path was set by the tool's environment variable.
	OriginEnv
	// OriginConfig means the path was set in the toolchain configuration file.
	OriginConfig
)

func (o Origin) String() string {
	switch o {
	case OriginEnv:
		return "env"
	case OriginConfig:
		return "config"
	default:
		return "default"
	}
}

// Tool is a resolved external executable.
type Tool struct {
	// Name is the default executable name, e.g. "mlir-translate".
	Name string
	// EnvVar is the environment variable that overrides the path.
	EnvVar string
	// Path is the executable that will be run.
	Path string
	// Origin tells whether Path is the default name or an override.
	Origin Origin
	// ExtraArgs are appended after the translator's own flags.
	ExtraArgs []string
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Resolve builds a Tool for name, honouring an override in envVar.
// An empty override is ignored.
func Resolve(name, envVar string, lookup LookupFunc) Tool {
	t := Tool{Name: name, EnvVar: envVar, Path: name, Origin: OriginDefault}
	if envVar == "" || lookup == nil {
		return t
	}
	if p, ok := lookup(envVar); ok && strings.TrimSpace(p) != "" {
		t.Path = p
		t.Origin = OriginEnv
	}
	return t
}

// FromOverride reports whether the path was explicitly configured.
func (t Tool) FromOverride() bool {
	return t.Origin != OriginDefault
}

// WithPath returns a copy of t using path, marked with the given origin.
func (t Tool) WithPath(path string, origin Origin) Tool {
	t.Path = path
	t.Origin = origin
	return t
}

// Command returns the full argument vector Run would execute.
func (t Tool) Command(args ...string) []string {
	argv := make([]string, 0, 1+len(args)+len(t.ExtraArgs))
	argv = append(argv, t.Path)
	argv = append(argv, args...)
	argv = append(argv, t.ExtraArgs...)
	return argv
}

// Run executes the tool with args and returns its standard output.
//
// enc selects the capture mode: Textual output has CRLF line endings
// normalized to LF, Binary output is returned untouched.
func (t Tool) Run(ctx context.Context, enc stage.Encoding, args ...string) ([]byte, error) {
	argv := t.Command(args...)
	slog.Info("executing command", "tool", t.Name, "command", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, t.classify(err, stderr.Bytes())
	}

	out := stdout.Bytes()
	if enc == stage.Textual {
		out = normalizeNewlines(out)
	}
	return out, nil
}

// classify maps an exec failure onto the tool error types.
func (t Tool) classify(err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &ToolNotFoundError{Tool: t.Name, Path: t.Path, EnvVar: t.EnvVar, Origin: t.Origin, Err: err}
	}

	full := string(normalizeNewlines(stderr))
	execErr := &ToolExecutionError{
		Tool:      t.Name,
		Path:      t.Path,
		ExitCode:  -1,
		FirstLine: firstLine(full),
		Stderr:    full,
		Err:       err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	} else if execErr.FirstLine == "" {
		execErr.FirstLine = err.Error()
	}
	if full != "" {
		slog.Debug("tool stderr", "tool", t.Name, "exit_code", execErr.ExitCode, "stderr", full)
	}
	return execErr
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func normalizeNewlines(b []byte) []byte {
	if !bytes.Contains(b, []byte("\r\n")) {
		return b
	}
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}
