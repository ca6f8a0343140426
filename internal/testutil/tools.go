// Package testutil provides fixtures shared by package tests: fake external
// tools written as shell scripts, and deterministic id and time sources.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteScript writes an executable /bin/sh script named name into dir and
// returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool %s: %v", name, err)
	}
	return path
}

// ToolBox is a temp directory of fake tools that share a call log.
type ToolBox struct {
	t   testing.TB
	Dir string
	Log string
}

// NewToolBox creates an empty ToolBox in a fresh temp directory.
func NewToolBox(t testing.TB) *ToolBox {
	t.Helper()
	dir := t.TempDir()
	return &ToolBox{t: t, Dir: dir, Log: filepath.Join(dir, "calls.log")}
}

// Add writes a fake tool that appends "name arg..." to the call log and then
// runs body.
func (b *ToolBox) Add(name, body string) string {
	b.t.Helper()
	record := fmt.Sprintf("echo \"%s $*\" >> '%s'\n", name, b.Log)
	return WriteScript(b.t, b.Dir, name, record+body)
}

// Echo writes a fake tool that prints out on stdout and exits 0.
func (b *ToolBox) Echo(name, out string) string {
	b.t.Helper()
	return b.Add(name, fmt.Sprintf("printf '%%s' '%s'\n", shellQuote(out)))
}

// Fail writes a fake tool that prints stderr and exits with code.
func (b *ToolBox) Fail(name, stderr string, code int) string {
	b.t.Helper()
	return b.Add(name, fmt.Sprintf("printf '%%s' '%s' >&2\nexit %d\n", shellQuote(stderr), code))
}

// Calls returns the recorded invocations in order, one "name args" string
// per call.
func (b *ToolBox) Calls() []string {
	b.t.Helper()
	data, err := os.ReadFile(b.Log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		b.t.Fatalf("reading call log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return lines
}

// Called returns the tool names in call order.
func (b *ToolBox) Called() []string {
	calls := b.Calls()
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		name, _, _ := strings.Cut(c, " ")
		names = append(names, name)
	}
	return names
}

// shellQuote escapes s for use inside single quotes.
func shellQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
