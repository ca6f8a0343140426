package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stagerun/internal/testutil"
	"github.com/roach88/stagerun/internal/translate"
)

const testProgram = "testdata/prog.cue"

// fakeClang writes a shell program that greets with its arguments.
const fakeClang = `out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
printf '#!/bin/sh\necho hello "$@"\n' > "$out"
`

// fakeTools installs one fake per external tool and returns the env
// overrides pointing at them.
func fakeTools(box *testutil.ToolBox) map[string]string {
	return map[string]string{
		translate.EnvHugrMLIRTranslate: box.Echo("hugr-mlir-translate", "func @main() {}"),
		translate.EnvHugrMLIROpt:       box.Echo("hugr-mlir-opt", "llvm.func @main()"),
		translate.EnvMLIRTranslate:     box.Echo("mlir-translate", "define i64 @main()"),
		translate.EnvLLC:               box.Echo("llc", "\x7fELF-object"),
		translate.EnvClang:             box.Add("clang", fakeClang),
	}
}

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

type invocation struct {
	env   map[string]string
	stdin string
}

// execute runs the root command in-process with a fixed environment.
func (in invocation) execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Lookup: envOf(in.env)})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(in.stdin))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func execute(t *testing.T, env map[string]string, args ...string) (string, string, error) {
	t.Helper()
	return invocation{env: env}.execute(t, args...)
}

// errorLines returns the "Error [...]" lines written by Main.
func errorLines(stderr string) []string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(line, "Error [") {
			lines = append(lines, line)
		}
	}
	return lines
}

// isolateTemp points TMPDIR at a fresh directory and returns it.
func isolateTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	return dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	require.Empty(t, names, "temporary files left behind")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
