package translate

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/graphir"
	"github.com/roach88/stagerun/internal/loader"
	"github.com/roach88/stagerun/internal/stage"
	"github.com/roach88/stagerun/internal/testutil"
	"github.com/roach88/stagerun/internal/toolexec"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

const evenOdd = `module: functions: {
	is_even: {args: [{name: "x", type: "int"}], returns: "bool", calls: ["is_odd"]}
	is_odd: {args: [{name: "x", type: "int"}], returns: "bool", calls: ["is_even"]}
	main: {returns: "bool", calls: ["is_even", "is_odd"]}
}`

func tool(name, path string) toolexec.Tool {
	return toolexec.Tool{Name: name, Path: path, Origin: toolexec.OriginEnv}
}

// isolateTemp points the temp directory at a fresh dir and returns it.
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
		names = append(names, e.Name())
	}
	assert.Empty(t, names, "work files left behind")
}

func TestTranslators_RejectWrongStage(t *testing.T) {
	for _, tr := range DefaultToolchain(nil).Translators() {
		for _, s := range stage.All {
			if s == tr.InputStage() {
				continue
			}
			for _, enc := range s.Encodings() {
				t.Run(Name(tr)+"/"+s.String()+"/"+enc.String(), func(t *testing.T) {
					in := artifact.New(s, enc, []byte("payload"))
					_, err := tr.Run(context.Background(), in, Options{})
					require.Error(t, err)

					var ise *stage.InvalidStageError
					require.ErrorAs(t, err, &ise)
					assert.Equal(t, s, ise.Got)
					assert.Equal(t, tr.InputStage(), ise.Expected)
				})
			}
		}
	}
}

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		name     string
		stage    stage.Stage
		override stage.Encoding
		dest     string
		want     stage.Encoding
	}{
		{"default", stage.LoweredIR, stage.Unknown, "", stage.Textual},
		{"from destination", stage.LoweredIR, stage.Unknown, "out.mlirbc", stage.Binary},
		{"override wins", stage.LoweredIR, stage.Textual, "out.mlirbc", stage.Textual},
		{"unknown extension falls back", stage.GraphIR, stage.Unknown, "out.txt", stage.Textual},
		{"binary default", stage.Object, stage.Unknown, "", stage.Binary},
		{"executable without extension", stage.Executable, stage.Unknown, "prog", stage.Binary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEncoding(tt.stage, tt.override, tt.dest))
		})
	}
}

func TestUnsupportedEncoding_BeforeAnyTool(t *testing.T) {
	box := testutil.NewToolBox(t)
	tmp := isolateTemp(t)

	tests := []struct {
		name string
		tr   Translator
		in   *artifact.Handle
		opts Options
	}{
		{"object forced textual", &ObjectCompiler{Tool: tool("llc", box.Echo("llc", "obj"))},
			artifact.NewText(stage.LowLevelIR, "define i32 @main()"), Options{Encoding: stage.Textual}},
		{"executable forced textual", &Linker{Tool: tool("clang", box.Echo("clang", ""))},
			artifact.New(stage.Object, stage.Binary, []byte{0x7f}), Options{Encoding: stage.Textual}},
		{"dialect forced binary", &GraphTranslator{Tool: tool("hugr-mlir-translate", box.Echo("hugr-mlir-translate", ""))},
			artifact.NewText(stage.GraphIR, "{}"), Options{Encoding: stage.Binary}},
		{"llvm destination bitcode", &LLVMTranslator{Tool: tool("mlir-translate", box.Echo("mlir-translate", ""))},
			artifact.NewText(stage.LoweredIR, "module {}"), Options{Destination: filepath.Join(tmp, "out.bc")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tr.Run(context.Background(), tt.in, tt.opts)
			assert.ErrorAs(t, err, new(*stage.UnsupportedEncodingError))
		})
	}
	assert.Empty(t, box.Calls(), "no tool may run")
	assertEmptyDir(t, tmp)
}

func TestProgramCompiler(t *testing.T) {
	for _, enc := range []stage.Encoding{stage.Textual, stage.Binary} {
		t.Run(enc.String(), func(t *testing.T) {
			tmp := isolateTemp(t)
			dest := filepath.Join(t.TempDir(), "out")

			pc := &ProgramCompiler{}
			out, err := pc.Run(context.Background(), artifact.NewText(stage.Source, evenOdd),
				Options{Destination: dest, Encoding: enc})
			require.NoError(t, err)
			assert.Equal(t, stage.GraphIR, out.Stage())
			assert.Equal(t, enc, out.Encoding())

			payload, err := out.Payload()
			require.NoError(t, err)
			g, err := graphir.Decode(payload, enc)
			require.NoError(t, err)
			assert.Equal(t, []string{"is_even", "is_odd"}, g.Calls("main"))

			written, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, payload, written)
			assertEmptyDir(t, tmp)
		})
	}
}

func TestProgramCompiler_EncodingFromDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "graph.msgpack")
	out, err := (&ProgramCompiler{}).Run(context.Background(), artifact.NewText(stage.Source, evenOdd),
		Options{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, stage.Binary, out.Encoding())
}

func TestProgramCompiler_ModuleName(t *testing.T) {
	src := artifact.NewText(stage.Source, `app: functions: main: {}`)

	_, err := (&ProgramCompiler{}).Run(context.Background(), src, Options{})
	assert.Equal(t, loader.KindMissingEntryPoint, loadKind(t, err))

	out, err := (&ProgramCompiler{ModuleName: "app"}).Run(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Equal(t, stage.GraphIR, out.Stage())

	_, err = (&ProgramCompiler{ModuleName: "app"}).Run(context.Background(), src, Options{ModuleName: "other"})
	assert.Equal(t, loader.KindMissingEntryPoint, loadKind(t, err))
}

func loadKind(t *testing.T, err error) loader.Kind {
	t.Helper()
	var ple *loader.ProgramLoadError
	require.ErrorAs(t, err, &ple)
	return ple.Kind
}

func TestProgramCompiler_BinarySource(t *testing.T) {
	_, err := (&ProgramCompiler{}).Run(context.Background(),
		artifact.New(stage.Source, stage.Binary, []byte("module: {}")), Options{})
	assert.Equal(t, loader.KindBinarySource, loadKind(t, err))
}

func TestProgramCompiler_TempSourceHidesPath(t *testing.T) {
	_, err := (&ProgramCompiler{}).Run(context.Background(),
		artifact.NewText(stage.Source, `module: functions: f: {}`), Options{})
	require.Error(t, err)
	assert.Equal(t, `module "module" has no main function`, err.Error())
}

func TestGraphTranslator(t *testing.T) {
	box := testutil.NewToolBox(t)
	gt := &GraphTranslator{Tool: tool("hugr-mlir-translate",
		box.Echo("hugr-mlir-translate", "func @main() {}\nfunc @helper() {}"))}

	out, err := gt.Run(context.Background(), encodedGraph(t, stage.Textual), Options{})
	require.NoError(t, err)
	text, err := out.Text()
	require.NoError(t, err)
	assert.Equal(t, "func public @main() {}\nfunc @helper() {}", text)
	assert.Equal(t, stage.DialectIR, out.Stage())

	_, err = gt.Run(context.Background(), encodedGraph(t, stage.Binary), Options{})
	require.NoError(t, err)

	calls := box.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "--hugr-json-to-mlir ")
	assert.True(t, strings.HasSuffix(calls[0], ".json"), calls[0])
	assert.Contains(t, calls[1], "--hugr-rmp-to-mlir ")
	assert.True(t, strings.HasSuffix(calls[1], ".msgpack"), calls[1])
}

func encodedGraph(t *testing.T, enc stage.Encoding) *artifact.Handle {
	t.Helper()
	g := graphir.New("module")
	g.AddFunc("main", nil, "int")
	data, err := graphir.Encode(g, enc)
	require.NoError(t, err)
	return artifact.New(stage.GraphIR, enc, data)
}

func TestGraphTranslator_MalformedGraphNeverReachesTool(t *testing.T) {
	tests := []struct {
		name string
		in   func(t *testing.T) *artifact.Handle
		path bool
	}{
		{"truncated json", func(*testing.T) *artifact.Handle {
			return artifact.NewText(stage.GraphIR, `{"nodes":`)
		}, false},
		{"not a graph", func(*testing.T) *artifact.Handle {
			return artifact.NewText(stage.GraphIR, "{}")
		}, false},
		{"bad msgpack", func(*testing.T) *artifact.Handle {
			return artifact.New(stage.GraphIR, stage.Binary, []byte{0xc1})
		}, false},
		{"file", func(t *testing.T) *artifact.Handle {
			path := filepath.Join(t.TempDir(), "g.json")
			require.NoError(t, os.WriteFile(path, []byte(`{"version":"1","name":"m","nodes":[],"edges":[]}`), 0o644))
			return artifact.FromPath(stage.GraphIR, stage.Textual, path)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := testutil.NewToolBox(t)
			tmp := isolateTemp(t)
			gt := &GraphTranslator{Tool: tool("hugr-mlir-translate", box.Echo("hugr-mlir-translate", "func @main() {}"))}

			in := tt.in(t)
			_, err := gt.Run(context.Background(), in, Options{})
			var de *graphir.DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, graphir.ErrCodeMalformedGraph, de.Code())
			assert.Equal(t, in.Encoding(), de.Encoding)
			if tt.path {
				assert.Equal(t, in.Path(), de.Path)
				assert.Contains(t, err.Error(), in.Path())
			}
			assert.Empty(t, box.Calls())
			assertEmptyDir(t, tmp)
		})
	}
}

func TestDialectLowerer_EmitsBytecodeForBinary(t *testing.T) {
	box := testutil.NewToolBox(t)
	dl := &DialectLowerer{Tool: tool("hugr-mlir-opt", box.Echo("hugr-mlir-opt", "ML\xefR"))}

	dest := filepath.Join(t.TempDir(), "lowered.mlirbc")
	out, err := dl.Run(context.Background(), artifact.NewText(stage.DialectIR, "module {}"), Options{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, stage.Binary, out.Encoding())

	_, err = dl.Run(context.Background(), artifact.NewText(stage.DialectIR, "module {}"), Options{})
	require.NoError(t, err)

	calls := box.Calls()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasSuffix(calls[0], "--lower-hugr --emit-bytecode"), calls[0])
	assert.True(t, strings.HasSuffix(calls[1], "--lower-hugr"), calls[1])
}

func TestObjectCompiler_UsesBackingFile(t *testing.T) {
	box := testutil.NewToolBox(t)
	tmp := isolateTemp(t)
	oc := &ObjectCompiler{Tool: tool("llc", box.Echo("llc", "\x7fELF"))}

	src := filepath.Join(t.TempDir(), "prog.ll")
	require.NoError(t, os.WriteFile(src, []byte("define i32 @main()"), 0o644))

	out, err := oc.Run(context.Background(), artifact.FromPath(stage.LowLevelIR, stage.Textual, src), Options{})
	require.NoError(t, err)
	payload, err := out.Payload()
	require.NoError(t, err)
	assert.Equal(t, "\x7fELF", string(payload))
	assert.Equal(t, []string{"llc " + src + " --filetype=obj -o -"}, box.Calls())
	assertEmptyDir(t, tmp)
}

func TestWorkFileRemovedOnFailure(t *testing.T) {
	box := testutil.NewToolBox(t)
	tmp := isolateTemp(t)
	lt := &LLVMTranslator{Tool: tool("mlir-translate", box.Fail("mlir-translate", "error: bad input", 1))}

	_, err := lt.Run(context.Background(), artifact.NewText(stage.LoweredIR, "module {}"), Options{})
	assert.ErrorAs(t, err, new(*toolexec.ToolExecutionError))
	assert.Equal(t, "an error occurred while calling 'mlir-translate': error: bad input", err.Error())
	assertEmptyDir(t, tmp)
}

func TestToolNotFound_Propagates(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-llc")
	oc := &ObjectCompiler{Tool: tool("llc", missing)}
	_, err := oc.Run(context.Background(), artifact.NewText(stage.LowLevelIR, ""), Options{})

	var tnf *toolexec.ToolNotFoundError
	require.ErrorAs(t, err, &tnf)
	assert.Equal(t, missing, tnf.Path)
}

const fakeClang = `out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
printf 'linked' > "$out"
`

func TestLinker(t *testing.T) {
	box := testutil.NewToolBox(t)
	tmp := isolateTemp(t)
	lk := &Linker{
		Tool:          tool("clang", box.Add("clang", fakeClang)),
		RuntimeLibDir: "/opt/runtime/lib",
		Libs:          DefaultLinkLibs,
	}

	dest := filepath.Join(t.TempDir(), "prog")
	out, err := lk.Run(context.Background(), artifact.New(stage.Object, stage.Binary, []byte("obj")), Options{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, stage.Executable, out.Stage())

	payload, err := out.Payload()
	require.NoError(t, err)
	assert.Equal(t, "linked", string(payload))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	calls := box.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasSuffix(calls[0], "-L /opt/runtime/lib -lqir_backend -lm"), calls[0])
	assertEmptyDir(t, tmp)
}

func TestLinker_LinkArgs(t *testing.T) {
	assert.Equal(t, []string{"a.o", "-o", "a.out"}, (&Linker{}).LinkArgs("a.o", "a.out"))
	assert.Equal(t, []string{"a.o", "-o", "x", "-lfoo"}, (&Linker{Libs: []string{"foo"}}).LinkArgs("a.o", "x"))
}

func TestDefaultToolchain(t *testing.T) {
	vars := map[string]string{EnvLLC: "/opt/llc", EnvRuntimeLibs: "/opt/rt"}
	tc := DefaultToolchain(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})

	assert.Equal(t, "/opt/llc", tc.LLC.Path)
	assert.True(t, tc.LLC.FromOverride())
	assert.Equal(t, ToolClang, tc.Clang.Path)
	assert.False(t, tc.Clang.FromOverride())
	assert.Equal(t, "/opt/rt", tc.RuntimeLibDir)
	assert.Len(t, tc.Tools(), 5)

	trs := tc.Translators()
	require.NoError(t, CheckChain(trs))
	linker := trs[len(trs)-1].(*Linker)
	assert.Equal(t, DefaultLinkLibs, linker.Libs)

	assert.Nil(t, DefaultToolchain(nil).Translators()[5].(*Linker).Libs)
}

func TestCheckChain(t *testing.T) {
	trs := DefaultToolchain(nil).Translators()
	require.NoError(t, CheckChain(trs))

	assert.ErrorContains(t, CheckChain(trs[1:]), "expected 6 translators")

	swapped := append([]Translator{}, trs...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	assert.ErrorContains(t, CheckChain(swapped), "dialect-lowerer")
}

func TestName(t *testing.T) {
	assert.Equal(t, "linker", Name(&Linker{}))
	assert.Equal(t, "object-to-executable", Name(anon{}))
}

type anon struct{}

func (anon) InputStage() stage.Stage  { return stage.Object }
func (anon) OutputStage() stage.Stage { return stage.Executable }
func (anon) Run(context.Context, *artifact.Handle, Options) (*artifact.Handle, error) {
	return nil, nil
}
