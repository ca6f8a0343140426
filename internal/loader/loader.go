// Package loader turns CUE source programs into graph IR.
//
// A program is a CUE document whose top-level field named by the module name
// (default "module") must satisfy the #Module schema embedded in this
// package. Each function becomes a FuncDefn node and each entry in a
// function's calls list becomes a call edge.
package loader

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/stagerun/internal/graphir"
)

// DefaultModuleName is the entry point looked up when none is given.
const DefaultModuleName = "module"

// MainFunction is the function every module must define.
const MainFunction = "main"

//go:embed schema.cue
var schemaSource string

// schemaFilename names the embedded schema in CUE positions.
const schemaFilename = "schema.cue"

// Options controls a single load.
type Options struct {
	// ModuleName is the top-level field holding the module.
	ModuleName string
	// Temporary marks the path as a scratch file. Errors then omit it.
	Temporary bool
}

// Loader compiles a program file into a graph.
type Loader interface {
	Load(path string, opts Options) (*graphir.Graph, error)
}

// CUELoader is the Loader for CUE programs. The zero value is ready to use.
type CUELoader struct{}

type paramDoc struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type functionDoc struct {
	Args    []paramDoc `json:"args"`
	Returns string     `json:"returns"`
	Calls   []string   `json:"calls"`
}

type moduleDoc struct {
	Kind      string                 `json:"kind"`
	Functions map[string]functionDoc `json:"functions"`
}

// Load reads path and compiles the module named by opts.ModuleName.
func (CUELoader) Load(path string, opts Options) (*graphir.Graph, error) {
	module := opts.ModuleName
	if module == "" {
		module = DefaultModuleName
	}
	shown := path
	filename := path
	if opts.Temporary {
		shown = ""
		filename = "<input>"
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &ProgramLoadError{Kind: KindLoadFailed, Module: module, Path: shown, Message: err.Error()}
	}
	return compile(src, filename, module, shown)
}

func compile(src []byte, filename, module, shown string) (*graphir.Graph, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename(schemaFilename))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling module schema: %w", err)
	}

	prog := ctx.CompileBytes(src, cue.Filename(filename))
	if err := prog.Err(); err != nil {
		return nil, cueFailure(KindLoadFailed, module, shown, err)
	}

	entry := prog.LookupPath(cue.MakePath(cue.Str(module)))
	if !entry.Exists() {
		return nil, &ProgramLoadError{Kind: KindMissingEntryPoint, Module: module, Path: shown}
	}

	unified := schema.LookupPath(cue.ParsePath("#Module")).Unify(entry)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueFailure(KindNotAModule, module, shown, err)
	}

	var doc moduleDoc
	if err := unified.Decode(&doc); err != nil {
		return nil, cueFailure(KindNotAModule, module, shown, err)
	}

	if _, ok := doc.Functions[MainFunction]; !ok {
		return nil, &ProgramLoadError{Kind: KindMissingMain, Module: module, Path: shown, Pos: entry.Pos()}
	}
	return build(module, shown, doc, entry)
}

// build lays out the graph with functions in name order so node ids do not
// depend on map iteration.
func build(module, shown string, doc moduleDoc, entry cue.Value) (*graphir.Graph, error) {
	names := make([]string, 0, len(doc.Functions))
	for name := range doc.Functions {
		names = append(names, name)
	}
	slices.Sort(names)

	g := graphir.New(module)
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		fn := doc.Functions[name]
		var params []graphir.Param
		for _, a := range fn.Args {
			params = append(params, graphir.Param{Name: a.Name, Type: a.Type})
		}
		ids[name] = g.AddFunc(name, params, fn.Returns)
	}

	for _, name := range names {
		for _, callee := range doc.Functions[name].Calls {
			dst, ok := ids[callee]
			if !ok {
				pos := entry.LookupPath(cue.MakePath(cue.Str("functions"), cue.Str(name), cue.Str("calls"))).Pos()
				return nil, &ProgramLoadError{
					Kind:    KindLoadFailed,
					Module:  module,
					Path:    shown,
					Message: fmt.Sprintf("function %q calls undefined function %q", name, callee),
					Pos:     pos,
				}
			}
			g.AddCall(ids[name], dst)
		}
	}
	return g, nil
}
