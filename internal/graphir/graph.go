package graphir

import "fmt"

// Version is the graph document schema version.
const Version = "1"

// Node operations.
const (
	OpModule   = "Module"
	OpFuncDefn = "FuncDefn"
)

// Edge kinds.
const (
	EdgeContains = "contains"
	EdgeCall     = "call"
)

// Param is a named, typed function argument.
type Param struct {
	Name string
	Type string
}

// Node is a vertex of the graph.
type Node struct {
	ID      int64
	Op      string
	Name    string
	Params  []Param
	Returns string
}

// Edge connects two nodes.
type Edge struct {
	Src  int64
	Dst  int64
	Kind string
}

// Graph is a compiled module.
type Graph struct {
	Version string
	Name    string
	Nodes   []Node
	Edges   []Edge
}

// New returns a graph holding only the module node.
func New(name string) *Graph {
	return &Graph{
		Version: Version,
		Name:    name,
		Nodes:   []Node{{ID: 0, Op: OpModule, Name: name}},
	}
}

// AddFunc appends a FuncDefn node contained by the module and returns its id.
func (g *Graph) AddFunc(name string, params []Param, returns string) int64 {
	id := int64(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{ID: id, Op: OpFuncDefn, Name: name, Params: params, Returns: returns})
	g.Edges = append(g.Edges, Edge{Src: 0, Dst: id, Kind: EdgeContains})
	return id
}

// AddCall records that src calls dst.
func (g *Graph) AddCall(src, dst int64) {
	g.Edges = append(g.Edges, Edge{Src: src, Dst: dst, Kind: EdgeCall})
}

// Func returns the FuncDefn node with the given name.
func (g *Graph) Func(name string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Op == OpFuncDefn && n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Calls returns the names of the functions called by the named function, in
// edge order.
func (g *Graph) Calls(name string) []string {
	src, ok := g.Func(name)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range g.Edges {
		if e.Kind == EdgeCall && e.Src == src.ID {
			out = append(out, g.Nodes[e.Dst].Name)
		}
	}
	return out
}

// Validate checks the structural invariants: node ids equal their index,
// node 0 is the only module node, and every edge joins existing nodes.
func (g *Graph) Validate() error {
	if g.Version != Version {
		return fmt.Errorf("unsupported graph version %q", g.Version)
	}
	if len(g.Nodes) == 0 || g.Nodes[0].Op != OpModule {
		return fmt.Errorf("node 0 must be the %s node", OpModule)
	}
	for i, n := range g.Nodes {
		if n.ID != int64(i) {
			return fmt.Errorf("node %d has id %d", i, n.ID)
		}
		switch {
		case i > 0 && n.Op == OpModule:
			return fmt.Errorf("node %d: only node 0 may be a %s", i, OpModule)
		case n.Op != OpModule && n.Op != OpFuncDefn:
			return fmt.Errorf("node %d: unknown op %q", i, n.Op)
		}
	}
	for i, e := range g.Edges {
		if e.Src < 0 || e.Src >= int64(len(g.Nodes)) || e.Dst < 0 || e.Dst >= int64(len(g.Nodes)) {
			return fmt.Errorf("edge %d (%d -> %d) references a missing node", i, e.Src, e.Dst)
		}
		if e.Kind != EdgeContains && e.Kind != EdgeCall {
			return fmt.Errorf("edge %d: unknown kind %q", i, e.Kind)
		}
	}
	return nil
}

// Value converts the graph into its document tree.
func (g *Graph) Value() Value {
	nodes := make(Array, len(g.Nodes))
	for i, n := range g.Nodes {
		params := make(Array, len(n.Params))
		for j, p := range n.Params {
			params[j] = Object{"name": String(p.Name), "type": String(p.Type)}
		}
		nodes[i] = Object{
			"id":      Int(n.ID),
			"op":      String(n.Op),
			"name":    String(n.Name),
			"params":  params,
			"returns": String(n.Returns),
		}
	}
	edges := make(Array, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = Object{"src": Int(e.Src), "dst": Int(e.Dst), "kind": String(e.Kind)}
	}
	return Object{
		"version": String(g.Version),
		"name":    String(g.Name),
		"nodes":   nodes,
		"edges":   edges,
	}
}
