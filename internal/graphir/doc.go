// Package graphir defines the graph intermediate representation produced by
// the program loader and consumed by the graph-to-dialect translator.
//
// A graph is a flat list of nodes and edges. Node 0 is always the module
// node; every function becomes a FuncDefn node contained by it, and every
// call becomes a "call" edge between two FuncDefn nodes.
//
// Graphs have two encodings: canonical JSON (RFC 8785 key order, NFC
// strings, no floats) for the textual form and MessagePack for the binary
// form. Both are produced from the same Value tree, so the two encodings of a
// graph always carry the same data.
package graphir
