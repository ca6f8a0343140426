// Package stage defines the ordered compilation stages and their encodings.
//
// A compilation unit moves through a fixed sequence of representations:
//
//	source -> graph-ir -> dialect-ir -> lowered-ir -> llvm-ir -> object -> executable
//
// Stage values are ordered integers, so the usual comparison operators give
// the "before", "after" and "already reached" relations the pipeline needs.
//
// Every stage stores its artifacts either as text or as opaque binary data.
// Each stage declares a default encoding, the encodings it supports, and a
// table of file extensions used to infer the encoding of a path. This package
// contains lookups only; it performs no I/O.
package stage
