// Package journal records pipeline runs in a SQLite database.
//
// The journal is append-only and write-only from the pipeline's point of
// view: it implements pipeline.Recorder, and nothing in a run ever reads it
// back. Each executed step stores the SHA-256 digest of its output payload so
// two runs can be compared after the fact. The history command is the only
// reader.
package journal
