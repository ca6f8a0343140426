// Package pipeline drives an artifact through the ordered translators.
//
// The driver walks the translator list once, from Source to Executable.
// A translator runs only when the current artifact is at its input stage,
// so a pipeline started from an intermediate artifact skips everything
// before it. When execution is not requested the walk stops as soon as every
// requested output has been produced. The first failure aborts the run; there
// are no retries and nothing is cleaned up beyond the translators' own work
// files.
//
// Plan answers the same questions without running anything, using the same
// predicates as Run.
package pipeline
