package pipeline

import (
	"context"
	"log/slog"
)

// Recorder receives a record of every run. It is write-only: the driver never
// reads it back to decide what to do.
type Recorder interface {
	BeginRun(ctx context.Context, req Request) (string, error)
	RecordStep(ctx context.Context, runID string, index int, step Step) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}

type nopRecorder struct{}

func (nopRecorder) BeginRun(context.Context, Request) (string, error)   { return "", nil }
func (nopRecorder) RecordStep(context.Context, string, int, Step) error { return nil }
func (nopRecorder) FinishRun(context.Context, string, error) error      { return nil }

// Recording failures are logged and never fail the run.

func (d *Driver) begin(ctx context.Context, req Request) string {
	id, err := d.recorder.BeginRun(ctx, req)
	if err != nil {
		slog.Warn("failed to record run", "error", err)
		return ""
	}
	return id
}

func (d *Driver) record(ctx context.Context, runID string, index int, step Step) {
	if runID == "" {
		return
	}
	if err := d.recorder.RecordStep(ctx, runID, index, step); err != nil {
		slog.Warn("failed to record step", "run_id", runID, "step", index, "error", err)
	}
}

func (d *Driver) finish(ctx context.Context, runID string, runErr error) {
	if runID == "" {
		return
	}
	if err := d.recorder.FinishRun(ctx, runID, runErr); err != nil {
		slog.Warn("failed to record run outcome", "run_id", runID, "error", err)
	}
}
