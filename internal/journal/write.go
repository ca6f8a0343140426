package journal

import (
	"context"
	"fmt"

	"github.com/roach88/stagerun/internal/graphir"
	"github.com/roach88/stagerun/internal/pipeline"
	"github.com/roach88/stagerun/internal/stage"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// BeginRun inserts a run in the running state and returns its id.
func (j *Journal) BeginRun(ctx context.Context, req pipeline.Request) (string, error) {
	outputs := graphir.Object{}
	for s, path := range req.Outputs {
		outputs[s.String()] = graphir.String(path)
	}
	outputsJSON, err := graphir.MarshalCanonical(outputs)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}

	id := j.ids.Generate()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, input_stage, input_encoding, input_path, outputs, no_run, module_name, started_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		req.Input.Stage().String(),
		req.Input.Encoding().String(),
		req.Input.Path(),
		string(outputsJSON),
		req.NoRun,
		req.ModuleName,
		j.timestamp(),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordStep stores one executed step. Successful steps carry the digest and
// size of their output payload.
func (j *Journal) RecordStep(ctx context.Context, runID string, index int, step pipeline.Step) error {
	var digest, code, message string
	var size int
	if step.Output != nil {
		payload, err := step.Output.Payload()
		if err != nil {
			return fmt.Errorf("record step: %w", err)
		}
		digest = outputDigest(step.Output.Stage(), step.Output.Encoding(), payload)
		size = len(payload)
	}
	if step.Err != nil {
		code = pipeline.ErrorCode(step.Err)
		message = step.Err.Error()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, idx, translator, from_stage, to_stage, encoding, destination, digest, size, error_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		index,
		step.Translator,
		step.From.String(),
		step.To.String(),
		step.Encoding.String(),
		step.Destination,
		digest,
		size,
		code,
		message,
	)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// outputDigest identifies a step's output. Graph IR is digested by content,
// so a graph has one digest in either encoding; other payloads, and graphs
// that do not decode, are digested by their bytes.
func outputDigest(s stage.Stage, enc stage.Encoding, payload []byte) string {
	if s == stage.GraphIR {
		if g, err := graphir.Decode(payload, enc); err == nil {
			if d, err := graphir.Digest(g); err == nil {
				return d
			}
		}
	}
	return graphir.PayloadDigest(payload)
}

// FinishRun marks the run succeeded, or failed with runErr's code and message.
func (j *Journal) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, code, message := StatusSucceeded, "", ""
	if runErr != nil {
		status, code, message = StatusFailed, pipeline.ErrorCode(runErr), runErr.Error()
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error_code = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, status, code, message, j.timestamp(), runID, StatusRunning)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: no running run with id %s", runID)
	}
	return nil
}

var _ pipeline.Recorder = (*Journal)(nil)
