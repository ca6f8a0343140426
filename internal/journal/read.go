package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run is a recorded pipeline run.
type Run struct {
	ID            string
	Seq           int64
	InputStage    string
	InputEncoding string
	InputPath     string
	Outputs       map[string]string
	NoRun         bool
	ModuleName    string
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	ErrorCode     string
	ErrorMessage  string
}

// Step is a recorded translator step.
type Step struct {
	RunID        string
	Index        int
	Translator   string
	FromStage    string
	ToStage      string
	Encoding     string
	Destination  string
	Digest       string
	Size         int64
	ErrorCode    string
	ErrorMessage string
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, input_stage, input_encoding, input_path, outputs, no_run, module_name,
		       started_at, finished_at, status, error_code, error_message
		FROM runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with the given id. The second result is false if
// no such run exists.
func (j *Journal) GetRun(ctx context.Context, id string) (Run, bool, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, seq, input_stage, input_encoding, input_path, outputs, no_run, module_name,
		       started_at, finished_at, status, error_code, error_message
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return r, true, nil
}

// Steps returns the steps of a run in execution order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, idx, translator, from_stage, to_stage, encoding, destination,
		       digest, size, error_code, error_message
		FROM steps
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.RunID, &s.Index, &s.Translator, &s.FromStage, &s.ToStage, &s.Encoding,
			&s.Destination, &s.Digest, &s.Size, &s.ErrorCode, &s.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var outputs, started, finished string
	err := row.Scan(&r.ID, &r.Seq, &r.InputStage, &r.InputEncoding, &r.InputPath, &outputs, &r.NoRun,
		&r.ModuleName, &started, &finished, &r.Status, &r.ErrorCode, &r.ErrorMessage)
	if err == sql.ErrNoRows {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(outputs), &r.Outputs); err != nil {
		return r, fmt.Errorf("run %s: decode outputs: %w", r.ID, err)
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return r, fmt.Errorf("run %s: parse started_at: %w", r.ID, err)
	}
	if finished != "" {
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return r, fmt.Errorf("run %s: parse finished_at: %w", r.ID, err)
		}
	}
	return r, nil
}
