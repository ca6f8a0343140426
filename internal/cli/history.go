package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	RunID   string
	Limit   int
}

// HistoryRun is one journal entry.
type HistoryRun struct {
	ID           string            `json:"id"`
	Seq          int64             `json:"seq"`
	Status       string            `json:"status"`
	Input        string            `json:"input"`
	InputPath    string            `json:"input_path,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	NoRun        bool              `json:"no_run"`
	StartedAt    string            `json:"started_at"`
	FinishedAt   string            `json:"finished_at,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Steps        []HistoryStep     `json:"steps"`
}

// HistoryStep is one recorded translator step.
type HistoryStep struct {
	Index       int    `json:"index"`
	Translator  string `json:"translator"`
	From        string `json:"from"`
	To          string `json:"to"`
	Encoding    string `json:"encoding"`
	Destination string `json:"destination,omitempty"`
	Digest      string `json:"digest,omitempty"`
	Size        int64  `json:"size"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// HistoryResult is the output of history.
type HistoryResult struct {
	Runs []HistoryRun `json:"runs"`
}

func (h HistoryResult) String() string {
	if len(h.Runs) == 0 {
		return "No runs recorded.\n"
	}

	var b strings.Builder
	for i, r := range h.Runs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Run %s [%d] %s\n", r.ID, r.Seq, r.Status)
		input := r.Input
		if r.InputPath != "" {
			input += " " + r.InputPath
		}
		fmt.Fprintf(&b, "  input:   %s\n", input)
		fmt.Fprintf(&b, "  started: %s\n", r.StartedAt)
		if r.ErrorCode != "" {
			fmt.Fprintf(&b, "  error:   [%s] %s\n", r.ErrorCode, r.ErrorMessage)
		}

		w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, s := range r.Steps {
			status := "ok"
			if s.ErrorCode != "" {
				status = "failed " + s.ErrorCode
			}
			dest := s.Destination
			if dest == "" {
				dest = "-"
			}
			fmt.Fprintf(w, "  %d\t%s\t%s -> %s\t%s\t%s\t%s\t%s\n",
				s.Index, s.Translator, s.From, s.To, s.Encoding, shortDigest(s.Digest), dest, status)
		}
		w.Flush()
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List the runs recorded in a build journal, newest first, with the
steps each run executed and the digest of every artifact produced.

Examples:
  stagerun history --journal build.db
  stagerun history --journal build.db --run 0192f3a4-...
  stagerun history --journal build.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (default: from config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show only this run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to show (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	path := opts.Journal
	if path == "" && opts.ConfigPath != "" {
		_, cfg, err := opts.toolchain()
		if err != nil {
			return err
		}
		path = cfg.Journal
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no journal: pass --journal or set journal in the config")
	}
	// Open would create an empty journal.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	var runs []journal.Run
	if opts.RunID != "" {
		run, ok, err := j.GetRun(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read journal", err)
		}
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("run %q not found", opts.RunID))
		}
		runs = []journal.Run{run}
	} else {
		runs, err = j.ListRuns(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read journal", err)
		}
	}

	result := HistoryResult{Runs: make([]HistoryRun, 0, len(runs))}
	for _, r := range runs {
		steps, err := j.Steps(ctx, r.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read journal", err)
		}
		result.Runs = append(result.Runs, historyRun(r, steps))
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(result)
}

func historyRun(r journal.Run, steps []journal.Step) HistoryRun {
	hr := HistoryRun{
		ID:           r.ID,
		Seq:          r.Seq,
		Status:       r.Status,
		Input:        r.InputStage + "/" + r.InputEncoding,
		InputPath:    r.InputPath,
		Outputs:      r.Outputs,
		NoRun:        r.NoRun,
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
		Steps:        make([]HistoryStep, 0, len(steps)),
	}
	if !r.FinishedAt.IsZero() {
		hr.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	for _, s := range steps {
		hr.Steps = append(hr.Steps, HistoryStep{
			Index:       s.Index + 1,
			Translator:  s.Translator,
			From:        s.FromStage,
			To:          s.ToStage,
			Encoding:    s.Encoding,
			Destination: s.Destination,
			Digest:      s.Digest,
			Size:        s.Size,
			ErrorCode:   s.ErrorCode,
		})
	}
	return hr
}

// shortDigest trims a "sha256:<hex>" digest for display.
func shortDigest(d string) string {
	_, hex, ok := strings.Cut(d, ":")
	if !ok {
		hex = d
	}
	if len(hex) > 12 {
		hex = hex[:12]
	}
	if hex == "" {
		return "-"
	}
	return hex
}
