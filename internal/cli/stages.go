package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/stage"
)

// StageInfo describes one stage.
type StageInfo struct {
	Name       string   `json:"name"`
	Default    string   `json:"default_encoding"`
	Encodings  []string `json:"encodings"`
	Extensions []string `json:"extensions"`
}

// StageTable lists every stage in order.
type StageTable []StageInfo

func (t StageTable) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tDEFAULT\tENCODINGS\tEXTENSIONS")
	for _, s := range t {
		exts := make([]string, 0, len(s.Extensions))
		for _, ext := range s.Extensions {
			if ext == "" {
				ext = "(none)"
			}
			exts = append(exts, ext)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Default, strings.Join(s.Encodings, ","), strings.Join(exts, ","))
	}
	w.Flush()
	return b.String()
}

// NewStagesCommand creates the stages command.
func NewStagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stages",
		Short:         "List pipeline stages",
		Long:          "List the pipeline stages in order with their encodings and recognized file extensions.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(stageTable())
		},
	}
}

func stageTable() StageTable {
	table := make(StageTable, 0, len(stage.All))
	for _, s := range stage.All {
		info := StageInfo{
			Name:       s.String(),
			Default:    s.DefaultEncoding().String(),
			Extensions: s.Extensions(),
		}
		for _, e := range s.Encodings() {
			info.Encodings = append(info.Encodings, e.String())
		}
		table = append(table, info)
	}
	return table
}
