// File: cmd/history.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/observability"
	"github.com/xkilldash9x/wizprobe/internal/reporting"
	"github.com/xkilldash9x/wizprobe/internal/store"
)

// ErrRunsDiffer is returned by history compare when two runs disagree.
var ErrRunsDiffer = errors.New("runs report different defects")

var errHistoryDisabled = errors.New("run history is disabled; set store.url or WIZPROBE_STORE_URL")

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Queries the stored run history",
	}
	historyCmd.AddCommand(newHistoryListCmd(), newHistoryShowCmd(), newHistoryCompareCmd())
	return historyCmd
}

// withHistory opens the configured repository for the duration of fn.
func withHistory(cmd *cobra.Command, fn func(repo store.Repository) error) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	if !cfg.Store().Enabled() {
		return errHistoryDisabled
	}
	repo, closeFn, err := openHistory(cmd.Context(), cfg.Store().URL, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer closeFn()
	return fn(repo)
}

func newHistoryListCmd() *cobra.Command {
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(repo store.Repository) error {
				runs, err := repo.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return writeRunList(cmd.OutOrStdout(), runs)
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return listCmd
}

func writeRunList(w io.Writer, runs []store.RunSummary) error {
	md := markdown.NewMarkdown(w)
	if len(runs) == 0 {
		return md.PlainText("No runs recorded.").Build()
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := ""
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			duration,
			strconv.Itoa(r.Defects),
			strconv.FormatBool(r.Terminal),
			r.TargetURL,
		})
	}
	return md.Table(markdown.TableSet{
		Header: []string{"Run", "Started", "Duration", "Defects", "Terminal", "Target"},
		Rows:   rows,
	}).Build()
}

func newHistoryShowCmd() *cobra.Command {
	var format string
	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Prints the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(repo store.Repository) error {
				rec, err := repo.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				r, err := reporting.NewWriter(format, reporting.NopCloser(cmd.OutOrStdout()), observability.GetLogger(),
					reporting.WithVersion(Version))
				if err != nil {
					return err
				}
				if err := r.Write(rec); err != nil {
					_ = r.Close()
					return err
				}
				return r.Close()
			})
		},
	}
	showCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatText, "Report format: text, json, sarif, junit, markdown")
	return showCmd
}

func newHistoryCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <run-a> <run-b>",
		Short: "Diffs the defects of two stored runs",
		Long:  "Prints the difference between the defect lists of two runs. Exits with status 1 when they differ.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(repo store.Repository) error {
				a, err := repo.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				b, err := repo.GetRun(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if findings.SameDefects(a.Defects, b.Defects) {
					fmt.Fprintf(out, "Runs %s and %s report the same %d defect(s).\n", a.ID, b.ID, len(a.Defects))
					return nil
				}
				fmt.Fprintf(out, "Defects differ between %s (-) and %s (+):\n%s", a.ID, b.ID, findings.DiffDefects(a.Defects, b.Defects))
				return ErrRunsDiffer
			})
		},
	}
}
