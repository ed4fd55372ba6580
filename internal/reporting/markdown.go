// internal/reporting/markdown.go
package reporting

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/xkilldash9x/wizprobe/internal/findings"
)

// MarkdownReporter writes a markdown summary per record, suitable for CI
// job summaries and pull request comments.
type MarkdownReporter struct {
	writer      io.WriteCloser
	artifactDir string
}

func NewMarkdownReporter(w io.WriteCloser, artifactDir string) *MarkdownReporter {
	return &MarkdownReporter{writer: w, artifactDir: artifactDir}
}

func (r *MarkdownReporter) Write(rec findings.Record) error {
	md := markdown.NewMarkdown(r.writer)

	md.H1("Wizard Regression Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + rec.ID + "`"},
			{"Target", rec.TargetURL},
			{"Started", rec.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", rec.Duration().Round(1e6).String()},
			{"Status", status(rec)},
		},
	})
	md.PlainText("")

	md.H2("Defects")
	md.PlainText("")
	if rec.Passed() {
		md.Tip("All checks passed. No bugs found.")
	} else {
		if rec.Terminal {
			md.Cautionf("Navigation is blocked after Step 1; later steps were not inspected.")
		}
		md.PlainText("")
		counts := rec.CountByKind()
		rows := make([][]string, 0, len(findings.Kinds))
		for _, k := range findings.Kinds {
			if counts[k] == 0 {
				continue
			}
			rows = append(rows, []string{k.Bug(), string(k), strconv.Itoa(counts[k])})
		}
		md.Table(markdown.TableSet{Header: []string{"Bug", "Kind", "Count"}, Rows: rows})
		md.PlainText("")

		detail := make([][]string, 0, len(rec.Defects))
		for _, d := range rec.Defects {
			detail = append(detail, []string{strconv.Itoa(d.Step), string(d.Kind), d.Field, escapeCell(d.Message)})
		}
		md.Table(markdown.TableSet{Header: []string{"Step", "Kind", "Field", "Message"}, Rows: detail})
	}
	md.PlainText("")

	if len(rec.Warnings) > 0 {
		md.H2("Warnings")
		md.PlainText("")
		items := make([]string, 0, len(rec.Warnings))
		for _, w := range rec.Warnings {
			items = append(items, fmt.Sprintf("Step %d: %s", w.Step, w.Message))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if r.artifactDir != "" {
		md.Note("Screenshots saved to `" + r.artifactDir + "`.")
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	return nil
}

func (r *MarkdownReporter) Close() error {
	return r.writer.Close()
}

func status(rec findings.Record) string {
	if rec.Passed() {
		return "✅ Passed"
	}
	return fmt.Sprintf("❌ %d defect(s)", len(rec.Defects))
}

// escapeCell keeps pipes in messages from breaking the table.
func escapeCell(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '|' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
