// internal/reporting/text.go
package reporting

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/xkilldash9x/wizprobe/internal/findings"
)

const rule = "======================================================================"

// TextReporter prints the human readable summary.
type TextReporter struct {
	writer      io.WriteCloser
	artifactDir string
	fail        *color.Color
	pass        *color.Color
	warn        *color.Color
	dim         *color.Color
}

// NewTextReporter creates a TextReporter. Colors are forced on or off by
// useColor regardless of the terminal.
func NewTextReporter(w io.WriteCloser, useColor bool, artifactDir string) *TextReporter {
	r := &TextReporter{
		writer:      w,
		artifactDir: artifactDir,
		fail:        color.New(color.FgRed, color.Bold),
		pass:        color.New(color.FgGreen, color.Bold),
		warn:        color.New(color.FgYellow),
		dim:         color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.fail, r.pass, r.warn, r.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *TextReporter) Write(rec findings.Record) error {
	b := bufio.NewWriter(r.writer)

	fmt.Fprintln(b)
	fmt.Fprintln(b, rule)
	fmt.Fprintln(b, "TEST SUMMARY")
	fmt.Fprintln(b, rule)
	fmt.Fprintln(b, r.dim.Sprintf("Run %s against %s (%s)", rec.ID, rec.TargetURL, rec.Duration().Round(1e6)))
	fmt.Fprintln(b)

	if rec.Passed() {
		fmt.Fprintln(b, r.pass.Sprint("✅ ALL TESTS PASSED - No bugs found!"))
	} else {
		fmt.Fprintln(b, r.fail.Sprintf("❌ BUGS FOUND (%d):", len(rec.Defects)))
		for _, d := range rec.Defects {
			fmt.Fprintf(b, "   • %s\n", d)
		}
		if rec.Terminal {
			fmt.Fprintln(b, r.dim.Sprint("   (run stopped at the first blocking defect)"))
		}
	}

	if len(rec.Warnings) > 0 {
		fmt.Fprintln(b)
		fmt.Fprintln(b, r.warn.Sprintf("⚠ Warnings (%d):", len(rec.Warnings)))
		for _, w := range rec.Warnings {
			fmt.Fprintf(b, "   - Step %d: %s\n", w.Step, w.Message)
		}
	}

	if r.artifactDir != "" {
		fmt.Fprintf(b, "\nScreenshots saved to %s\n", strings.TrimRight(r.artifactDir, "/")+"/")
	}
	fmt.Fprintln(b, rule)
	return b.Flush()
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}
