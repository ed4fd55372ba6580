// internal/reporting/junit.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/xkilldash9x/wizprobe/internal/findings"
)

// junitCase is one check the oracle performs at one wizard step.
type junitCase struct {
	kind findings.Kind
	step int
	name string
}

var junitCases = []junitCase{
	{findings.KindNavigationBlocked, 1, "Step 1 proceed control enabled"},
	{findings.KindStepUnreachable, 2, "Step 2 reachable"},
	{findings.KindStepUnreachable, 3, "Step 3 reachable"},
	{findings.KindContinuityLoss, 3, "Step 3 shows Step 1 values"},
	{findings.KindFormattingArtifact, 3, "Step 3 decimals"},
	{findings.KindStepUnreachable, 4, "Step 4 reachable"},
	{findings.KindContinuityLoss, 4, "Step 4 shows Step 1 values"},
	{findings.KindFormattingArtifact, 4, "Step 4 decimals"},
}

// JUnitReporter renders records as JUnit XML, one testsuite per run.
type JUnitReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	doc    *etree.Document
	root   *etree.Element
	tests  int
	fails  int
	total  time.Duration
}

func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", ToolName)
	return &JUnitReporter{writer: w, doc: doc, root: root}
}

func (r *JUnitReporter) Write(rec findings.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	suite := r.root.CreateElement("testsuite")
	suite.CreateAttr("name", "wizprobe/"+rec.ID)
	if !rec.StartedAt.IsZero() {
		suite.CreateAttr("timestamp", rec.StartedAt.UTC().Format("2006-01-02T15:04:05"))
	}
	suite.CreateAttr("time", seconds(rec.Duration()))

	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "target_url")
	prop.CreateAttr("value", rec.TargetURL)

	skip := skippedSteps(rec)
	tests, fails, skipped := 0, 0, 0
	for _, c := range junitCases {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "wizprobe."+string(c.kind))
		tc.CreateAttr("name", c.name)
		tests++

		var failed bool
		for _, d := range rec.Defects {
			if d.Kind != c.kind || d.Step != c.step {
				continue
			}
			f := tc.CreateElement("failure")
			f.CreateAttr("type", string(d.Kind))
			f.CreateAttr("message", d.String())
			if d.Expected != "" || d.Observed != "" {
				f.SetText(fmt.Sprintf("expected: %s\nobserved: %s", d.Expected, d.Observed))
			}
			failed = true
		}
		switch {
		case failed:
			fails++
		case c.kind != findings.KindStepUnreachable && c.kind != findings.KindNavigationBlocked && skip(c.step):
			tc.CreateElement("skipped").CreateAttr("message", fmt.Sprintf("Step %d was not reached", c.step))
			skipped++
		}
	}
	if len(rec.Warnings) > 0 {
		out := suite.CreateElement("system-out")
		var text string
		for _, w := range rec.Warnings {
			text += fmt.Sprintf("WARN step %d: %s\n", w.Step, w.Message)
		}
		out.CreateCharData(text)
	}

	suite.CreateAttr("tests", strconv.Itoa(tests))
	suite.CreateAttr("failures", strconv.Itoa(fails))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("skipped", strconv.Itoa(skipped))

	r.tests += tests
	r.fails += fails
	r.total += rec.Duration()
	return nil
}

// skippedSteps reports which steps the run never inspected.
func skippedSteps(rec findings.Record) func(step int) bool {
	unreached := map[int]bool{}
	for _, d := range rec.Defects {
		if d.Kind == findings.KindStepUnreachable {
			unreached[d.Step] = true
		}
	}
	return func(step int) bool {
		return rec.Terminal || unreached[step]
	}
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.root.CreateAttr("tests", strconv.Itoa(r.tests))
	r.root.CreateAttr("failures", strconv.Itoa(r.fails))
	r.root.CreateAttr("time", seconds(r.total))
	r.doc.Indent(2)

	_, writeErr := r.doc.WriteTo(r.writer)
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write JUnit report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
