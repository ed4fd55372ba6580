// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "wizprobe"
	ToolInfoURI  = "https://github.com/xkilldash9x/wizprobe"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer collapses anything outside [A-Za-z0-9_.] into one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// Every written record becomes one SARIF run; output happens on Close.
type SARIFReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	version string
	mu      sync.Mutex
	log     *sarif.Log
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	return &SARIFReporter{
		writer:  writer,
		logger:  logger.Named("sarif_reporter"),
		version: toolVersion,
		log: &sarif.Log{
			Version: SARIFVersion,
			Schema:  SARIFSchema,
			Runs:    []*sarif.Run{},
		},
	}
}

// Write converts a record into a SARIF run.
func (r *SARIFReporter) Write(rec findings.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := &sarif.Run{
		Tool: &sarif.Tool{
			Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        pString(r.version),
				InformationURI: pString(ToolInfoURI),
				Rules:          rules(),
			},
		},
		AutomationDetails: &sarif.AutomationDetails{ID: "wizprobe/" + rec.ID},
		Invocations:       []*sarif.Invocation{invocation(rec)},
		Results:           []*sarif.Result{},
	}
	for _, d := range rec.Defects {
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    RuleID(d.Kind),
			RuleIndex: ruleIndex(d.Kind),
			Message:   &sarif.Message{Text: pString(d.String())},
			Level:     levelFor(d.Kind),
			Locations: locations(rec.TargetURL, d),
			Properties: sarif.PropertyBag{
				"step":     d.Step,
				"field":    d.Field,
				"expected": d.Expected,
				"observed": d.Observed,
			},
		})
	}
	r.log.Runs = append(r.log.Runs, run)

	r.logger.Debug("Added run to SARIF log", zap.String("run_id", rec.ID), zap.Int("results", len(run.Results)))
	return nil
}

// Close writes the SARIF log and closes the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote SARIF report", zap.Int("runs", len(r.log.Runs)))
	return nil
}

// RuleID is the SARIF rule ID of a defect kind, e.g. WIZPROBE-CONTINUITY-LOSS.
func RuleID(k findings.Kind) string {
	name := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(string(k)), "-"), "-")
	if name == "" {
		name = "UNKNOWN"
	}
	return "WIZPROBE-" + name
}

func ruleIndex(k findings.Kind) int {
	for i, known := range findings.Kinds {
		if known == k {
			return i
		}
	}
	return -1
}

// rules declares one rule per defect kind, in findings.Kinds order.
func rules() []*sarif.ReportingDescriptor {
	out := make([]*sarif.ReportingDescriptor, 0, len(findings.Kinds))
	for _, k := range findings.Kinds {
		short := string(k)
		if bug := k.Bug(); bug != "" {
			short = bug + " " + short
		}
		out = append(out, &sarif.ReportingDescriptor{
			ID:                   RuleID(k),
			Name:                 pString(string(k)),
			ShortDescription:     &sarif.MultiformatMessageString{Text: pString(short)},
			FullDescription:      &sarif.MultiformatMessageString{Text: pString(k.Description())},
			DefaultConfiguration: &sarif.Configuration{Level: levelFor(k)},
			Properties:           sarif.PropertyBag{"tags": []string{"regression", "wizard"}},
		})
	}
	return out
}

func invocation(rec findings.Record) *sarif.Invocation {
	inv := &sarif.Invocation{
		ExecutionSuccessful: true,
		StartTimeUTC:        utc(rec.StartedAt),
		EndTimeUTC:          utc(rec.FinishedAt),
	}
	for _, w := range rec.Warnings {
		inv.Notifications = append(inv.Notifications, &sarif.Notify{
			Level:   sarif.LevelWarning,
			Message: &sarif.Message{Text: pString(fmt.Sprintf("Step %d: %s", w.Step, w.Message))},
		})
	}
	return inv
}

func locations(target string, d findings.Defect) []*sarif.Location {
	step := fmt.Sprintf("step-%d", d.Step)
	logical := []*sarif.LogicalLocation{{Name: step, FullyQualifiedName: step, Kind: "module"}}
	if d.Field != "" {
		logical = append(logical, &sarif.LogicalLocation{
			Name:               d.Field,
			FullyQualifiedName: step + "/" + d.Field,
			Kind:               "member",
		})
	}
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(target)},
		},
		LogicalLocations: logical,
	}}
}

func levelFor(k findings.Kind) sarif.Level {
	switch k {
	case findings.KindNavigationBlocked, findings.KindContinuityLoss:
		return sarif.LevelError
	case findings.KindFormattingArtifact:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

func utc(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
