// internal/reporting/json.go
package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/wizprobe/internal/findings"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonRecord adds the derived fields readers of the report want without
// recomputing them.
type jsonRecord struct {
	findings.Record
	Passed     bool                  `json:"passed"`
	DurationMS int64                 `json:"duration_ms"`
	Counts     map[findings.Kind]int `json:"counts"`
}

// JSONReporter writes one indented JSON document per record.
type JSONReporter struct {
	writer io.WriteCloser
	enc    *jsoniter.Encoder
}

func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONReporter{writer: w, enc: enc}
}

func (r *JSONReporter) Write(rec findings.Record) error {
	if rec.Defects == nil {
		rec.Defects = []findings.Defect{}
	}
	if rec.Warnings == nil {
		rec.Warnings = []findings.Warning{}
	}
	doc := jsonRecord{
		Record:     rec,
		Passed:     rec.Passed(),
		DurationMS: rec.Duration().Milliseconds(),
		Counts:     rec.CountByKind(),
	}
	if err := r.enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
