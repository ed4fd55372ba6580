// File: internal/findings/findings.go
package findings

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// Kind classifies a defect.
type Kind string

const (
	// KindNavigationBlocked: the proceed control stays disabled after Step 1 is complete. Terminal.
	KindNavigationBlocked Kind = "navigation-blocked"
	// KindContinuityLoss: a Step 1 value is missing from a later step.
	KindContinuityLoss Kind = "continuity-loss"
	// KindFormattingArtifact: a rendered number carries floating point noise.
	KindFormattingArtifact Kind = "formatting-artifact"
	// KindStepUnreachable: a checkpoint could not be reached, so its checks did not run.
	KindStepUnreachable Kind = "step-unreachable"
)

// Kinds lists every defect kind in a stable order.
var Kinds = []Kind{KindNavigationBlocked, KindContinuityLoss, KindFormattingArtifact, KindStepUnreachable}

// Bug returns the regression label ("BUG #1".."BUG #3") or "" for kinds without one.
func (k Kind) Bug() string {
	switch k {
	case KindNavigationBlocked:
		return "BUG #1"
	case KindContinuityLoss:
		return "BUG #2"
	case KindFormattingArtifact:
		return "BUG #3"
	}
	return ""
}

// Description is a one-line explanation of the kind, used by report writers.
func (k Kind) Description() string {
	switch k {
	case KindNavigationBlocked:
		return "The next step control is disabled after all Step 1 inputs were committed."
	case KindContinuityLoss:
		return "A value entered in Step 1 does not reappear on a later wizard step."
	case KindFormattingArtifact:
		return "A displayed number has an excessive number of fractional digits."
	case KindStepUnreachable:
		return "A wizard step could not be reached, so its checks were skipped."
	}
	return string(k)
}

// Defect is one detected regression.
type Defect struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Step     int    `json:"step" yaml:"step"`
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Observed string `json:"observed,omitempty" yaml:"observed,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

// String renders the defect the way it appears in the summary, e.g.
// "BUG #3: Çıkma shows as 1.7000000000000002 instead of 1.70".
func (d Defect) String() string {
	if bug := d.Kind.Bug(); bug != "" {
		return fmt.Sprintf("%s: %s", bug, d.Message)
	}
	return d.Message
}

// Warning is a run-log note that is not a defect.
type Warning struct {
	Step    int    `json:"step" yaml:"step"`
	Message string `json:"message" yaml:"message"`
}

// Record is the immutable, serializable form of a report.
type Record struct {
	ID         string    `json:"id" yaml:"id"`
	TargetURL  string    `json:"target_url" yaml:"target_url"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Terminal   bool      `json:"terminal" yaml:"terminal"`
	Defects    []Defect  `json:"defects" yaml:"defects"`
	Warnings   []Warning `json:"warnings" yaml:"warnings"`
}

// Passed reports whether no defect was found.
func (r Record) Passed() bool { return len(r.Defects) == 0 }

// Duration of the run, zero while unfinished.
func (r Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountByKind tallies defects per kind.
func (r Record) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, d := range r.Defects {
		counts[d.Kind]++
	}
	return counts
}

// Report accumulates the defects of one run. Entries are append-only and
// every accessor returns a copy.
type Report struct {
	mu        sync.Mutex
	id        string
	targetURL string
	now       func() time.Time
	started   time.Time
	finished  time.Time
	terminal  bool
	defects   []Defect
	warnings  []Warning
}

// Option configures a Report.
type Option func(*Report)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Report) { r.now = now }
}

// WithID sets the run ID instead of generating one.
func WithID(id string) Option {
	return func(r *Report) { r.id = id }
}

// NewReport starts a report for a run against targetURL.
func NewReport(targetURL string, opts ...Option) *Report {
	r := &Report{
		targetURL: targetURL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	r.started = r.now().UTC()
	return r
}

// ID returns the run ID.
func (r *Report) ID() string { return r.id }

// Add appends defects in order.
func (r *Report) Add(defects ...Defect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defects = append(r.defects, defects...)
}

// Warn appends a warning.
func (r *Report) Warn(step int, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Warning{Step: step, Message: fmt.Sprintf(format, args...)})
}

// MarkTerminal records that the run stopped early on a terminal defect.
func (r *Report) MarkTerminal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminal = true
}

// Finish stamps the end time. Later calls are ignored.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.IsZero() {
		r.finished = r.now().UTC()
	}
}

// Terminal reports whether the run was cut short.
func (r *Report) Terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Defects returns a copy of the defects in insertion order.
func (r *Report) Defects() []Defect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Defect(nil), r.defects...)
}

// Warnings returns a copy of the warnings in insertion order.
func (r *Report) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.warnings...)
}

// HasDefects reports whether any defect was recorded.
func (r *Report) HasDefects() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.defects) > 0
}

// Record returns the serializable snapshot of the report.
func (r *Report) Record() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Record{
		ID:         r.id,
		TargetURL:  r.targetURL,
		StartedAt:  r.started,
		FinishedAt: r.finished,
		Terminal:   r.terminal,
		Defects:    append([]Defect{}, r.defects...),
		Warnings:   append([]Warning{}, r.warnings...),
	}
}

// SameDefects reports whether two defect lists are identical, order included.
func SameDefects(a, b []Defect) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

// DiffDefects returns a human-readable diff (-a +b), empty when identical.
func DiffDefects(a, b []Defect) string {
	return cmp.Diff(normalize(a), normalize(b))
}

// normalize treats nil and empty lists alike.
func normalize(d []Defect) []Defect {
	if d == nil {
		return []Defect{}
	}
	return d
}
