// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/wizprobe/internal/findings"
	"go.uber.org/zap"
)

// Reporter writes run records to an output.
type Reporter interface {
	// Write processes the record of one run.
	Write(rec findings.Record) error
	// Close finalizes the report and closes the underlying output.
	Close() error
}

// Supported formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatSARIF    = "sarif"
	FormatJUnit    = "junit"
	FormatMarkdown = "markdown"
)

// options are shared by every reporter.
type options struct {
	color       bool
	version     string
	artifactDir string
}

// Option configures a reporter.
type Option func(*options)

// WithColor enables ANSI colors in the text format.
func WithColor(enabled bool) Option {
	return func(o *options) { o.color = enabled }
}

// WithVersion records the tool version in formats that carry one.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithArtifactDir mentions where screenshots were saved.
func WithArtifactDir(dir string) Option {
	return func(o *options) { o.artifactDir = dir }
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NopCloser adapts w for reporters that must not close it.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}

// New creates a reporter for format writing to outputPath; an empty path or
// "stdout" writes to standard output.
func New(format, outputPath string, logger *zap.Logger, opts ...Option) (Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if _, ok := constructors[format]; !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = NopCloser(os.Stdout)
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(format, writer, logger, opts...)
}

// NewWriter creates a reporter for format that takes ownership of w.
func NewWriter(format string, w io.WriteCloser, logger *zap.Logger, opts ...Option) (Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	build, ok := constructors[format]
	if !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	return build(w, logger, o), nil
}

var constructors = map[string]func(io.WriteCloser, *zap.Logger, options) Reporter{
	FormatText: func(w io.WriteCloser, l *zap.Logger, o options) Reporter {
		return NewTextReporter(w, o.color, o.artifactDir)
	},
	FormatJSON: func(w io.WriteCloser, l *zap.Logger, o options) Reporter {
		return NewJSONReporter(w)
	},
	FormatSARIF: func(w io.WriteCloser, l *zap.Logger, o options) Reporter {
		return NewSARIFReporter(w, o.version, l)
	},
	FormatJUnit: func(w io.WriteCloser, l *zap.Logger, o options) Reporter {
		return NewJUnitReporter(w)
	},
	FormatMarkdown: func(w io.WriteCloser, l *zap.Logger, o options) Reporter {
		return NewMarkdownReporter(w, o.artifactDir)
	},
}
