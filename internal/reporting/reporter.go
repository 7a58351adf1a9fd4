// Package reporting turns a finished smoke run into durable outputs: a
// JUnit XML file for CI consumption and, for failures, a GitHub issue.
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"
)

// CaseFailure describes why a command failed.
type CaseFailure struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// CaseResult is the outcome of one named command in a run.
type CaseResult struct {
	Name     string        `json:"name"`
	Class    string        `json:"class"`
	Duration time.Duration `json:"duration"`
	Failure  *CaseFailure  `json:"failure,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// Reporter collects case results and writes them out on Close.
type Reporter interface {
	// Write records a single case result.
	Write(result CaseResult) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format writing to outputPath.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath, suiteName string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			writer.Close()
		}
	}

	switch format {
	case "junit":
		return NewJUnitReporter(writer, suiteName), nil
	case "json":
		return NewJSONReporter(writer, suiteName), nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
