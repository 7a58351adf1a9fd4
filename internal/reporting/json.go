package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/observability"
)

// JSONReporter buffers case results and writes a machine readable report
// on Close. It is thread safe.
type JSONReporter struct {
	writer    io.WriteCloser
	logger    *zap.Logger
	suiteName string
	startedAt time.Time

	mu    sync.Mutex
	cases []CaseResult
}

// NewJSONReporter creates a reporter that writes a JSON report.
// It takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser, suiteName string) *JSONReporter {
	return &JSONReporter{
		writer:    writer,
		logger:    observability.GetLogger().Named("json_reporter"),
		suiteName: suiteName,
		startedAt: time.Now(),
	}
}

// Write records a single case result.
func (r *JSONReporter) Write(result CaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = append(r.cases, result)
	return nil
}

type jsonCase struct {
	Name    string  `json:"name"`
	Class   string  `json:"class"`
	Seconds float64 `json:"seconds"`
	Error   string  `json:"error,omitempty"`
	Detail  string  `json:"detail,omitempty"`
	Skipped bool    `json:"skipped,omitempty"`
}

type jsonReport struct {
	Suite     string     `json:"suite"`
	StartedAt time.Time  `json:"started_at"`
	Tests     int        `json:"tests"`
	Failures  int        `json:"failures"`
	Cases     []jsonCase `json:"cases"`
}

// Close renders the buffered results and writes them to the output writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := jsonReport{
		Suite:     r.suiteName,
		StartedAt: r.startedAt.UTC(),
		Tests:     len(r.cases),
		Cases:     make([]jsonCase, 0, len(r.cases)),
	}
	for _, c := range r.cases {
		jc := jsonCase{
			Name:    c.Name,
			Class:   c.Class,
			Seconds: c.Duration.Seconds(),
			Skipped: c.Skipped,
		}
		if c.Failure != nil {
			report.Failures++
			jc.Error = c.Failure.Message
			jc.Detail = c.Failure.Detail
		}
		report.Cases = append(report.Cases, jc)
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(report)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode json output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	return nil
}
