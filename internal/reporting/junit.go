package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/observability"
)

// JUnitReporter buffers case results and renders them as a single JUnit
// testsuite on Close. It is thread safe.
type JUnitReporter struct {
	writer    io.WriteCloser
	logger    *zap.Logger
	suiteName string
	startedAt time.Time

	mu    sync.Mutex
	cases []CaseResult
}

// NewJUnitReporter creates a reporter that writes JUnit XML.
// It takes ownership of the writer.
func NewJUnitReporter(writer io.WriteCloser, suiteName string) *JUnitReporter {
	return &JUnitReporter{
		writer:    writer,
		logger:    observability.GetLogger().Named("junit_reporter"),
		suiteName: suiteName,
		startedAt: time.Now(),
	}
}

// Write records a single case result.
func (r *JUnitReporter) Write(result CaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = append(r.cases, result)
	return nil
}

// Close renders the buffered results and writes them to the output writer.
func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failures, skipped int
	var total time.Duration
	for _, c := range r.cases {
		total += c.Duration
		if c.Failure != nil {
			failures++
		}
		if c.Skipped {
			skipped++
		}
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", r.suiteName)
	suite.CreateAttr("tests", strconv.Itoa(len(r.cases)))
	suite.CreateAttr("failures", strconv.Itoa(failures))
	suite.CreateAttr("skipped", strconv.Itoa(skipped))
	suite.CreateAttr("time", formatSeconds(total))
	suite.CreateAttr("timestamp", r.startedAt.UTC().Format("2006-01-02T15:04:05"))

	for _, c := range r.cases {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", c.Name)
		tc.CreateAttr("classname", c.Class)
		tc.CreateAttr("time", formatSeconds(c.Duration))

		switch {
		case c.Failure != nil:
			failure := tc.CreateElement("failure")
			failure.CreateAttr("message", c.Failure.Message)
			failure.SetText(c.Failure.Detail)
		case c.Skipped:
			tc.CreateElement("skipped")
		}
	}

	r.logger.Info("Finalizing JUnit report",
		zap.Int("total_cases", len(r.cases)),
		zap.Int("failures", failures),
	)

	doc.Indent(2)
	_, encodeErr := doc.WriteTo(r.writer)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to write JUnit XML", zap.Error(encodeErr))
		return fmt.Errorf("failed to write junit output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	return nil
}

// formatSeconds renders a duration the way JUnit consumers expect,
// as fractional seconds.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
