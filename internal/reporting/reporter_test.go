package reporting_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/compass-pilot/internal/reporting"
)

func TestNew_StdoutIsNopClose(t *testing.T) {
	r, err := reporting.New("junit", "stdout", "compass-smoke")
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.NoError(t, r.Close())

	r, err = reporting.New("json", "", "compass-smoke")
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.NoError(t, r.Close())
}

func TestNew_UnsupportedFormat(t *testing.T) {
	r, err := reporting.New("sarif", "stdout", "compass-smoke")
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")

	// When a file was opened it must be released on failure.
	tmpFile := filepath.Join(t.TempDir(), "report.out")
	r, err = reporting.New("yaml", tmpFile, "compass-smoke")
	assert.Error(t, err)
	assert.Nil(t, r)

	info, err := os.Stat(tmpFile)
	require.NoError(t, err, "File should still exist after failure")
	assert.Equal(t, int64(0), info.Size(), "File should be empty as initialization failed")
}

func TestNew_FileCreationFailure(t *testing.T) {
	// A directory path cannot be opened as a file.
	invalidPath := t.TempDir()

	r, err := reporting.New("junit", invalidPath, "compass-smoke")
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "failed to create output file")
}

func TestJUnitReporter_RendersSuite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")

	r, err := reporting.New("junit", path, "compass-smoke")
	require.NoError(t, err)

	require.NoError(t, r.Write(reporting.CaseResult{
		Name: "startUsingCompass", Class: "onboarding", Duration: 1200 * time.Millisecond,
	}))
	require.NoError(t, r.Write(reporting.CaseResult{
		Name: "clickConnect", Class: "connect", Duration: 300 * time.Millisecond,
		Failure: &reporting.CaseFailure{
			Message: "connection timed out",
			Detail:  "waited 10s for .connect-form",
		},
	}))
	require.NoError(t, r.Write(reporting.CaseResult{
		Name: "sampleCollection", Class: "schema", Skipped: true,
	}))
	require.NoError(t, r.Close())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))

	suite := doc.FindElement("//testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "compass-smoke", suite.SelectAttrValue("name", ""))
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))
	assert.NotEmpty(t, suite.SelectAttrValue("timestamp", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)

	assert.Equal(t, "startUsingCompass", cases[0].SelectAttrValue("name", ""))
	assert.Equal(t, "onboarding", cases[0].SelectAttrValue("classname", ""))
	assert.Equal(t, "1.200", cases[0].SelectAttrValue("time", ""))
	assert.Nil(t, cases[0].SelectElement("failure"))

	failure := cases[1].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "connection timed out", failure.SelectAttrValue("message", ""))
	assert.Equal(t, "waited 10s for .connect-form", failure.Text())

	assert.NotNil(t, cases[2].SelectElement("skipped"))
}

func TestJSONReporter_RendersReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	r, err := reporting.New("json", path, "compass-smoke")
	require.NoError(t, err)

	require.NoError(t, r.Write(reporting.CaseResult{
		Name: "gotoSchemaWindow", Class: "schema", Duration: 2500 * time.Millisecond,
	}))
	require.NoError(t, r.Write(reporting.CaseResult{
		Name: "viewSampleDocuments", Class: "schema", Duration: 800 * time.Millisecond,
		Failure: &reporting.CaseFailure{Message: "element never appeared"},
	}))
	require.NoError(t, r.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var report struct {
		Suite    string `json:"suite"`
		Tests    int    `json:"tests"`
		Failures int    `json:"failures"`
		Cases    []struct {
			Name    string  `json:"name"`
			Seconds float64 `json:"seconds"`
			Error   string  `json:"error"`
		} `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.Equal(t, "compass-smoke", report.Suite)
	assert.Equal(t, 2, report.Tests)
	assert.Equal(t, 1, report.Failures)
	require.Len(t, report.Cases, 2)
	assert.Equal(t, "gotoSchemaWindow", report.Cases[0].Name)
	assert.InDelta(t, 2.5, report.Cases[0].Seconds, 0.001)
	assert.Equal(t, "element never appeared", report.Cases[1].Error)
}
