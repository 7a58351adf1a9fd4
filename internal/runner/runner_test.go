// internal/runner/runner_test.go
package runner

import (
	"context"
	encodingjson "encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/client"
	"github.com/xkilldash9x/compass-pilot/internal/clienttest"
	"github.com/xkilldash9x/compass-pilot/internal/config"
	"github.com/xkilldash9x/compass-pilot/internal/history"
	"github.com/xkilldash9x/compass-pilot/internal/launcher"
	"github.com/xkilldash9x/compass-pilot/internal/registry"
	"github.com/xkilldash9x/compass-pilot/internal/scenario"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Report.ArtifactDir = t.TempDir()
	return cfg
}

// catalogueRegistry binds the full scenario catalogue to a scripted client
// whose window list already shows the schema window, so the connect flow
// resolves on its first poll.
func catalogueRegistry(fake *clienttest.Fake) *registry.Registry[scenario.Invocation] {
	fake.ScriptHandles([]string{"schema-window"})
	reg := registry.New[scenario.Invocation](fake, zap.NewNop())
	scenario.AddCommands(reg, zap.NewNop())
	return reg
}

func TestDefaultSuite_WalksTheSamplingFlow(t *testing.T) {
	suite := DefaultSuite()

	var names []string
	for _, s := range suite {
		names = append(names, s.Command)
	}
	assert.Equal(t, []string{
		scenario.CmdStartUsingCompass,
		scenario.CmdGotoSchemaWindow,
		scenario.CmdSelectCollection,
		scenario.CmdViewSampleDocuments,
		scenario.CmdRefineSample,
		scenario.CmdResetSample,
		scenario.CmdSampleCollection,
	}, names)

	assert.Equal(t, "local.startup_log", suite[2].Args.Collection)
	assert.NotEmpty(t, suite[4].Args.Query)

	last := suite[len(suite)-1]
	assert.Equal(t, "local.startup_log", last.Args.Collection)
	assert.True(t, last.Args.Internal, "startup_log lives in an internal collection")
	assert.Positive(t, last.Args.Timeout)
}

func TestRunSuite_AllCommandsPass(t *testing.T) {
	fake := clienttest.New()
	reg := catalogueRegistry(fake)
	r := New(testConfig(t), zap.NewNop())

	outcomes := r.runSuite(context.Background(), reg, DefaultSuite())

	require.Len(t, outcomes, len(DefaultSuite()))
	for _, o := range outcomes {
		assert.Equal(t, history.StatusPassed, o.Status, "command %s", o.Command)
		assert.NoError(t, o.Err)
		assert.True(t, encodingjson.Valid(o.Payload), "payload for %s must be JSON", o.Command)
	}

	res := &Result{Steps: outcomes}
	summarize(res)
	assert.True(t, res.Passed)
	assert.Empty(t, res.FailedCommand)

	// The walkthrough must have actually driven the client.
	assert.NotEmpty(t, fake.Calls("Click"))
	assert.NotEmpty(t, fake.Calls("SetValue"))
	assert.NotEmpty(t, fake.Calls("WindowHandles"))
}

func TestRunSuite_FailureSkipsRemainder(t *testing.T) {
	fake := clienttest.New()
	reg := registry.New[scenario.Invocation](fake, zap.NewNop())

	boom := errors.New("no such element")
	reg.Register("stepOne", func(ctx context.Context, c client.Client, inv scenario.Invocation) error {
		return nil
	})
	reg.Register("stepTwo", func(ctx context.Context, c client.Client, inv scenario.Invocation) error {
		return boom
	})
	reg.Register("stepThree", func(ctx context.Context, c client.Client, inv scenario.Invocation) error {
		t.Fatal("stepThree must not run after a failure")
		return nil
	})

	r := New(testConfig(t), zap.NewNop())
	suite := []Step{{Command: "stepOne"}, {Command: "stepTwo"}, {Command: "stepThree"}}
	outcomes := r.runSuite(context.Background(), reg, suite)

	require.Len(t, outcomes, 3)
	assert.Equal(t, history.StatusPassed, outcomes[0].Status)
	assert.Equal(t, history.StatusFailed, outcomes[1].Status)
	assert.ErrorIs(t, outcomes[1].Err, boom)
	assert.Equal(t, history.StatusSkipped, outcomes[2].Status)
	assert.Zero(t, outcomes[2].Duration)

	res := &Result{Steps: outcomes}
	summarize(res)
	assert.False(t, res.Passed)
	assert.Equal(t, "stepTwo", res.FailedCommand)
	assert.ErrorIs(t, res.Err, boom)
}

func TestCaseFor(t *testing.T) {
	passed := caseFor(StepOutcome{Command: "selectCollection", Status: history.StatusPassed, Duration: time.Second})
	assert.Equal(t, "selectCollection", passed.Name)
	assert.Nil(t, passed.Failure)
	assert.False(t, passed.Skipped)

	failed := caseFor(StepOutcome{
		Command:  "gotoSchemaWindow",
		Status:   history.StatusFailed,
		Duration: 2 * time.Second,
		Err:      errors.New("wait for window at slot 0 timed out"),
	})
	require.NotNil(t, failed.Failure)
	assert.Contains(t, failed.Failure.Message, "timed out")
	assert.Contains(t, failed.Failure.Detail, "gotoSchemaWindow")

	skipped := caseFor(StepOutcome{Command: "resetSample", Status: history.StatusSkipped})
	assert.True(t, skipped.Skipped)
	assert.Nil(t, skipped.Failure)
}

func TestHistoryMapping(t *testing.T) {
	boom := errors.New("renderer gone")
	res := &Result{
		RunID:     "run-1",
		Revision:  "abc123def456",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Passed:    false,
		Err:       boom,
		Steps: []StepOutcome{
			{Command: "startUsingCompass", Status: history.StatusPassed, Duration: time.Second, Payload: encodingjson.RawMessage(`{"a":1}`)},
			{Command: "gotoSchemaWindow", Status: history.StatusFailed, Err: boom},
			{Command: "selectCollection", Status: history.StatusSkipped},
		},
	}

	run := historyRun(res)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "abc123def456", run.Revision)
	assert.False(t, run.Passed)
	assert.Equal(t, "renderer gone", run.Failure)

	steps := historySteps(res.Steps)
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0].Seq)
	assert.Equal(t, 3, steps[2].Seq)
	assert.Equal(t, encodingjson.RawMessage(`{"a":1}`), steps[0].Payload)
	assert.Empty(t, steps[0].Message)
	assert.Equal(t, "renderer gone", steps[1].Message)
	assert.Equal(t, history.StatusSkipped, steps[2].Status)
}

func TestWriteJUnit_RendersOutcomes(t *testing.T) {
	r := New(testConfig(t), zap.NewNop())
	res := &Result{Steps: []StepOutcome{
		{Command: "startUsingCompass", Status: history.StatusPassed, Duration: time.Second},
		{Command: "gotoSchemaWindow", Status: history.StatusFailed, Duration: 2 * time.Second, Err: errors.New("boom")},
		{Command: "selectCollection", Status: history.StatusSkipped},
	}}

	path := filepath.Join(t.TempDir(), "junit.xml")
	require.NoError(t, r.writeJUnit(res, path))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	suite := doc.FindElement("//testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, suiteName, suite.SelectAttrValue("name", ""))
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))
}

func TestRevision(t *testing.T) {
	t.Run("outside a repository", func(t *testing.T) {
		assert.Equal(t, revisionUnknown, Revision(t.TempDir()))
	})

	t.Run("repository without commits", func(t *testing.T) {
		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		assert.Equal(t, revisionUnknown, Revision(dir))
	})

	t.Run("detects the checkout from a nested directory", func(t *testing.T) {
		dir := t.TempDir()
		repo, err := git.PlainInit(dir, false)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("smoke harness\n"), 0o644))
		wt, err := repo.Worktree()
		require.NoError(t, err)
		_, err = wt.Add("README.md")
		require.NoError(t, err)
		hash, err := wt.Commit("initial", &git.CommitOptions{
			Author: &object.Signature{Name: "smoke", Email: "smoke@example.com", When: time.Now()},
		})
		require.NoError(t, err)

		nested := filepath.Join(dir, "packages", "compass")
		require.NoError(t, os.MkdirAll(nested, 0o755))
		assert.Equal(t, hash.String()[:shortHashLen], Revision(nested))
	})
}

func TestRun_FailsWithoutBuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.DistDir = t.TempDir()
	cfg.Proxy.Enabled = true
	r := New(cfg, zap.NewNop())

	res, err := r.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, launcher.ErrExecutableNotFound)
	assert.Contains(t, err.Error(), "build the application before testing")
	require.NotNil(t, res)
	assert.NotEmpty(t, res.RunID)
	assert.DirExists(t, res.RunDir)
}
