// internal/runner/runner.go

// Package runner composes one smoke run end to end: the egress guard comes
// up, the packaged application is launched and attached to, the scenario
// catalogue walks the sampling flow, and the run's outputs land in the JUnit
// report, the artifact bundle, the history store, and, on failure, a triaged
// GitHub issue.
package runner

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/compass-pilot/internal/applog"
	"github.com/xkilldash9x/compass-pilot/internal/artifacts"
	"github.com/xkilldash9x/compass-pilot/internal/client"
	"github.com/xkilldash9x/compass-pilot/internal/config"
	"github.com/xkilldash9x/compass-pilot/internal/history"
	"github.com/xkilldash9x/compass-pilot/internal/launcher"
	"github.com/xkilldash9x/compass-pilot/internal/netguard"
	"github.com/xkilldash9x/compass-pilot/internal/registry"
	"github.com/xkilldash9x/compass-pilot/internal/reporting"
	"github.com/xkilldash9x/compass-pilot/internal/scenario"
	"github.com/xkilldash9x/compass-pilot/internal/triage"
)

const (
	suiteName  = "compass-smoke"
	junitClass = "compass.smoke"

	// Connecting and sampling both cross the wire to the deployment, so they
	// get a longer budget than the in-window interactions, which carry their
	// own internal timeouts.
	connectTimeout = 30 * time.Second
	sampleTimeout  = 30 * time.Second

	// defaultCollection ships with every mongod, so the walkthrough needs no
	// seeding step. It is an internal collection, which also exercises the
	// suffixed sidebar title.
	defaultCollection = "local.startup_log"
	defaultQuery      = `{ "hostname": { "$exists": true } }`
)

// Step is one suite entry: a catalogue command plus the arguments it runs
// with.
type Step struct {
	Command string
	Args    scenario.Invocation
}

// StepOutcome is the recorded result of one suite step.
type StepOutcome struct {
	Command  string
	Status   string
	Duration time.Duration
	Err      error
	// Payload is the step's invocation, pre-encoded for the history store.
	Payload encodingjson.RawMessage
}

// Result is everything a finished run produced. Passed distinguishes a
// clean walkthrough from a scenario failure; infrastructure failures never
// get this far and surface as errors from Run instead.
type Result struct {
	RunID      string
	Revision   string
	AppVersion string
	StartedAt  time.Time
	Duration   time.Duration

	Passed        bool
	FailedCommand string
	Err           error

	Steps         []StepOutcome
	CrashEvidence []string
	RefusedHosts  []string

	RunDir     string
	JUnitPath  string
	BundlePath string
	IssueURL   string
	TriageNote string
}

// DefaultSuite is the standard walkthrough: dismiss onboarding, connect to
// the local deployment, open the startup log, and push the sampling
// controls through a view/refine/reset/resample cycle.
func DefaultSuite() []Step {
	return []Step{
		{Command: scenario.CmdStartUsingCompass},
		{Command: scenario.CmdGotoSchemaWindow, Args: scenario.Invocation{Timeout: connectTimeout}},
		{Command: scenario.CmdSelectCollection, Args: scenario.Invocation{Collection: defaultCollection}},
		{Command: scenario.CmdViewSampleDocuments},
		{Command: scenario.CmdRefineSample, Args: scenario.Invocation{Query: defaultQuery}},
		{Command: scenario.CmdResetSample},
		{Command: scenario.CmdSampleCollection, Args: scenario.Invocation{
			Collection: defaultCollection,
			Internal:   true,
			Timeout:    sampleTimeout,
		}},
	}
}

// Runner owns the composition of a run. It is cheap to build and single
// use: one Run per Runner.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New builds a runner over the given configuration.
func New(cfg *config.Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger.Named("runner")}
}

// Run executes the default suite against a freshly launched application.
// The returned error covers infrastructure only (no build, launch or attach
// failure); a completed run that failed a scenario returns a nil error with
// Result.Passed false, and the caller decides the exit code.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.New().String(),
		Revision:  Revision("."),
		StartedAt: time.Now(),
	}
	r.logger.Info("Starting smoke run.",
		zap.String("run_id", res.RunID),
		zap.String("revision", res.Revision))

	runDir := filepath.Join(r.cfg.Report.ArtifactDir, res.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create run directory: %w", err)
	}
	res.RunDir = runDir

	// The guard runs for the whole launch-to-teardown span; its lifetime is
	// the serve context, not the suite.
	var background errgroup.Group
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()

	var guard *netguard.Guard
	var proxyAddr string
	if r.cfg.Proxy.Enabled {
		guard = netguard.New(r.cfg.Proxy.Allow, r.logger)
		if err := guard.Listen(r.cfg.Proxy.Listen); err != nil {
			return res, err
		}
		proxyAddr = guard.Addr()
		background.Go(func() error { return guard.Serve(serveCtx) })
	}
	defer func() {
		stopServe()
		if err := background.Wait(); err != nil {
			r.logger.Warn("Egress guard exited with an error.", zap.Error(err))
		}
		if guard != nil {
			res.RefusedHosts = guard.Refused()
		}
	}()

	logDir := r.cfg.App.LogDir
	if logDir == "" {
		logDir = runDir
	}
	app, err := launcher.Start(ctx, launcher.Options{
		DistDir:        r.cfg.App.DistDir,
		Executable:     r.cfg.App.Executable,
		DebugPort:      r.cfg.App.DebugPort,
		ProxyAddr:      proxyAddr,
		LogDir:         logDir,
		StartupTimeout: r.cfg.App.StartupTimeout,
		StopGrace:      r.cfg.App.StopGrace,
	}, r.logger)
	if err != nil {
		return res, err
	}
	defer func() {
		// Backstop; the ordered teardown below normally stops the app first.
		if err := launcher.StopApplication(context.Background(), app); err != nil {
			r.logger.Warn("Application shutdown failed.", zap.Error(err))
		}
	}()
	res.AppVersion = app.Version().Browser

	stdoutLog := filepath.Join(logDir, "app-stdout.log")
	stderrLog := filepath.Join(logDir, "app-stderr.log")
	followCtx, stopFollow := context.WithCancel(ctx)
	defer stopFollow()
	followers := r.startFollowers(followCtx, stdoutLog, stderrLog)

	cli := client.NewCDP(client.Options{
		DebuggerURL:        app.BaseURL(),
		Process:            app,
		DefaultWaitTimeout: r.cfg.Client.DefaultWaitTimeout,
		PollInterval:       r.cfg.Client.PollInterval,
	}, r.logger)
	if err := cli.Start(ctx); err != nil {
		return res, fmt.Errorf("failed to attach to the application: %w", err)
	}

	reg := registry.New[scenario.Invocation](cli, r.logger)
	scenario.AddCommands(reg, r.logger)

	res.Steps = r.runSuite(ctx, reg, DefaultSuite())
	summarize(res)

	// Detaching stops the owned process too, which flushes its final output
	// before the followers are drained for evidence.
	if err := cli.Stop(ctx); err != nil {
		r.logger.Warn("Client detach failed.", zap.Error(err))
	}
	stopFollow()
	res.CrashEvidence = collectEvidence(followers)
	if res.Passed && len(res.CrashEvidence) > 0 {
		r.logger.Warn("Run passed but the application emitted crash evidence.",
			zap.Strings("evidence", res.CrashEvidence))
	}

	evidencePath := r.writeEvidence(runDir, res.CrashEvidence)

	junitPath := r.cfg.Report.JUnitPath
	if junitPath == "" {
		junitPath = filepath.Join(runDir, "junit.xml")
	}
	if err := r.writeJUnit(res, junitPath); err != nil {
		r.logger.Warn("Failed to write JUnit report.", zap.Error(err))
	} else {
		res.JUnitPath = junitPath
	}

	bundler := artifacts.NewBundler(r.cfg.Report.ArtifactDir, r.cfg.Report.Compress, r.logger)
	bundlePath, err := bundler.Bundle(res.RunID, []artifacts.Entry{
		{Path: res.JUnitPath},
		{Path: stdoutLog},
		{Path: stderrLog},
		{Path: evidencePath},
	})
	if err != nil {
		r.logger.Warn("Failed to bundle run artifacts.", zap.Error(err))
	} else {
		res.BundlePath = bundlePath
	}

	res.Duration = time.Since(res.StartedAt)

	if r.cfg.History.Enabled {
		if err := r.recordHistory(ctx, res); err != nil {
			r.logger.Warn("Failed to record run history.", zap.Error(err))
		}
	}
	if !res.Passed {
		r.reportFailure(ctx, res)
	}

	r.logger.Info("Smoke run finished.",
		zap.String("run_id", res.RunID),
		zap.Bool("passed", res.Passed),
		zap.Duration("took", res.Duration),
		zap.String("bundle", res.BundlePath))
	return res, nil
}

// runSuite executes suite in order through reg, fail-fast: the first failed
// command marks every remaining step skipped without running it.
func (r *Runner) runSuite(ctx context.Context, reg *registry.Registry[scenario.Invocation], suite []Step) []StepOutcome {
	outcomes := make([]StepOutcome, 0, len(suite))
	failed := false
	for _, step := range suite {
		if failed {
			outcomes = append(outcomes, StepOutcome{
				Command: step.Command,
				Status:  history.StatusSkipped,
				Payload: payloadFor(step),
			})
			continue
		}

		started := time.Now()
		err := reg.Run(ctx, step.Command, step.Args)
		outcome := StepOutcome{
			Command:  step.Command,
			Duration: time.Since(started),
			Payload:  payloadFor(step),
		}
		if err != nil {
			failed = true
			outcome.Status = history.StatusFailed
			outcome.Err = err
			r.logger.Error("Scenario command failed.",
				zap.String("command", step.Command),
				zap.Duration("took", outcome.Duration),
				zap.Error(err))
		} else {
			outcome.Status = history.StatusPassed
			r.logger.Info("Scenario command passed.",
				zap.String("command", step.Command),
				zap.Duration("took", outcome.Duration))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// summarize derives the run verdict from the step outcomes.
func summarize(res *Result) {
	res.Passed = true
	for _, o := range res.Steps {
		if o.Status == history.StatusFailed {
			res.Passed = false
			res.FailedCommand = o.Command
			res.Err = o.Err
			return
		}
	}
}

// payloadFor encodes a step's invocation for the history store.
func payloadFor(step Step) encodingjson.RawMessage {
	b, err := json.Marshal(step.Args)
	if err != nil {
		return nil
	}
	return b
}

func (r *Runner) startFollowers(ctx context.Context, paths ...string) []*applog.Follower {
	var followers []*applog.Follower
	for _, path := range paths {
		f := applog.NewFollower(path, r.logger)
		if err := f.Start(ctx); err != nil {
			r.logger.Warn("Log follower not started.", zap.String("path", path), zap.Error(err))
			continue
		}
		followers = append(followers, f)
	}
	return followers
}

// collectEvidence drains the followers and merges their events into one
// time-ordered list of annotated lines.
func collectEvidence(followers []*applog.Follower) []string {
	var events []applog.Event
	for _, f := range followers {
		f.Wait()
		events = append(events, f.Events()...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, ev.Kind+": "+ev.Line)
	}
	return lines
}

// writeEvidence persists the evidence lines next to the other run files so
// the bundle carries them. Returns "" when there is nothing to write.
func (r *Runner) writeEvidence(runDir string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	path := filepath.Join(runDir, "crash-evidence.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		r.logger.Warn("Failed to write crash evidence.", zap.Error(err))
		return ""
	}
	return path
}

func (r *Runner) writeJUnit(res *Result, path string) error {
	rep, err := reporting.New("junit", path, suiteName)
	if err != nil {
		return err
	}
	for _, o := range res.Steps {
		if err := rep.Write(caseFor(o)); err != nil {
			rep.Close()
			return err
		}
	}
	return rep.Close()
}

// caseFor maps a step outcome onto a report case.
func caseFor(o StepOutcome) reporting.CaseResult {
	c := reporting.CaseResult{
		Name:     o.Command,
		Class:    junitClass,
		Duration: o.Duration,
		Skipped:  o.Status == history.StatusSkipped,
	}
	if o.Status == history.StatusFailed && o.Err != nil {
		c.Failure = &reporting.CaseFailure{
			Message: o.Err.Error(),
			Detail:  fmt.Sprintf("command %s failed after %s: %v", o.Command, o.Duration.Round(time.Millisecond), o.Err),
		}
	}
	return c
}

func (r *Runner) recordHistory(ctx context.Context, res *Result) error {
	pool, err := pgxpool.New(ctx, r.cfg.History.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to history database: %w", err)
	}
	defer pool.Close()

	store, err := history.New(ctx, pool, r.logger)
	if err != nil {
		return err
	}
	return store.RecordRun(ctx, historyRun(res), historySteps(res.Steps))
}

func historyRun(res *Result) history.Run {
	run := history.Run{
		ID:        res.RunID,
		Revision:  res.Revision,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
		Passed:    res.Passed,
	}
	if res.Err != nil {
		run.Failure = res.Err.Error()
	}
	return run
}

func historySteps(outcomes []StepOutcome) []history.StepResult {
	steps := make([]history.StepResult, len(outcomes))
	for i, o := range outcomes {
		steps[i] = history.StepResult{
			Seq:      i + 1,
			Command:  o.Command,
			Status:   o.Status,
			Duration: o.Duration,
			Payload:  o.Payload,
		}
		if o.Err != nil {
			steps[i].Message = o.Err.Error()
		}
	}
	return steps
}

// reportFailure produces the failure-only outputs: the triage note and the
// GitHub issue. Both are best effort; their errors are logged, never
// propagated, since the run result already stands.
func (r *Runner) reportFailure(ctx context.Context, res *Result) {
	if r.cfg.Triage.Enabled {
		annotator, err := triage.New(ctx, r.cfg.Triage, nil, r.logger)
		if err != nil {
			r.logger.Warn("Triage annotator unavailable.", zap.Error(err))
		} else if note, err := annotator.Annotate(ctx, triageFailure(res)); err != nil {
			r.logger.Warn("Triage annotation failed.", zap.Error(err))
		} else {
			res.TriageNote = note
		}
	}

	if r.cfg.Report.GitHub.Enabled {
		reporter, err := reporting.NewIssueReporter(r.cfg.Report.GitHub, nil, r.logger)
		if err != nil {
			r.logger.Warn("Issue reporter unavailable.", zap.Error(err))
			return
		}
		url, err := reporter.FileFailure(ctx, reporting.RunFailure{
			RunID:         res.RunID,
			Revision:      res.Revision,
			Command:       res.FailedCommand,
			Err:           res.Err.Error(),
			CrashEvidence: res.CrashEvidence,
			ArtifactPath:  res.BundlePath,
			TriageNote:    res.TriageNote,
			OccurredAt:    res.StartedAt,
		})
		if err != nil {
			r.logger.Warn("Failed to file the failure issue.", zap.Error(err))
			return
		}
		res.IssueURL = url
	}
}

// triageFailure shapes the run result for the annotator.
func triageFailure(res *Result) triage.Failure {
	var ran []string
	for _, o := range res.Steps {
		if o.Status == history.StatusPassed {
			ran = append(ran, o.Command)
		}
	}
	return triage.Failure{
		Command:  res.FailedCommand,
		Err:      res.Err.Error(),
		Evidence: res.CrashEvidence,
		Steps:    ran,
	}
}
