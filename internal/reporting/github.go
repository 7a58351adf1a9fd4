package reporting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/config"
)

// RunFailure carries everything an issue needs to be actionable.
type RunFailure struct {
	RunID         string
	Revision      string
	Command       string
	Err           string
	CrashEvidence []string
	ArtifactPath  string
	TriageNote    string
	OccurredAt    time.Time
}

// IssueReporter files smoke failures as GitHub issues. Repeated failures
// of the same command land as comments on the open issue instead of new
// issues.
type IssueReporter struct {
	cfg    config.GitHubConfig
	client *github.Client
	logger *zap.Logger
}

// NewIssueReporter creates a reporter against the configured repository.
// httpClient may be nil; cfg.BaseURL overrides the API endpoint for
// GitHub Enterprise installs and tests.
func NewIssueReporter(cfg config.GitHubConfig, httpClient *http.Client, logger *zap.Logger) (*IssueReporter, error) {
	client := github.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url %q: %w", cfg.BaseURL, err)
		}
		// The client requires a trailing slash on the endpoint.
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		client.BaseURL = base
	}

	return &IssueReporter{
		cfg:    cfg,
		client: client,
		logger: logger.Named("issue_reporter"),
	}, nil
}

// FileFailure reports the failure and returns the issue URL.
func (r *IssueReporter) FileFailure(ctx context.Context, failure RunFailure) (string, error) {
	title := issueTitle(failure.Command)
	body := renderIssueBody(failure)

	existing, err := r.findOpenIssue(ctx, title)
	if err != nil {
		return "", err
	}

	if existing != nil {
		comment := &github.IssueComment{Body: github.String(body)}
		if _, _, err := r.client.Issues.CreateComment(ctx, r.cfg.RepoOwner, r.cfg.RepoName, existing.GetNumber(), comment); err != nil {
			return "", fmt.Errorf("failed to comment on issue #%d: %w", existing.GetNumber(), err)
		}
		r.logger.Info("Appended failure to existing issue.",
			zap.Int("number", existing.GetNumber()),
			zap.String("command", failure.Command),
		)
		return existing.GetHTMLURL(), nil
	}

	req := &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &r.cfg.Labels,
	}
	issue, _, err := r.client.Issues.Create(ctx, r.cfg.RepoOwner, r.cfg.RepoName, req)
	if err != nil {
		return "", fmt.Errorf("failed to create issue: %w", err)
	}

	r.logger.Info("Filed new failure issue.",
		zap.Int("number", issue.GetNumber()),
		zap.String("command", failure.Command),
	)
	return issue.GetHTMLURL(), nil
}

// findOpenIssue looks for an open issue with our labels and the exact
// title. Returns nil when none exists.
func (r *IssueReporter) findOpenIssue(ctx context.Context, title string) (*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		Labels:      r.cfg.Labels,
		ListOptions: github.ListOptions{PerPage: 50},
	}
	issues, _, err := r.client.Issues.ListByRepo(ctx, r.cfg.RepoOwner, r.cfg.RepoName, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list open issues: %w", err)
	}

	for _, issue := range issues {
		if issue.GetTitle() == title {
			return issue, nil
		}
	}
	return nil, nil
}

func issueTitle(command string) string {
	return fmt.Sprintf("Smoke failure: %s", command)
}

func renderIssueBody(f RunFailure) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Automated smoke run `%s` failed at `%s`.\n\n", f.RunID, f.Command)
	fmt.Fprintf(&b, "- **Revision:** `%s`\n", f.Revision)
	fmt.Fprintf(&b, "- **Occurred:** %s\n", f.OccurredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Error:** %s\n", f.Err)
	if f.ArtifactPath != "" {
		fmt.Fprintf(&b, "- **Artifacts:** `%s`\n", f.ArtifactPath)
	}

	if len(f.CrashEvidence) > 0 {
		b.WriteString("\n<details><summary>Application crash evidence</summary>\n\n```\n")
		for _, line := range f.CrashEvidence {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("```\n</details>\n")
	}

	if f.TriageNote != "" {
		b.WriteString("\n**Automated triage**\n\n")
		b.WriteString(f.TriageNote)
		b.WriteByte('\n')
	}

	return b.String()
}
