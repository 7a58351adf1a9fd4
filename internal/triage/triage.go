// Package triage asks a generative model for a short diagnosis of a
// failed smoke run. The note lands in the failure issue so whoever picks
// it up starts with a hypothesis instead of a raw timeout.
package triage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/compass-pilot/internal/config"
)

// maxEvidenceLines caps how much crash output goes into the prompt.
const maxEvidenceLines = 20

// Failure is the context handed to the model.
type Failure struct {
	Command  string
	Err      string
	Evidence []string
	// Steps lists the commands that ran before the failure, in order.
	Steps []string
}

// Annotator generates triage notes for failures.
type Annotator struct {
	cfg    config.TriageConfig
	client *genai.Client
	logger *zap.Logger
}

// New initializes the annotator. httpClient may be nil.
func New(ctx context.Context, cfg config.TriageConfig, httpClient *http.Client, logger *zap.Logger) (*Annotator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("triage API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Annotator{
		cfg:    cfg,
		client: client,
		logger: logger.Named("triage"),
	}, nil
}

// Annotate returns a short diagnosis for the failure.
func (a *Annotator) Annotate(ctx context.Context, failure Failure) (string, error) {
	startTime := time.Now()

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:     ptr(float32(0.2)),
		MaxOutputTokens: 512,
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.Model, genai.Text(buildPrompt(failure)), genCfg)
	if err != nil {
		return "", fmt.Errorf("triage generation failed: %w", err)
	}

	note := strings.TrimSpace(resp.Text())
	if note == "" {
		return "", fmt.Errorf("triage model returned no content")
	}

	a.logger.Info("Triage note generated.",
		zap.String("command", failure.Command),
		zap.Duration("duration", time.Since(startTime)),
	)
	return note, nil
}

const systemPrompt = `You are a senior desktop QA engineer triaging an automated
smoke test failure of an Electron database GUI. Reply with exactly three
bullet lines: the likely cause, the suspect area of the product or test
harness, and the single most useful next debugging step. No preamble.`

func buildPrompt(f Failure) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Failed command: %s\n", f.Command)
	fmt.Fprintf(&b, "Error: %s\n", f.Err)

	if len(f.Steps) > 0 {
		b.WriteString("\nCommands executed before the failure:\n")
		for _, step := range f.Steps {
			fmt.Fprintf(&b, "  %s\n", step)
		}
	}

	evidence := f.Evidence
	if len(evidence) > maxEvidenceLines {
		evidence = evidence[len(evidence)-maxEvidenceLines:]
	}
	if len(evidence) > 0 {
		b.WriteString("\nApplication output around the failure:\n")
		for _, line := range evidence {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}
