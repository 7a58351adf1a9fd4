package triage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/config"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	cfg := config.TriageConfig{Enabled: true, Model: "gemini-2.5-flash"}

	_, err := New(context.Background(), cfg, nil, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestBuildPrompt(t *testing.T) {
	t.Run("includes command, error and steps", func(t *testing.T) {
		prompt := buildPrompt(Failure{
			Command: "selectCollection",
			Err:     "timed out after 10s",
			Steps:   []string{"startUsingCompass", "fillOutForm", "clickConnect"},
		})

		assert.Contains(t, prompt, "Failed command: selectCollection")
		assert.Contains(t, prompt, "Error: timed out after 10s")
		assert.Contains(t, prompt, "startUsingCompass")
		assert.NotContains(t, prompt, "Application output", "No evidence section without evidence")
	})

	t.Run("keeps only the tail of long evidence", func(t *testing.T) {
		evidence := make([]string, 0, 50)
		for i := 0; i < 50; i++ {
			evidence = append(evidence, fmt.Sprintf("line-%d", i))
		}

		prompt := buildPrompt(Failure{Command: "clickConnect", Err: "boom", Evidence: evidence})

		assert.NotContains(t, prompt, "line-29")
		assert.Contains(t, prompt, "line-30")
		assert.Contains(t, prompt, "line-49")
	})
}

func TestAnnotate_ReturnsModelNote(t *testing.T) {
	var requestBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		requestBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "- Likely cause: connect form selector changed\n- Suspect: connect window markup\n- Next step: dump the DOM before clicking\n"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"totalTokenCount": 42}
		}`)
	}))
	defer srv.Close()

	cfg := config.TriageConfig{
		Enabled: true,
		Model:   "gemini-2.5-flash",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}
	annotator, err := New(context.Background(), cfg, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	note, err := annotator.Annotate(context.Background(), Failure{
		Command:  "clickConnect",
		Err:      "timed out after 10s waiting for .connect-form",
		Evidence: []string{"Renderer process crashed"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(note, "- Likely cause:"), "note should start with the first bullet, got %q", note)
	assert.NotContains(t, note, "\n\n", "note should be trimmed")
	assert.Contains(t, requestBody, "clickConnect")
	assert.Contains(t, requestBody, "Renderer process crashed")
}

func TestAnnotate_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates": []}`)
	}))
	defer srv.Close()

	cfg := config.TriageConfig{Enabled: true, Model: "gemini-2.5-flash", APIKey: "test-key", BaseURL: srv.URL}
	annotator, err := New(context.Background(), cfg, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	_, err = annotator.Annotate(context.Background(), Failure{Command: "clickConnect", Err: "boom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")
}
