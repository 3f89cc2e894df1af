package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forcible/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, baseURL string) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	return e
}

// completionWith wraps an analysis payload in the chat completions envelope.
func completionWith(t *testing.T, payload string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": payload}},
		},
	})
	require.NoError(t, err)
	return b
}

const validPayload = `{
	"key_facts": [{"fact": "Rainfall reached 200mm", "importance": 8}],
	"relevance_score": 7,
	"pr_probability": 10,
	"content_classification": "clickthrough",
	"summary": "Heavy rain closed roads across the region.",
	"reasoning": "Factual event reporting with named sources."
}`

func TestNewEngineRequiresKey(t *testing.T) {
	_, err := NewEngine(Config{Model: "gpt-4o-mini"}, testLogger())
	assert.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(completionWith(t, validPayload))
	}))
	defer server.Close()

	e := newTestEngine(t, server.URL)
	content := "Heavy rain fell overnight."

	analysis := e.Analyze(context.Background(), "Storm batters the coast", &content)

	assert.Empty(t, analysis.Error)
	assert.Equal(t, 7, analysis.RelevanceScore)
	assert.Equal(t, 10, analysis.PRProbability)
	assert.Equal(t, domain.ClassificationClickthrough, analysis.ContentClassification)
	require.Len(t, analysis.KeyFacts, 1)
	assert.Equal(t, "Rainfall reached 200mm", analysis.KeyFacts[0].Fact)
	assert.Equal(t, domain.StatusAnalyzed, analysis.Status())

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	require.NotNil(t, gotBody.ResponseFormat)
	assert.Equal(t, "json_schema", gotBody.ResponseFormat.Type)
	require.Len(t, gotBody.Messages, 2)
	assert.Contains(t, gotBody.Messages[1].Content, "Heavy rain fell overnight.")
}

// Without content the prompt tells the model to work from the headline alone.
func TestAnalyzeHeadlineOnlyPrompt(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(completionWith(t, validPayload))
	}))
	defer server.Close()

	e := newTestEngine(t, server.URL)
	e.Analyze(context.Background(), "Just a headline", nil)

	require.Len(t, gotBody.Messages, 2)
	assert.Contains(t, gotBody.Messages[1].Content, "[No content available")
}

func TestAnalyzeDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			},
		},
		{
			name: "garbage response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "not json")
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"choices": []}`)
			},
		},
		{
			name: "payload is not the schema",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[{"message":{"content":"plain prose, no json"}}]}`))
			},
		},
		{
			name: "out of range scores",
			handler: func(w http.ResponseWriter, r *http.Request) {
				payload := strings.Replace(validPayload, `"relevance_score": 7`, `"relevance_score": 42`, 1)
				w.Write([]byte(`{"choices":[{"message":{"content":` + mustQuote(payload) + `}}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			e := newTestEngine(t, server.URL)
			analysis := e.Analyze(context.Background(), "Storm batters the coast", nil)

			assert.NotEmpty(t, analysis.Error)
			assert.Equal(t, domain.StatusAnalysisError, analysis.Status())
			assert.Equal(t, "Storm batters the coast", analysis.Summary)
			assert.Equal(t, 5, analysis.RelevanceScore)
			assert.Equal(t, 0, analysis.PRProbability)
			assert.Empty(t, analysis.KeyFacts)
			assert.Contains(t, analysis.Reasoning, "Analysis failed")
		})
	}
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
