package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"forcible/internal/domain"
)

const systemPrompt = "You are an expert news analyst specializing in New Zealand media. You provide objective, structured analysis of news articles."

const userPrompt = `Analyze this New Zealand news article and provide structured analysis.

%s

Please provide:
1. Key facts and statistics with importance scores (1-10)
2. Relevance score (0-10) for general New Zealand news interests
3. PR probability (0-100) - likelihood this was planted by PR/communications teams. Consider:
   - Generic corporate announcements
   - Overly promotional language
   - Lack of critical perspective
   - Focus on company/organization success without context
4. Content classification:
   - "headline-only" if the headline alone conveys the key information
   - "clickthrough" if the full article is needed for understanding
5. A brief one-sentence summary
6. Brief reasoning for PR probability assessment`

// responseSchema constrains the model output to the analysis shape. Numeric
// range and enum checks are still re-validated locally before the result is
// trusted.
const responseSchema = `{
	"type": "object",
	"properties": {
		"key_facts": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"fact": {"type": "string"},
					"importance": {"type": "integer"}
				},
				"required": ["fact", "importance"],
				"additionalProperties": false
			}
		},
		"relevance_score": {"type": "integer"},
		"pr_probability": {"type": "integer"},
		"content_classification": {"type": "string", "enum": ["headline-only", "clickthrough"]},
		"summary": {"type": "string"},
		"reasoning": {"type": "string"}
	},
	"required": ["key_facts", "relevance_score", "pr_probability", "content_classification", "summary", "reasoning"],
	"additionalProperties": false
}`

// Config holds analysis engine configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Engine analyzes articles through the OpenAI chat completions API with
// structured output.
type Engine struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key not configured")
	}

	return &Engine{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With("component", "analyze"),
	}, nil
}

// Analyze produces a structured analysis for the article. When content is
// absent the model is told to reason from the headline alone. Any transport
// failure, timeout or schema violation degrades to a default result carrying
// an error marker; this method never fails past its boundary.
func (e *Engine) Analyze(ctx context.Context, headline string, content *string) domain.Analysis {
	analysis, err := e.call(ctx, headline, content)
	if err != nil {
		e.logger.Warn("analysis failed, returning default result",
			"headline", headline,
			"error", err,
		)
		return defaultAnalysis(headline, err)
	}
	return analysis
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *Engine) call(ctx context.Context, headline string, content *string) (domain.Analysis, error) {
	articleText := "Headline: " + headline + "\n\n"
	if content != nil && *content != "" {
		articleText += "Content: " + *content
	} else {
		articleText += "Content: [No content available - analyze headline only]"
	}

	body, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPrompt, articleText)},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "article_analysis",
				Strict: true,
				Schema: json.RawMessage(responseSchema),
			},
		},
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("llm api error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Analysis{}, fmt.Errorf("llm api %d: %s", resp.StatusCode, string(b))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return domain.Analysis{}, fmt.Errorf("empty llm response")
	}

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode analysis payload: %w", err)
	}

	if err := analysis.Validate(); err != nil {
		return domain.Analysis{}, fmt.Errorf("invalid analysis payload: %w", err)
	}

	return analysis, nil
}

// defaultAnalysis is the degraded result for a failed analysis: neutral
// relevance, zero PR probability, summary falling back to the headline and an
// explicit error marker. It is a valid, storable terminal state.
func defaultAnalysis(headline string, cause error) domain.Analysis {
	return domain.Analysis{
		KeyFacts:              []domain.KeyFact{},
		RelevanceScore:        5,
		PRProbability:         0,
		ContentClassification: domain.ClassificationClickthrough,
		Summary:               headline,
		Reasoning:             fmt.Sprintf("Analysis failed: %v", cause),
		Error:                 cause.Error(),
	}
}
