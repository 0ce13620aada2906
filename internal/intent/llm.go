package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/observability"
	"github.com/chatbi/chatbi/internal/recall"
)

// LLMRecognizer is the L3 layer contract. Implementations return the parsed
// intent, the model's confidence, and layer metadata.
type LLMRecognizer interface {
	Recognize(ctx context.Context, query string, candidates []recall.Candidate) (Intent, float64, map[string]any, error)
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// ChatLLMRecognizer resolves intent through an OpenAI-compatible chat
// completion endpoint (GLM by default). The model is asked for a single JSON
// object; candidate metrics from the semantic layer are passed as hints.
type ChatLLMRecognizer struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	registry    *catalog.Registry
	rules       *Recognizer
}

func NewChatLLMRecognizer(cfg LLMConfig, registry *catalog.Registry) (*ChatLLMRecognizer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "glm-4-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChatLLMRecognizer{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		registry:    registry,
		rules:       NewRecognizer(registry),
	}, nil
}

type llmIntentPayload struct {
	CoreQuery   string   `json:"core_query"`
	MetricID    string   `json:"metric_id"`
	Aggregation string   `json:"aggregation_type"`
	Dimensions  []string `json:"dimensions"`
	Comparison  string   `json:"comparison_type"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
}

func (r *ChatLLMRecognizer) Recognize(ctx context.Context, query string, candidates []recall.Candidate) (Intent, float64, map[string]any, error) {
	body, err := json.Marshal(r.buildPayload(query, candidates))
	if err != nil {
		return Intent{}, 0, nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v4/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Intent{}, 0, nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		observability.ObserveLLMRequest(r.model, "error")
		return Intent{}, 0, nil, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveLLMRequest(r.model, "error")
		return Intent{}, 0, nil, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		observability.ObserveLLMRequest(r.model, "error")
		return Intent{}, 0, nil, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		observability.ObserveLLMRequest(r.model, "error")
		return Intent{}, 0, nil, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		observability.ObserveLLMRequest(r.model, "error")
		return Intent{}, 0, nil, fmt.Errorf("empty chat completion choices")
	}

	var payload llmIntentPayload
	content := stripMarkdownJSON(parsed.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		observability.ObserveLLMRequest(r.model, "error")
		return Intent{}, 0, nil, fmt.Errorf("decode model intent %q: %w", content, err)
	}
	observability.ObserveLLMRequest(r.model, "success")

	in := Intent{
		Query:       query,
		CoreQuery:   payload.CoreQuery,
		MetricID:    payload.MetricID,
		Aggregation: Aggregation(payload.Aggregation),
		Dimensions:  payload.Dimensions,
		Comparison:  payload.Comparison,
		Filters:     map[string]string{},
	}
	if in.CoreQuery == "" {
		in.CoreQuery = query
	}
	if in.Dimensions == nil {
		in.Dimensions = []string{}
	}
	if metric, ok := r.registry.ByID(in.MetricID); ok {
		in.Filters["domain"] = metric.Domain
	}

	// The model does not return resolved dates; time expressions are
	// re-extracted deterministically from the original query.
	if timeRange, granularity, _ := r.rules.extractTimeRange(query); timeRange != nil {
		in.TimeRange = timeRange
		in.Granularity = granularity
		in.Filters["time_range"] = timeRange.String()
	}

	metadata := map[string]any{
		"model":       r.model,
		"reasoning":   payload.Reasoning,
		"tokens_used": parsed.Usage.TotalTokens,
	}
	return in, payload.Confidence, metadata, nil
}

func (r *ChatLLMRecognizer) buildPayload(query string, candidates []recall.Candidate) map[string]any {
	var catalogLines []string
	for _, metric := range r.registry.All() {
		catalogLines = append(catalogLines, fmt.Sprintf("- %s: %s (%s)", metric.ID, metric.Name, metric.Description))
	}
	var candidateLines []string
	for i, candidate := range candidates {
		if i >= 5 {
			break
		}
		candidateLines = append(candidateLines, fmt.Sprintf("- %s: %s (score %.2f)", candidate.MetricID, candidate.Name, candidate.Score))
	}

	systemPrompt := "You extract a structured analytics intent from a business question. " +
		"Return ONLY a JSON object with keys core_query, metric_id, aggregation_type " +
		"(sum/avg/count/max/min/rate/ratio or empty), dimensions (array), comparison_type " +
		"(yoy/mom or empty), confidence (0-1), reasoning. No markdown, no explanation."
	userPrompt := fmt.Sprintf(
		"Metric catalog:\n%s\n\nCandidate metrics from retrieval:\n%s\n\nQuestion:\n%s",
		strings.Join(catalogLines, "\n"),
		strings.Join(candidateLines, "\n"),
		strings.TrimSpace(query),
	)

	return map[string]any{
		"model": r.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": r.temperature,
	}
}

func stripMarkdownJSON(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
