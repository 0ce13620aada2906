package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newChatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{"total_tokens": 321},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChatLLMRecognizerParsesIntent(t *testing.T) {
	content := "```json\n" +
		`{"core_query":"GMV","metric_id":"gmv","aggregation_type":"sum","dimensions":["地区"],"comparison_type":"","confidence":0.92,"reasoning":"成交金额即GMV"}` +
		"\n```"
	server := newChatServer(t, content, http.StatusOK)

	recognizer, err := NewChatLLMRecognizer(LLMConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "glm-4-flash",
		Timeout: time.Second,
	}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewChatLLMRecognizer() error = %v", err)
	}

	in, confidence, metadata, err := recognizer.Recognize(context.Background(), "最近7天的成交金额", nil)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if in.MetricID != "gmv" || in.CoreQuery != "GMV" {
		t.Fatalf("intent = %+v", in)
	}
	if in.Aggregation != AggregationSum {
		t.Fatalf("Aggregation = %q", in.Aggregation)
	}
	if in.TimeRange == nil {
		t.Fatal("expected time range re-extracted from query")
	}
	if in.Filters["domain"] != "电商" {
		t.Fatalf("filters.domain = %q", in.Filters["domain"])
	}
	if confidence != 0.92 {
		t.Fatalf("confidence = %v", confidence)
	}
	if metadata["tokens_used"] != 321 {
		t.Fatalf("tokens_used = %v", metadata["tokens_used"])
	}
}

func TestChatLLMRecognizerRejectsMalformedJSON(t *testing.T) {
	server := newChatServer(t, "this is not json", http.StatusOK)

	recognizer, err := NewChatLLMRecognizer(LLMConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewChatLLMRecognizer() error = %v", err)
	}
	if _, _, _, err := recognizer.Recognize(context.Background(), "查询", nil); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestChatLLMRecognizerSurfacesHTTPError(t *testing.T) {
	server := newChatServer(t, "", http.StatusBadGateway)

	recognizer, err := NewChatLLMRecognizer(LLMConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewChatLLMRecognizer() error = %v", err)
	}
	if _, _, _, err := recognizer.Recognize(context.Background(), "查询", nil); err == nil {
		t.Fatal("expected http error")
	}
}

func TestChatLLMRecognizerValidatesConfig(t *testing.T) {
	if _, err := NewChatLLMRecognizer(LLMConfig{APIKey: "k"}, testRegistry(t)); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewChatLLMRecognizer(LLMConfig{BaseURL: "http://x"}, testRegistry(t)); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
