package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func fullResponse(coreQuery, timeRange string, graphCandidates []string) map[string]any {
	layerMeta := map[string]any{"method": "dual_recall_fusion"}
	if len(graphCandidates) > 0 {
		layerMeta["graph_candidates"] = graphCandidates
	}
	return map[string]any{
		"query":           "q",
		"conversation_id": "conv",
		"intent": map[string]any{
			"core_query":   coreQuery,
			"source_layer": "L1_Rule",
			"filters":      map[string]any{"time_range": timeRange},
		},
		"mql":            "SELECT ...",
		"sql":            "SELECT 1",
		"data":           []any{},
		"interpretation": map[string]any{},
		"all_layers": []any{
			map[string]any{"layer_name": "L1_Rule", "status": "success", "metadata": map[string]any{}},
			map[string]any{"layer_name": "L2_Semantic", "status": "success", "metadata": layerMeta},
		},
		"metadata": map[string]any{"generated_sql": "SELECT 1", "sql_params": []any{}},
	}
}

func TestMetricMatchesIsCaseInsensitiveContainment(t *testing.T) {
	body := fullResponse("DAU", "2026-08-18 ~ 2026-08-25", nil)
	if !MetricMatches(CoreQuery(body), "DAU") {
		t.Fatal("expected DAU to match")
	}
	if !MetricMatches("日活dau指标", "DAU") {
		t.Fatal("expected case-insensitive containment to match")
	}
	if MetricMatches("GMV", "DAU") {
		t.Fatal("expected GMV to mismatch")
	}
}

func TestMissingFieldsListsExactlyTheAbsentField(t *testing.T) {
	body := fullResponse("DAU", "", nil)
	delete(body, "mql")

	missing := MissingFields(body)
	if !reflect.DeepEqual(missing, []string{"mql"}) {
		t.Fatalf("missing = %v", missing)
	}

	if got := MissingFields(fullResponse("DAU", "", nil)); got != nil {
		t.Fatalf("complete response reported missing fields: %v", got)
	}
}

func TestGraphCandidatesFromL2Metadata(t *testing.T) {
	withCandidates := fullResponse("DAU", "", []string{"DAU", "MAU"})
	if got := GraphCandidates(withCandidates); !reflect.DeepEqual(got, []string{"DAU", "MAU"}) {
		t.Fatalf("candidates = %v", got)
	}

	without := fullResponse("DAU", "", nil)
	if got := GraphCandidates(without); got != nil {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestTimeRangeOverridden(t *testing.T) {
	first := fullResponse("GMV", "2026-08-18 ~ 2026-08-25", nil)
	changed := fullResponse("GMV", "2026-07-26 ~ 2026-08-25", nil)
	same := fullResponse("GMV", "2026-08-18 ~ 2026-08-25", nil)

	if !TimeRangeOverridden(first, changed) {
		t.Fatal("expected differing ranges to report override")
	}
	if TimeRangeOverridden(first, same) {
		t.Fatal("expected equal ranges to report no override")
	}
	if TimeRangeOverridden(first, fullResponse("GMV", "", nil)) {
		t.Fatal("expected missing range to report no override")
	}
}

func TestGeneratedSQLRejectsSentinel(t *testing.T) {
	body := fullResponse("GMV", "", nil)
	if _, ok := GeneratedSQL(body); !ok {
		t.Fatal("expected real SQL to pass")
	}

	body["metadata"] = map[string]any{"generated_sql": sqlFailureSentinel}
	if _, ok := GeneratedSQL(body); ok {
		t.Fatal("expected sentinel to fail")
	}
}

func TestServerErrorIsPrintedNotPanicked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	var out bytes.Buffer
	ok, err := runSingleQueryMetric(context.Background(), client, &out)
	if err != nil {
		t.Fatalf("transport error: %v", err)
	}
	if ok {
		t.Fatal("expected failure on HTTP 500")
	}
	if !strings.Contains(out.String(), "HTTP 500") || !strings.Contains(out.String(), "internal failure") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunAllAgainstMockService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body := fullResponse("DAU", "2026-08-18 ~ 2026-08-25", []string{"DAU"})
		switch {
		case strings.Contains(req.Query, "GMV"):
			body = fullResponse("GMV", "2026-08-18 ~ 2026-08-25", nil)
		case strings.Contains(req.Query, "30天"):
			body = fullResponse("GMV", "2026-07-26 ~ 2026-08-25", nil)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	var out bytes.Buffer
	if failures := RunAll(context.Background(), client, &out); failures != 0 {
		t.Fatalf("failures = %d\n%s", failures, out.String())
	}
	for _, scenario := range Scenarios() {
		if !strings.Contains(out.String(), "PASS "+scenario.Name) {
			t.Fatalf("missing PASS line for %s\n%s", scenario.Name, out.String())
		}
	}
}

func TestRunAllFiltersByName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fullResponse("DAU", "", nil))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	var out bytes.Buffer
	RunAll(context.Background(), client, &out, "single_query_metric")
	if strings.Contains(out.String(), "sql_generation") {
		t.Fatalf("unexpected scenario ran:\n%s", out.String())
	}
}
