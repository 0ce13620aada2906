package verify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Scenario is one self-contained probe against the service. Run returns
// whether the scenario passed; errors are reserved for transport failures.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, client *Client, w io.Writer) (bool, error)
}

func Scenarios() []Scenario {
	return []Scenario{
		{Name: "single_query_metric", Run: runSingleQueryMetric},
		{Name: "multi_turn_time_override", Run: runMultiTurnTimeOverride},
		{Name: "graph_recall", Run: runGraphRecall},
		{Name: "sql_generation", Run: runSQLGeneration},
	}
}

// RunAll executes the named scenarios (all of them when names is empty) and
// returns the number of failures.
func RunAll(ctx context.Context, client *Client, w io.Writer, names ...string) int {
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}

	failures := 0
	for _, scenario := range Scenarios() {
		if len(wanted) > 0 && !wanted[scenario.Name] {
			continue
		}
		fmt.Fprintf(w, "=== %s\n", scenario.Name)
		ok, err := scenario.Run(ctx, client, w)
		switch {
		case err != nil:
			fmt.Fprintf(w, "FAIL %s: %v\n", scenario.Name, err)
			failures++
		case !ok:
			fmt.Fprintf(w, "FAIL %s\n", scenario.Name)
			failures++
		default:
			fmt.Fprintf(w, "PASS %s\n", scenario.Name)
		}
	}
	return failures
}

func runSingleQueryMetric(ctx context.Context, client *Client, w io.Writer) (bool, error) {
	resp, err := client.Query(ctx, QueryRequest{Query: "今天的DAU是多少"})
	if err != nil {
		return false, err
	}
	if !printable(resp, w) {
		return false, nil
	}

	ok := true
	if missing := MissingFields(resp.Body); len(missing) > 0 {
		fmt.Fprintf(w, "  missing fields: %s\n", strings.Join(missing, ", "))
		ok = false
	}

	core := CoreQuery(resp.Body)
	fmt.Fprintf(w, "  core_query: %q, source_layer: %s\n", core, SourceLayer(resp.Body))
	if !MetricMatches(core, "DAU") {
		fmt.Fprintf(w, "  MISMATCH: expected metric DAU in %q\n", core)
		ok = false
	}
	return ok, nil
}

func runMultiTurnTimeOverride(ctx context.Context, client *Client, w io.Writer) (bool, error) {
	conversationID := uuid.NewString()

	first, err := client.Query(ctx, QueryRequest{Query: "最近7天的GMV", ConversationID: conversationID})
	if err != nil {
		return false, err
	}
	if !printable(first, w) {
		return false, nil
	}
	second, err := client.Query(ctx, QueryRequest{Query: "那最近30天呢", ConversationID: conversationID})
	if err != nil {
		return false, err
	}
	if !printable(second, w) {
		return false, nil
	}

	fmt.Fprintf(w, "  turn 1 time_range: %s\n", TimeRangeFilter(first.Body))
	fmt.Fprintf(w, "  turn 2 time_range: %s\n", TimeRangeFilter(second.Body))
	if !TimeRangeOverridden(first.Body, second.Body) {
		fmt.Fprintln(w, "  MISMATCH: follow-up turn did not override the time range")
		return false, nil
	}
	if !MetricMatches(CoreQuery(second.Body), "GMV") {
		fmt.Fprintf(w, "  MISMATCH: follow-up turn lost the metric, core_query %q\n", CoreQuery(second.Body))
		return false, nil
	}
	return true, nil
}

func runGraphRecall(ctx context.Context, client *Client, w io.Writer) (bool, error) {
	resp, err := client.Query(ctx, QueryRequest{Query: "用户活跃相关的指标有哪些"})
	if err != nil {
		return false, err
	}
	if !printable(resp, w) {
		return false, nil
	}

	candidates := GraphCandidates(resp.Body)
	if len(candidates) == 0 {
		fmt.Fprintln(w, "  no graph candidates reported")
	} else {
		fmt.Fprintf(w, "  graph candidates: %s\n", strings.Join(candidates, ", "))
	}
	// Presence depends on deployment (graph recall may be disabled); a
	// well-formed response is the pass condition.
	return len(MissingFields(resp.Body)) == 0, nil
}

func runSQLGeneration(ctx context.Context, client *Client, w io.Writer) (bool, error) {
	resp, err := client.Query(ctx, QueryRequest{Query: "最近7天的GMV总和"})
	if err != nil {
		return false, err
	}
	if !printable(resp, w) {
		return false, nil
	}

	sqlText, generated := GeneratedSQL(resp.Body)
	if !generated {
		fmt.Fprintf(w, "  no SQL generated: %q\n", sqlText)
		return false, nil
	}
	fmt.Fprintf(w, "  generated_sql: %s\n", sqlText)
	if metadata, ok := resp.Body["metadata"].(map[string]any); ok {
		if params, ok := metadata["sql_params"].([]any); ok {
			fmt.Fprintf(w, "  sql_params: %v\n", params)
		}
	}
	return true, nil
}

// printable reports whether the response is usable for further checks, and
// prints the failure verbatim when it is not.
func printable(resp *Response, w io.Writer) bool {
	if !resp.OK() {
		fmt.Fprintf(w, "  HTTP %d: %s\n", resp.Status, resp.Raw)
		return false
	}
	if resp.Body == nil {
		fmt.Fprintf(w, "  non-JSON response: %s\n", resp.Raw)
		return false
	}
	return true
}
