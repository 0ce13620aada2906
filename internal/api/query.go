package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatbi/chatbi/internal/conversation"
	"github.com/chatbi/chatbi/internal/intent"
	"github.com/chatbi/chatbi/internal/interpret"
	"github.com/chatbi/chatbi/internal/mql"
	"github.com/chatbi/chatbi/internal/observability"
)

// sqlUnavailableSentinel is what metadata.generated_sql carries when the
// warehouse path produced nothing, so clients can tell mock data apart from
// real results.
const sqlUnavailableSentinel = "SQL generation disabled or failed"

type queryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	if req.Query == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "query is required", false, nil)
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = deps.RecallTopK
	}
	if topK <= 0 {
		topK = 10
	}

	ctx := r.Context()
	start := deps.Now()
	observability.QueryStarted()
	defer observability.QueryFinished()

	session, err := deps.Conversations.GetOrCreate(ctx, req.ConversationID)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "CONVERSATION_STORE_ERROR", err.Error(), true, nil)
		return
	}
	ctx = observability.ContextWithConversationID(ctx, session.ConversationID)

	resolved := session.ResolveReference(req.Query)
	result := deps.Pipeline.Resolve(ctx, resolved, topK)

	final := result.Final
	if previous, ok := session.LastIntent(); ok {
		final = conversation.Merge(previous, final, deps.Registry)
	}

	metric, metricKnown := deps.Registry.ByID(final.MetricID)
	if metricKnown {
		observability.ObserveMetricUsage(metric.Code)
	}

	mqlQuery := mql.Generate(final)
	data, sqlText, sqlParams := executeQuery(ctx, deps, mqlQuery, metricKnown)

	generatedSQL := sqlText
	if generatedSQL == "" {
		generatedSQL = sqlUnavailableSentinel
	}
	if sqlParams == nil {
		sqlParams = []any{}
	}

	interpretation := interpret.Interpret(data, metric)

	session.AddTurn(req.Query, final, metric.Name, deps.Conversations.MaxTurns())
	if err := deps.Conversations.Save(ctx, session); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(ctx, "save conversation failed",
			slog.String("conversation_id", session.ConversationID),
			slog.String("error", err.Error()))
	}

	elapsed := deps.Now().Sub(start)
	observability.ObserveQuery(result.SourceLayer, "success", elapsed)

	writeJSON(w, http.StatusOK, map[string]any{
		"query":             req.Query,
		"conversation_id":   session.ConversationID,
		"intent":            intentPayload(final, result),
		"mql":               mqlQuery.String(),
		"sql":               sqlText,
		"data":              data,
		"interpretation":    interpretation,
		"all_layers":        layersPayload(result.Layers),
		"metadata":          map[string]any{"generated_sql": generatedSQL, "sql_params": sqlParams},
		"execution_time_ms": elapsed.Milliseconds(),
	})
}

// executeQuery runs the warehouse query when a metric resolved; any failure
// degrades to a generated mock series so the conversation keeps flowing.
func executeQuery(ctx context.Context, deps Dependencies, query mql.Query, metricKnown bool) ([]map[string]any, string, []any) {
	if deps.Engine != nil && metricKnown {
		result, err := deps.Engine.Execute(ctx, query)
		if err == nil {
			return result.Rows, result.SQL, result.Params
		}
		if deps.Logger != nil {
			deps.Logger.WarnContext(ctx, "warehouse query failed, serving mock data",
				slog.String("metric", query.MetricID),
				slog.String("error", err.Error()))
		}
	}
	return mockSeries(deps.Now()), "", nil
}

// mockSeries fabricates a 7 day series ending today.
func mockSeries(now time.Time) []map[string]any {
	rows := make([]map[string]any, 0, 7)
	base := 100000.0
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		value := base + float64(6-i)*5200 + float64(day.Day()%3)*1700
		rows = append(rows, map[string]any{
			"date":         day.Format("2006-01-02"),
			"value":        value,
			"metric_value": value,
		})
	}
	return rows
}

func intentPayload(final intent.Intent, result intent.Result) map[string]any {
	filters := map[string]string{}
	for k, v := range final.Filters {
		filters[k] = v
	}
	var timeRange any
	if final.TimeRange != nil {
		timeRange = final.TimeRange.String()
	}
	return map[string]any{
		"query":            final.Query,
		"core_query":       final.CoreQuery,
		"metric_id":        final.MetricID,
		"time_range":       timeRange,
		"time_granularity": final.Granularity,
		"aggregation_type": final.Aggregation,
		"dimensions":       final.Dimensions,
		"comparison_type":  final.Comparison,
		"filters":          filters,
		"confidence":       result.Confidence,
		"source_layer":     result.SourceLayer,
	}
}

func layersPayload(layers []intent.LayerResult) []map[string]any {
	out := make([]map[string]any, 0, len(layers))
	for _, layer := range layers {
		metadata := layer.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		out = append(out, map[string]any{
			"layer_name":  layer.LayerName,
			"status":      layer.Status,
			"success":     layer.Success,
			"confidence":  layer.Confidence,
			"duration_ms": layer.Duration.Milliseconds(),
			"metadata":    metadata,
		})
	}
	return out
}
