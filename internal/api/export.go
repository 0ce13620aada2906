package api

import (
	"net/http"

	"github.com/chatbi/chatbi/internal/mql"
)

type exportRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
}

// handleExport resolves the query like /api/v3/query does, but ships the
// result rows to object storage as parquet instead of returning them inline.
func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "EXPORT_DISABLED", "export is not configured", false, nil)
		return
	}

	var req exportRequest
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
	result := deps.Pipeline.Resolve(ctx, req.Query, topK)
	final := result.Final

	metric, ok := deps.Registry.ByID(final.MetricID)
	if !ok {
		writeError(ctx, w, http.StatusUnprocessableEntity, "METRIC_NOT_RESOLVED", "no metric resolved for query", false, map[string]any{"query": req.Query})
		return
	}

	data, _, _ := executeQuery(ctx, deps, mql.Generate(final), true)
	exported, err := deps.Exporter.Export(ctx, metric.Code, data, final.Dimensions)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), true, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":      req.Query,
		"metric":     metric.Code,
		"key":        exported.Key,
		"row_count":  exported.RowCount,
		"size_bytes": exported.Size,
	})
}
