package api

import (
	"net/http"
)

type searchRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// handleSearch runs candidate retrieval only: the intent pipeline resolves
// the query, and whatever the recall paths produced comes back ranked. With
// recall disabled the catalog search serves as the candidate source.
func handleSearch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req searchRequest
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
	result := deps.Pipeline.Resolve(ctx, req.Query, topK)

	candidates := make([]map[string]any, 0, topK)
	for _, candidate := range result.Candidates {
		if candidate.Score < req.ScoreThreshold {
			continue
		}
		candidates = append(candidates, map[string]any{
			"metric_id":   candidate.MetricID,
			"name":        candidate.Name,
			"code":        candidate.Code,
			"domain":      candidate.Domain,
			"description": candidate.Description,
			"score":       candidate.Score,
			"source":      candidate.Source,
		})
	}
	if len(candidates) == 0 {
		for _, item := range deps.Registry.Search(req.Query, topK) {
			if item.Score < req.ScoreThreshold {
				continue
			}
			candidates = append(candidates, map[string]any{
				"metric_id":   item.ID,
				"name":        item.Name,
				"code":        item.Code,
				"domain":      item.Domain,
				"description": item.Description,
				"score":       item.Score,
				"source":      "catalog",
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":             req.Query,
		"intent":            intentPayload(result.Final, result),
		"candidates":        candidates,
		"total":             len(candidates),
		"execution_time_ms": deps.Now().Sub(start).Milliseconds(),
	})
}
