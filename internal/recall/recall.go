// Package recall retrieves candidate metrics for a natural-language query
// through two parallel paths: vector similarity and the metric graph.
package recall

import "context"

const (
	SourceVector = "vector"
	SourceGraph  = "graph"
	SourceBoth   = "both"
)

type Candidate struct {
	MetricID    string  `json:"metric_id"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Domain      string  `json:"domain"`
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
	VectorScore float64 `json:"vector_score"`
	GraphScore  float64 `json:"graph_score"`
}

type Recaller interface {
	Recall(ctx context.Context, query string, topK int) ([]Candidate, error)
}
