package recall

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	vectorWeight = 0.7
	graphWeight  = 0.3

	// Score assigned to candidates that only the graph path produced.
	graphOnlyScore = 0.7
)

// DualRecaller runs the vector and graph paths in parallel and fuses the
// results. A single failing path degrades to the surviving one; only both
// paths failing is an error.
type DualRecaller struct {
	vector  Recaller
	graph   Recaller
	timeout time.Duration
	logger  *slog.Logger
}

func NewDualRecaller(vector, graph Recaller, timeout time.Duration, logger *slog.Logger) *DualRecaller {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &DualRecaller{vector: vector, graph: graph, timeout: timeout, logger: logger}
}

func (d *DualRecaller) Recall(ctx context.Context, query string, topK int) ([]Candidate, error) {
	if topK <= 0 {
		topK = 10
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		vectorResults []Candidate
		graphResults  []Candidate
		vectorErr     error
		graphErr      error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if d.vector == nil {
			return nil
		}
		vectorResults, vectorErr = d.vector.Recall(groupCtx, query, topK)
		return nil
	})
	group.Go(func() error {
		if d.graph == nil {
			return nil
		}
		graphResults, graphErr = d.graph.Recall(groupCtx, query, topK)
		return nil
	})
	_ = group.Wait()

	if vectorErr != nil {
		if d.logger != nil {
			d.logger.WarnContext(ctx, "vector recall failed", slog.String("error", vectorErr.Error()))
		}
		vectorResults = nil
	}
	if graphErr != nil {
		if d.logger != nil {
			d.logger.WarnContext(ctx, "graph recall failed", slog.String("error", graphErr.Error()))
		}
		graphResults = nil
	}
	if vectorErr != nil && graphErr != nil {
		return nil, vectorErr
	}

	merged := fuse(vectorResults, graphResults)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// fuse deduplicates by metric id. Candidates found by both paths get a
// weighted score of vector*0.7 + 0.3 and source "both"; graph-only
// candidates get a fixed 0.7.
func fuse(vectorResults, graphResults []Candidate) []Candidate {
	order := make([]string, 0, len(vectorResults)+len(graphResults))
	byID := make(map[string]*Candidate, len(vectorResults)+len(graphResults))

	for _, candidate := range vectorResults {
		c := candidate
		c.Source = SourceVector
		c.VectorScore = candidate.Score
		byID[c.MetricID] = &c
		order = append(order, c.MetricID)
	}
	for _, candidate := range graphResults {
		if existing, ok := byID[candidate.MetricID]; ok {
			existing.Source = SourceBoth
			existing.GraphScore = 1.0
			existing.Score = existing.VectorScore*vectorWeight + graphWeight
			continue
		}
		c := candidate
		c.Source = SourceGraph
		c.GraphScore = 1.0
		c.Score = graphOnlyScore
		byID[c.MetricID] = &c
		order = append(order, c.MetricID)
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
