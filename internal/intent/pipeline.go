package intent

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatbi/chatbi/internal/observability"
	"github.com/chatbi/chatbi/internal/recall"
)

type PipelineConfig struct {
	RuleThreshold     float64
	SemanticThreshold float64
}

// Pipeline cascades through the three layers. A layer whose confidence
// clears its threshold wins; when every layer falls short the best attempt
// so far is returned with source "Fallback".
type Pipeline struct {
	rules    *Recognizer
	recaller recall.Recaller
	llm      LLMRecognizer
	cfg      PipelineConfig
	logger   *slog.Logger
}

func NewPipeline(rules *Recognizer, recaller recall.Recaller, llm LLMRecognizer, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.RuleThreshold <= 0 {
		cfg.RuleThreshold = 0.90
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = 0.85
	}
	return &Pipeline{rules: rules, recaller: recaller, llm: llm, cfg: cfg, logger: logger}
}

func (p *Pipeline) Resolve(ctx context.Context, query string, topK int) Result {
	start := time.Now()
	var layers []LayerResult

	ruleLayer := p.runRuleLayer(query)
	layers = append(layers, ruleLayer)
	if ruleLayer.Success && ruleLayer.Confidence >= p.cfg.RuleThreshold {
		return p.finish(query, *ruleLayer.Intent, LayerRule, ruleLayer.Confidence, layers, start, nil)
	}

	semanticLayer, candidates := p.runSemanticLayer(ctx, query, topK)
	layers = append(layers, semanticLayer)
	if semanticLayer.Success && semanticLayer.Confidence >= p.cfg.SemanticThreshold {
		return p.finish(query, *semanticLayer.Intent, LayerSemantic, semanticLayer.Confidence, layers, start, candidates)
	}

	llmLayer := p.runLLMLayer(ctx, query, candidates)
	layers = append(layers, llmLayer)
	if llmLayer.Success {
		return p.finish(query, *llmLayer.Intent, LayerLLM, llmLayer.Confidence, layers, start, candidates)
	}

	// Every layer fell short: take the most confident attempt that still
	// produced an intent.
	best := LayerResult{Confidence: -1}
	for _, layer := range layers {
		if layer.Intent != nil && layer.Confidence > best.Confidence {
			best = layer
		}
	}
	final := Intent{Query: query, CoreQuery: query, Dimensions: []string{}, Filters: map[string]string{}}
	confidence := 0.0
	if best.Intent != nil {
		final = *best.Intent
		confidence = best.Confidence
	}
	return p.finish(query, final, LayerFallback, confidence, layers, start, candidates)
}

func (p *Pipeline) finish(query string, final Intent, source string, confidence float64, layers []LayerResult, start time.Time, candidates []recall.Candidate) Result {
	return Result{
		Query:       query,
		Final:       final,
		SourceLayer: source,
		Confidence:  confidence,
		Layers:      layers,
		Duration:    time.Since(start),
		Candidates:  candidates,
	}
}

func (p *Pipeline) runRuleLayer(query string) LayerResult {
	start := time.Now()
	in := p.rules.Recognize(query)
	confidence := p.rules.Confidence(query, in)
	elapsed := time.Since(start)
	observability.ObserveIntentLayer(LayerRule, true, elapsed)

	return LayerResult{
		LayerName:  LayerRule,
		Status:     StatusSuccess,
		Success:    true,
		Confidence: confidence,
		Duration:   elapsed,
		Intent:     &in,
		Metadata: map[string]any{
			"method":               "regex_patterns",
			"time_detected":        in.TimeRange != nil,
			"aggregation_detected": in.Aggregation != "",
			"dimensions_detected":  len(in.Dimensions) > 0,
		},
	}
}

func (p *Pipeline) runSemanticLayer(ctx context.Context, query string, topK int) (LayerResult, []recall.Candidate) {
	if p.recaller == nil {
		return LayerResult{
			LayerName: LayerSemantic,
			Status:    StatusSkipped,
			Metadata:  map[string]any{"reason": "recall disabled"},
		}, nil
	}

	start := time.Now()
	candidates, err := p.recaller.Recall(ctx, query, topK)
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveIntentLayer(LayerSemantic, false, elapsed)
		if p.logger != nil {
			p.logger.WarnContext(ctx, "semantic recall failed", slog.String("error", err.Error()))
		}
		return LayerResult{
			LayerName: LayerSemantic,
			Status:    StatusFailed,
			Duration:  elapsed,
			Metadata:  map[string]any{"error": err.Error()},
		}, nil
	}
	if len(candidates) == 0 {
		observability.ObserveIntentLayer(LayerSemantic, false, elapsed)
		return LayerResult{
			LayerName: LayerSemantic,
			Status:    StatusFailed,
			Duration:  elapsed,
			Metadata:  map[string]any{"error": "no candidates recalled", "method": "dual_recall_fusion"},
		}, nil
	}
	observability.ObserveIntentLayer(LayerSemantic, true, elapsed)

	top := candidates[0]
	in := p.rules.Recognize(query)
	if in.MetricID == "" {
		in.MetricID = top.MetricID
		in.CoreQuery = top.Name
		if top.Domain != "" {
			in.Filters["domain"] = top.Domain
		}
	}

	// Recall fusion scores map onto a 0.75-0.95 confidence band.
	confidence := top.Score
	if confidence < 0.75 {
		confidence = 0.75
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	sourceCounts := map[string]int{}
	var graphCandidates []string
	for _, candidate := range candidates {
		sourceCounts[candidate.Source]++
		if candidate.Source == recall.SourceGraph || candidate.Source == recall.SourceBoth {
			graphCandidates = append(graphCandidates, candidate.Name)
		}
	}
	topCandidates := make([]map[string]any, 0, 3)
	for i, candidate := range candidates {
		if i >= 3 {
			break
		}
		topCandidates = append(topCandidates, map[string]any{
			"rank":         i + 1,
			"name":         candidate.Name,
			"code":         candidate.Code,
			"final_score":  candidate.Score,
			"vector_score": candidate.VectorScore,
			"graph_score":  candidate.GraphScore,
			"source":       candidate.Source,
		})
	}

	metadata := map[string]any{
		"method":              "dual_recall_fusion",
		"candidates_found":    len(candidates),
		"source_distribution": sourceCounts,
		"candidates":          topCandidates,
	}
	if len(graphCandidates) > 0 {
		metadata["graph_candidates"] = graphCandidates
	}

	return LayerResult{
		LayerName:  LayerSemantic,
		Status:     StatusSuccess,
		Success:    true,
		Confidence: confidence,
		Duration:   elapsed,
		Intent:     &in,
		Metadata:   metadata,
	}, candidates
}

func (p *Pipeline) runLLMLayer(ctx context.Context, query string, candidates []recall.Candidate) LayerResult {
	if p.llm == nil {
		return LayerResult{
			LayerName: LayerLLM,
			Status:    StatusSkipped,
			Metadata:  map[string]any{"reason": "LLM not configured"},
		}
	}

	start := time.Now()
	in, confidence, metadata, err := p.llm.Recognize(ctx, query, candidates)
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveIntentLayer(LayerLLM, false, elapsed)
		if p.logger != nil {
			p.logger.WarnContext(ctx, "llm intent inference failed", slog.String("error", err.Error()))
		}
		return LayerResult{
			LayerName: LayerLLM,
			Status:    StatusFailed,
			Duration:  elapsed,
			Metadata:  map[string]any{"error": err.Error()},
		}
	}
	observability.ObserveIntentLayer(LayerLLM, true, elapsed)

	return LayerResult{
		LayerName:  LayerLLM,
		Status:     StatusSuccess,
		Success:    true,
		Confidence: confidence,
		Duration:   elapsed,
		Intent:     &in,
		Metadata:   metadata,
	}
}
