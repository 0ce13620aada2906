// Package verify probes a running query API over HTTP and judges the
// responses client-side: field presence, metric resolution, recall
// diagnostics, SQL generation, and multi-turn context inheritance.
package verify

import (
	"strings"
)

// sqlFailureSentinel marks responses where the server fell back to mock data
// instead of executing generated SQL.
const sqlFailureSentinel = "SQL generation disabled or failed"

// requiredFields are the top-level keys every query response must carry.
var requiredFields = []string{
	"query",
	"conversation_id",
	"intent",
	"mql",
	"sql",
	"data",
	"interpretation",
	"all_layers",
	"metadata",
}

// MissingFields returns the required top-level fields absent from body, in
// the canonical field order.
func MissingFields(body map[string]any) []string {
	var missing []string
	for _, field := range requiredFields {
		if _, ok := body[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// MetricMatches reports whether the resolved core query names the expected
// metric, by case-insensitive containment.
func MetricMatches(coreQuery, expected string) bool {
	return strings.Contains(strings.ToLower(coreQuery), strings.ToLower(expected))
}

// CoreQuery digs intent.core_query out of a response body.
func CoreQuery(body map[string]any) string {
	in, ok := body["intent"].(map[string]any)
	if !ok {
		return ""
	}
	core, _ := in["core_query"].(string)
	return core
}

// SourceLayer digs intent.source_layer out of a response body.
func SourceLayer(body map[string]any) string {
	in, ok := body["intent"].(map[string]any)
	if !ok {
		return ""
	}
	layer, _ := in["source_layer"].(string)
	return layer
}

// TimeRangeFilter returns intent.filters.time_range, empty when absent.
func TimeRangeFilter(body map[string]any) string {
	in, ok := body["intent"].(map[string]any)
	if !ok {
		return ""
	}
	filters, ok := in["filters"].(map[string]any)
	if !ok {
		return ""
	}
	value, _ := filters["time_range"].(string)
	return value
}

// TimeRangeOverridden reports whether a follow-up turn replaced the time
// range of the first turn. Both turns must carry a time range at all.
func TimeRangeOverridden(first, second map[string]any) bool {
	a := TimeRangeFilter(first)
	b := TimeRangeFilter(second)
	return a != "" && b != "" && a != b
}

// GraphCandidates extracts metadata.graph_candidates from the L2 layer
// diagnostic record. A nil result means the layer ran without graph hits or
// did not run at all.
func GraphCandidates(body map[string]any) []string {
	layers, ok := body["all_layers"].([]any)
	if !ok {
		return nil
	}
	for _, raw := range layers {
		layer, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := layer["layer_name"].(string)
		if !strings.Contains(name, "L2") {
			continue
		}
		metadata, ok := layer["metadata"].(map[string]any)
		if !ok {
			return nil
		}
		rawCandidates, ok := metadata["graph_candidates"].([]any)
		if !ok {
			return nil
		}
		candidates := make([]string, 0, len(rawCandidates))
		for _, candidate := range rawCandidates {
			if text, ok := candidate.(string); ok {
				candidates = append(candidates, text)
			}
		}
		return candidates
	}
	return nil
}

// GeneratedSQL returns metadata.generated_sql and whether it holds a real
// statement rather than the failure sentinel.
func GeneratedSQL(body map[string]any) (string, bool) {
	metadata, ok := body["metadata"].(map[string]any)
	if !ok {
		return "", false
	}
	sqlText, _ := metadata["generated_sql"].(string)
	return sqlText, sqlText != "" && sqlText != sqlFailureSentinel
}
