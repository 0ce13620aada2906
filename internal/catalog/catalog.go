// Package catalog holds the metric and dimension definitions that drive
// intent resolution, recall, and SQL generation.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

type Metric struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Code            string   `yaml:"code"`
	NameEN          string   `yaml:"name_en"`
	Description     string   `yaml:"description"`
	Domain          string   `yaml:"domain"`
	Category        string   `yaml:"category"`
	Table           string   `yaml:"table"`
	Column          string   `yaml:"column"`
	Unit            string   `yaml:"unit"`
	Formula         string   `yaml:"formula"`
	CalculationType string   `yaml:"calculation_type"`
	Granularity     []string `yaml:"granularity"`
	Dimensions      []string `yaml:"dimensions"`
	Synonyms        []string `yaml:"synonyms"`
	RelatedMetrics  []string `yaml:"related_metrics"`
}

// Aliases returns every name the metric answers to, longest first so that
// substring matching prefers the most specific alias.
func (m Metric) Aliases() []string {
	aliases := make([]string, 0, len(m.Synonyms)+3)
	aliases = append(aliases, m.Name, m.Code, m.NameEN)
	aliases = append(aliases, m.Synonyms...)
	out := aliases[:0]
	for _, alias := range aliases {
		if strings.TrimSpace(alias) != "" {
			out = append(out, alias)
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

type Dimension struct {
	Name     string   `yaml:"name"`
	Code     string   `yaml:"code"`
	Table    string   `yaml:"table"`
	Key      string   `yaml:"key"`
	Synonyms []string `yaml:"synonyms"`
}

type ScoredMetric struct {
	Metric
	Score float64
}

// Registry indexes metrics by name, code, and synonym (all lowercased).
type Registry struct {
	metrics    []Metric
	dimensions []Dimension
	byAlias    map[string]Metric
	byID       map[string]Metric
}

func NewRegistry(metrics []Metric, dimensions []Dimension) (*Registry, error) {
	registry := &Registry{
		metrics:    metrics,
		dimensions: dimensions,
		byAlias:    make(map[string]Metric),
		byID:       make(map[string]Metric),
	}
	for _, metric := range metrics {
		if metric.ID == "" || metric.Name == "" {
			return nil, fmt.Errorf("metric %q: id and name are required", metric.ID)
		}
		id := strings.ToLower(metric.ID)
		if _, exists := registry.byID[id]; exists {
			return nil, fmt.Errorf("duplicate metric id %q", metric.ID)
		}
		registry.byID[id] = metric
		for _, alias := range metric.Aliases() {
			registry.byAlias[strings.ToLower(alias)] = metric
		}
	}
	return registry, nil
}

func (r *Registry) All() []Metric {
	return r.metrics
}

func (r *Registry) Dimensions() []Dimension {
	return r.dimensions
}

func (r *Registry) ByID(id string) (Metric, bool) {
	metric, ok := r.byID[strings.ToLower(id)]
	return metric, ok
}

// Lookup resolves a metric by name, code, or synonym.
func (r *Registry) Lookup(name string) (Metric, bool) {
	metric, ok := r.byAlias[strings.ToLower(strings.TrimSpace(name))]
	return metric, ok
}

func (r *Registry) ByDomain(domain string) []Metric {
	var out []Metric
	for _, metric := range r.metrics {
		if metric.Domain == domain {
			out = append(out, metric)
		}
	}
	return out
}

// Search ranks metrics against a free-text query. Exact name matches score
// highest, then code and synonym matches, then substring hits.
func (r *Registry) Search(query string, limit int) []ScoredMetric {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var results []ScoredMetric
	for _, metric := range r.metrics {
		score := scoreMetric(metric, query)
		if score > 0 {
			results = append(results, ScoredMetric{Metric: metric, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func scoreMetric(metric Metric, query string) float64 {
	name := strings.ToLower(metric.Name)
	code := strings.ToLower(metric.Code)
	switch {
	case query == name:
		return 1.0
	case query == code:
		return 0.98
	}
	for _, synonym := range metric.Synonyms {
		if query == strings.ToLower(synonym) {
			return 0.95
		}
	}
	if strings.Contains(name, query) {
		return 0.85
	}
	for _, synonym := range metric.Synonyms {
		if strings.Contains(strings.ToLower(synonym), query) {
			return 0.80
		}
	}
	if strings.Contains(strings.ToLower(metric.Description), query) {
		return 0.75
	}
	return 0
}

// ResolveInText finds the metric whose alias appears in the text, preferring
// the longest alias across the whole registry.
func (r *Registry) ResolveInText(text string) (Metric, string, bool) {
	lowered := strings.ToLower(text)
	var (
		best      Metric
		bestAlias string
		found     bool
	)
	for _, metric := range r.metrics {
		for _, alias := range metric.Aliases() {
			if strings.Contains(lowered, strings.ToLower(alias)) {
				if !found || len(alias) > len(bestAlias) {
					best = metric
					bestAlias = alias
					found = true
				}
				break
			}
		}
	}
	return best, bestAlias, found
}

// DimensionsInText returns the registry dimensions mentioned in the text.
func (r *Registry) DimensionsInText(text string) []Dimension {
	lowered := strings.ToLower(text)
	var out []Dimension
	for _, dimension := range r.dimensions {
		names := append([]string{dimension.Name}, dimension.Synonyms...)
		for _, name := range names {
			if name != "" && strings.Contains(lowered, strings.ToLower(name)) {
				out = append(out, dimension)
				break
			}
		}
	}
	return out
}
