// Package intent resolves natural-language analytics questions into a
// structured query intent through a three-layer pipeline: rule matching,
// semantic recall, and LLM inference.
package intent

import (
	"fmt"
	"time"

	"github.com/chatbi/chatbi/internal/recall"
)

type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationCount Aggregation = "count"
	AggregationMax   Aggregation = "max"
	AggregationMin   Aggregation = "min"
	AggregationRate  Aggregation = "rate"
	AggregationRatio Aggregation = "ratio"
)

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s ~ %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// Intent is the structured form of a user question.
type Intent struct {
	Query       string            `json:"query"`
	CoreQuery   string            `json:"core_query"`
	MetricID    string            `json:"metric_id,omitempty"`
	TimeRange   *TimeRange        `json:"time_range,omitempty"`
	Granularity Granularity       `json:"time_granularity,omitempty"`
	Aggregation Aggregation       `json:"aggregation_type,omitempty"`
	Dimensions  []string          `json:"dimensions"`
	Comparison  string            `json:"comparison_type,omitempty"`
	Filters     map[string]string `json:"filters"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const (
	LayerRule     = "L1_Rule"
	LayerSemantic = "L2_Semantic"
	LayerLLM      = "L3_LLM"
	LayerFallback = "Fallback"
)

// LayerResult records the outcome of one pipeline layer, successful or not.
type LayerResult struct {
	LayerName  string
	Status     string
	Success    bool
	Confidence float64
	Duration   time.Duration
	Intent     *Intent
	Metadata   map[string]any
}

// Result is the full pipeline outcome: the winning intent, which layer
// produced it, and every layer's record.
type Result struct {
	Query       string
	Final       Intent
	SourceLayer string
	Confidence  float64
	Layers      []LayerResult
	Duration    time.Duration
	Candidates  []recall.Candidate
}
