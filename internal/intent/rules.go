package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chatbi/chatbi/internal/catalog"
)

// Recognizer is the rule layer: regex patterns for time expressions,
// aggregations, and comparisons, plus catalog lookups for metrics and
// dimensions. It is deterministic and has no external dependencies.
type Recognizer struct {
	registry *catalog.Registry
	now      func() time.Time
}

func NewRecognizer(registry *catalog.Registry) *Recognizer {
	return &Recognizer{registry: registry, now: time.Now}
}

var (
	relativeDaysPattern = regexp.MustCompile(`(?i)最近(\d+)[天日]|过去(\d+)[天日]|近(\d+)[天日]|前(\d+)[天日]|(?:last|past)\s+(\d+)\s+days?`)
	thisWeekPattern     = regexp.MustCompile(`(?i)本周|这周|this\s+week`)
	lastWeekPattern     = regexp.MustCompile(`(?i)上周|上个周|last\s+week`)
	thisMonthPattern    = regexp.MustCompile(`(?i)本月|这个月|this\s+month`)
	lastMonthPattern    = regexp.MustCompile(`(?i)上月|上个月|last\s+month`)
	thisYearPattern     = regexp.MustCompile(`(?i)今年|this\s+year`)
	lastYearPattern     = regexp.MustCompile(`(?i)去年|last\s+year`)
	yearMonthPattern    = regexp.MustCompile(`(\d{4})年(\d{1,2})月`)
	yearPattern         = regexp.MustCompile(`(\d{4})年`)

	timePatterns = []*regexp.Regexp{
		relativeDaysPattern,
		thisWeekPattern, lastWeekPattern,
		thisMonthPattern, lastMonthPattern,
		thisYearPattern, lastYearPattern,
		yearMonthPattern, yearPattern,
	}

	aggregationPatterns = []struct {
		pattern *regexp.Regexp
		agg     Aggregation
	}{
		{regexp.MustCompile(`(?i)总和|总计|合计|汇总|总[额度数]|total|sum`), AggregationSum},
		{regexp.MustCompile(`(?i)平均[值]?|人均|average|avg`), AggregationAvg},
		{regexp.MustCompile(`(?i)计数|数量|个数|有多少|how\s+many`), AggregationCount},
		{regexp.MustCompile(`(?i)最高|最大|峰值|max|peak`), AggregationMax},
		{regexp.MustCompile(`(?i)最低|最小|min`), AggregationMin},
		{regexp.MustCompile(`(?i)增长率|增速|增长幅度|growth`), AggregationRate},
		{regexp.MustCompile(`(?i)占比|比率|比例|ratio`), AggregationRatio},
	}

	comparisonPatterns = []struct {
		pattern *regexp.Regexp
		code    string
	}{
		{regexp.MustCompile(`(?i)同比|year[- ]?over[- ]?year|yoy`), "yoy"},
		{regexp.MustCompile(`(?i)环比|month[- ]?over[- ]?month|mom`), "mom"},
	}
)

func (r *Recognizer) Recognize(query string) Intent {
	query = strings.TrimSpace(query)

	timeRange, granularity, matched := r.extractTimeRange(query)
	coreQuery := stripTimeInfo(query, matched)

	in := Intent{
		Query:       query,
		CoreQuery:   coreQuery,
		TimeRange:   timeRange,
		Granularity: granularity,
		Aggregation: extractAggregation(coreQuery),
		Comparison:  extractComparison(query),
		Dimensions:  []string{},
		Filters:     map[string]string{},
	}

	if metric, _, ok := r.registry.ResolveInText(coreQuery); ok {
		in.MetricID = metric.ID
		in.Filters["domain"] = metric.Domain
	}
	for _, dimension := range r.registry.DimensionsInText(query) {
		in.Dimensions = append(in.Dimensions, dimension.Name)
	}
	if strings.Contains(query, "实时") {
		in.Filters["freshness"] = "realtime"
	}
	if in.TimeRange != nil {
		in.Filters["time_range"] = in.TimeRange.String()
	}
	return in
}

// Confidence scores a rule match: 0.5 base, plus bonuses for the core query
// surviving intact and for each recognized facet, capped at 1.0.
func (r *Recognizer) Confidence(query string, in Intent) float64 {
	score := 0.5
	if strings.Contains(strings.ToLower(query), strings.ToLower(in.CoreQuery)) {
		score += 0.2
	}
	if in.TimeRange != nil {
		score += 0.15
	}
	if in.Aggregation != "" {
		score += 0.1
	}
	if len(in.Dimensions) > 0 {
		score += 0.1
	}
	if float64(len([]rune(in.CoreQuery))) < float64(len([]rune(query)))*0.5 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (r *Recognizer) extractTimeRange(query string) (*TimeRange, Granularity, string) {
	now := r.now()

	if m := relativeDaysPattern.FindStringSubmatch(query); m != nil {
		days := 0
		for _, group := range m[1:] {
			if group != "" {
				days, _ = strconv.Atoi(group)
				break
			}
		}
		if days > 0 {
			return &TimeRange{Start: dayStart(now.AddDate(0, 0, -days)), End: dayEnd(now)}, GranularityDay, m[0]
		}
	}
	if m := lastWeekPattern.FindString(query); m != "" {
		start := weekStart(now).AddDate(0, 0, -7)
		return &TimeRange{Start: start, End: dayEnd(start.AddDate(0, 0, 6))}, GranularityWeek, m
	}
	if m := thisWeekPattern.FindString(query); m != "" {
		start := weekStart(now)
		return &TimeRange{Start: start, End: dayEnd(start.AddDate(0, 0, 6))}, GranularityWeek, m
	}
	if m := lastMonthPattern.FindString(query); m != "" {
		start := monthStart(now).AddDate(0, -1, 0)
		return &TimeRange{Start: start, End: dayEnd(monthStart(now).AddDate(0, 0, -1))}, GranularityMonth, m
	}
	if m := thisMonthPattern.FindString(query); m != "" {
		start := monthStart(now)
		return &TimeRange{Start: start, End: dayEnd(start.AddDate(0, 1, -1))}, GranularityMonth, m
	}
	if m := lastYearPattern.FindString(query); m != "" {
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
		return &TimeRange{Start: start, End: dayEnd(time.Date(now.Year()-1, 12, 31, 0, 0, 0, 0, now.Location()))}, GranularityYear, m
	}
	if m := thisYearPattern.FindString(query); m != "" {
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return &TimeRange{Start: start, End: dayEnd(time.Date(now.Year(), 12, 31, 0, 0, 0, 0, now.Location()))}, GranularityYear, m
	}
	if m := yearMonthPattern.FindStringSubmatch(query); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
			return &TimeRange{Start: start, End: dayEnd(start.AddDate(0, 1, -1))}, GranularityMonth, m[0]
		}
	}
	if m := yearPattern.FindStringSubmatch(query); m != nil {
		year, _ := strconv.Atoi(m[1])
		start := time.Date(year, 1, 1, 0, 0, 0, 0, now.Location())
		return &TimeRange{Start: start, End: dayEnd(time.Date(year, 12, 31, 0, 0, 0, 0, now.Location()))}, GranularityYear, m[0]
	}
	return nil, "", ""
}

func stripTimeInfo(query, matched string) string {
	if matched == "" {
		return query
	}
	core := query
	for _, pattern := range timePatterns {
		core = pattern.ReplaceAllString(core, " ")
	}
	core = strings.Join(strings.Fields(core), " ")
	return strings.Trim(core, "的， ,")
}

func extractAggregation(query string) Aggregation {
	for _, entry := range aggregationPatterns {
		if entry.pattern.MatchString(query) {
			return entry.agg
		}
	}
	return ""
}

func extractComparison(query string) string {
	for _, entry := range comparisonPatterns {
		if entry.pattern.MatchString(query) {
			return entry.code
		}
	}
	return ""
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// weekStart returns the Monday of t's week.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return dayStart(t.AddDate(0, 0, -offset))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
