// Package interpret turns query result rows into a short analysis report:
// trend classification, volatility, anomalies, and templated findings.
package interpret

import (
	"fmt"
	"math"

	"github.com/chatbi/chatbi/internal/catalog"
)

const (
	TrendUpward      = "upward"
	TrendDownward    = "downward"
	TrendStable      = "stable"
	TrendFluctuating = "fluctuating"
)

// Analysis holds the statistical profile of a result series.
type Analysis struct {
	Trend      string  `json:"trend"`
	ChangeRate float64 `json:"change_rate"`
	Volatility float64 `json:"volatility"`
	Anomalies  []int   `json:"anomalies"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Avg        float64 `json:"avg"`
	Std        float64 `json:"std"`
}

// Interpretation is the report attached to a query response.
type Interpretation struct {
	Summary     string   `json:"summary"`
	Trend       string   `json:"trend"`
	KeyFindings []string `json:"key_findings"`
	Insights    []string `json:"insights"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	Analysis    Analysis `json:"data_analysis"`
}

// Interpret analyzes the value series in rows and renders the templated
// report for the metric.
func Interpret(rows []map[string]any, metric catalog.Metric) Interpretation {
	analysis := Analyze(rows)
	return Interpretation{
		Summary:     summaryFor(analysis, metric),
		Trend:       analysis.Trend,
		KeyFindings: findingsFor(analysis),
		Insights:    insightsFor(analysis),
		Suggestions: suggestionsFor(analysis),
		Confidence:  confidenceFor(analysis, len(rows)),
		Analysis:    analysis,
	}
}

// Analyze computes trend, change rate, volatility, and anomaly indexes over
// the "value" column of the rows.
func Analyze(rows []map[string]any) Analysis {
	values := extractValues(rows)
	if len(values) < 2 {
		single := 0.0
		if len(values) == 1 {
			single = values[0]
		}
		return Analysis{Trend: TrendStable, Anomalies: []int{}, Min: single, Max: single, Avg: single}
	}

	first, last := values[0], values[len(values)-1]
	changeRate := 0.0
	if first != 0 {
		changeRate = (last - first) / first * 100
	}

	trend := TrendFluctuating
	switch {
	case changeRate > 10:
		trend = TrendUpward
	case changeRate < -10:
		trend = TrendDownward
	case math.Abs(changeRate) < 5:
		trend = TrendStable
	}

	minVal, maxVal, sum := values[0], values[0], 0.0
	for _, v := range values {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(values)-1))

	volatility := 0.0
	if mean != 0 {
		volatility = std / mean * 100
	}

	anomalies := []int{}
	if len(values) > 3 {
		for i, v := range values {
			if math.Abs(v-mean) > 2*std {
				anomalies = append(anomalies, i)
			}
		}
	}

	return Analysis{
		Trend:      trend,
		ChangeRate: round2(changeRate),
		Volatility: round2(volatility),
		Anomalies:  anomalies,
		Min:        round2(minVal),
		Max:        round2(maxVal),
		Avg:        round2(mean),
		Std:        round2(std),
	}
}

func extractValues(rows []map[string]any) []float64 {
	var values []float64
	for _, row := range rows {
		raw, ok := row["value"]
		if !ok {
			raw = row["metric_value"]
		}
		switch v := raw.(type) {
		case float64:
			values = append(values, v)
		case float32:
			values = append(values, float64(v))
		case int64:
			values = append(values, float64(v))
		case int:
			values = append(values, float64(v))
		}
	}
	return values
}

var trendDescriptions = map[string]string{
	TrendUpward:      "呈上升趋势",
	TrendDownward:    "呈下降趋势",
	TrendFluctuating: "呈波动状态",
	TrendStable:      "保持稳定",
}

func summaryFor(analysis Analysis, metric catalog.Metric) string {
	name := metric.Name
	if name == "" {
		name = "指标"
	}
	desc := trendDescriptions[analysis.Trend]
	if analysis.ChangeRate != 0 {
		return fmt.Sprintf("%s%s，变化率为%.2f%%。", name, desc, analysis.ChangeRate)
	}
	return fmt.Sprintf("%s%s。", name, desc)
}

func findingsFor(analysis Analysis) []string {
	findings := []string{
		map[string]string{
			TrendUpward:      "数据呈上升趋势",
			TrendDownward:    "数据呈下降趋势",
			TrendFluctuating: "数据波动较大",
			TrendStable:      "数据保持稳定",
		}[analysis.Trend],
	}
	if math.Abs(analysis.ChangeRate) > 10 {
		findings = append(findings, fmt.Sprintf("总体变化率达到%.2f%%", analysis.ChangeRate))
	}
	if analysis.Volatility < 10 {
		findings = append(findings, "波动性较低，数据稳定")
	} else if analysis.Volatility > 30 {
		findings = append(findings, fmt.Sprintf("波动性较高（%.2f%%），需关注异常", analysis.Volatility))
	}
	findings = append(findings, fmt.Sprintf("最小值%v，最大值%v", analysis.Min, analysis.Max))
	if len(analysis.Anomalies) > 0 {
		findings = append(findings, fmt.Sprintf("检测到%d个异常值点", len(analysis.Anomalies)))
	}
	if len(findings) > 5 {
		findings = findings[:5]
	}
	return findings
}

func insightsFor(analysis Analysis) []string {
	var insights []string
	switch analysis.Trend {
	case TrendUpward:
		insights = append(insights, "持续增长可能反映出业务扩张或季节性需求增加")
	case TrendDownward:
		insights = append(insights, "下降趋势可能与市场竞争加剧或需求减少有关")
	case TrendFluctuating:
		insights = append(insights, "波动可能受周期性因素或促销活动影响")
	}
	if analysis.Volatility > 30 {
		insights = append(insights, "高波动性表明存在不稳定因素，建议深入分析原因")
	}
	if len(analysis.Anomalies) > 0 {
		insights = append(insights, "异常值可能代表特殊事件或数据质量问题，需进一步核实")
	}
	if len(insights) > 3 {
		insights = insights[:3]
	}
	return insights
}

func suggestionsFor(analysis Analysis) []string {
	var suggestions []string
	switch analysis.Trend {
	case TrendUpward:
		suggestions = append(suggestions, "建议保持当前策略，同时监控增长可持续性")
	case TrendDownward:
		suggestions = append(suggestions, "建议分析下降原因，考虑调整策略或采取改进措施")
	case TrendFluctuating:
		suggestions = append(suggestions, "建议加强数据分析，识别并消除波动因素")
	}
	if len(analysis.Anomalies) > 0 {
		suggestions = append(suggestions, "建议调查异常值原因，确保数据准确性")
	}
	if analysis.Volatility > 30 {
		suggestions = append(suggestions, "建议实施风险控制措施，降低波动性")
	}
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

// confidenceFor scores the report: more points, low volatility, and a clear
// direction all raise confidence. Clamped to [0, 1].
func confidenceFor(analysis Analysis, rowCount int) float64 {
	confidence := 0.5
	if rowCount >= 7 {
		confidence += 0.2
	} else if rowCount >= 3 {
		confidence += 0.1
	}
	if analysis.Volatility < 20 {
		confidence += 0.15
	} else if analysis.Volatility > 50 {
		confidence -= 0.15
	}
	if analysis.Trend == TrendUpward || analysis.Trend == TrendDownward {
		confidence += 0.1
	}
	return math.Max(0, math.Min(1, confidence))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
