package mql

import (
	"github.com/chatbi/chatbi/internal/intent"
)

var operatorByAggregation = map[intent.Aggregation]Operator{
	intent.AggregationSum:   OperatorSum,
	intent.AggregationAvg:   OperatorAvg,
	intent.AggregationCount: OperatorCount,
	intent.AggregationMax:   OperatorMax,
	intent.AggregationMin:   OperatorMin,
	intent.AggregationRate:  OperatorRate,
	intent.AggregationRatio: OperatorRatio,
}

var comparisonByIntent = map[string]Comparison{
	"yoy": ComparisonYoY,
	"mom": ComparisonMoM,
	"wow": ComparisonWoW,
	"dod": ComparisonDoD,
}

// Generate converts a resolved intent into its MQL form. The core query term
// names the metric; aggregation, time range, and dimensions map one to one.
func Generate(in intent.Intent) Query {
	query := Query{
		Metric:      in.CoreQuery,
		MetricID:    in.MetricID,
		TimeRange:   in.TimeRange,
		Granularity: in.Granularity,
		GroupBy:     append([]string{}, in.Dimensions...),
		Limit:       10,
	}

	query.Operator = OperatorSelect
	if op, ok := operatorByAggregation[in.Aggregation]; ok {
		query.Operator = op
	}

	if comparison, ok := comparisonByIntent[in.Comparison]; ok {
		query.Comparison = comparison
	}

	if domain, ok := in.Filters["domain"]; ok && domain != "" {
		query.Filters = append(query.Filters, Filter{Field: "domain", Operator: "=", Value: domain})
	}

	return query
}
