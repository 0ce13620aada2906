// Package mql defines the intermediate metric query language that sits
// between a resolved intent and the warehouse SQL generated from it.
package mql

import (
	"fmt"
	"strings"

	"github.com/chatbi/chatbi/internal/intent"
)

type Operator string

const (
	OperatorSelect Operator = "SELECT"
	OperatorSum    Operator = "SUM"
	OperatorAvg    Operator = "AVG"
	OperatorCount  Operator = "COUNT"
	OperatorMax    Operator = "MAX"
	OperatorMin    Operator = "MIN"
	OperatorRate   Operator = "RATE"
	OperatorRatio  Operator = "RATIO"
)

type Comparison string

const (
	ComparisonYoY Comparison = "YoY"
	ComparisonMoM Comparison = "MoM"
	ComparisonWoW Comparison = "WoW"
	ComparisonDoD Comparison = "DoD"
)

type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Query is one metric question expressed in MQL terms.
type Query struct {
	Metric      string             `json:"metric"`
	MetricID    string             `json:"metric_id,omitempty"`
	Operator    Operator           `json:"operator"`
	TimeRange   *intent.TimeRange  `json:"time_range,omitempty"`
	Granularity intent.Granularity `json:"granularity,omitempty"`
	GroupBy     []string           `json:"group_by,omitempty"`
	Filters     []Filter           `json:"filters,omitempty"`
	Comparison  Comparison         `json:"comparison,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// String renders the query in MQL text form, e.g.
// "SELECT SUM(GMV) FROM 2026-08-12 TO 2026-08-19 GROUP BY 地区".
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Operator == "" || q.Operator == OperatorSelect {
		b.WriteString(q.Metric)
	} else {
		fmt.Fprintf(&b, "%s(%s)", q.Operator, q.Metric)
	}
	if q.TimeRange != nil {
		fmt.Fprintf(&b, " FROM %s TO %s",
			q.TimeRange.Start.Format("2006-01-02"),
			q.TimeRange.End.Format("2006-01-02"))
	}
	if len(q.Filters) > 0 {
		clauses := make([]string, 0, len(q.Filters))
		for _, f := range q.Filters {
			clauses = append(clauses, fmt.Sprintf("%s %s '%s'", f.Field, f.Operator, f.Value))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	if len(q.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.GroupBy, ", "))
	}
	if q.Comparison != "" {
		fmt.Fprintf(&b, " COMPARE WITH %s", q.Comparison)
	}
	return b.String()
}
