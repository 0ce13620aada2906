package mql

import (
	"fmt"
	"strings"

	"github.com/chatbi/chatbi/internal/catalog"
)

// sqlAggregation maps MQL operators to SQL functions. Rate and ratio metrics
// are stored per row, so they aggregate with AVG.
var sqlAggregation = map[Operator]string{
	OperatorSum:   "SUM",
	OperatorAvg:   "AVG",
	OperatorCount: "COUNT",
	OperatorMax:   "MAX",
	OperatorMin:   "MIN",
	OperatorRate:  "AVG",
	OperatorRatio: "AVG",
}

// SQLGenerator turns MQL queries into parameterized PostgreSQL over the
// star schema: one fact table per metric, joined to dim_date and any
// requested dimension tables.
type SQLGenerator struct {
	registry *catalog.Registry
}

func NewSQLGenerator(registry *catalog.Registry) *SQLGenerator {
	return &SQLGenerator{registry: registry}
}

// Resolve finds the metric a query refers to, by id first and then by any
// alias appearing in the metric term.
func (g *SQLGenerator) Resolve(query Query) (catalog.Metric, error) {
	if query.MetricID != "" {
		if metric, ok := g.registry.ByID(query.MetricID); ok {
			return metric, nil
		}
	}
	if metric, ok := g.registry.Lookup(query.Metric); ok {
		return metric, nil
	}
	if metric, _, ok := g.registry.ResolveInText(query.Metric); ok {
		return metric, nil
	}
	return catalog.Metric{}, fmt.Errorf("unsupported metric: %s", query.Metric)
}

// Generate produces the SQL text and its positional parameters.
func (g *SQLGenerator) Generate(query Query) (string, []any, error) {
	metric, err := g.Resolve(query)
	if err != nil {
		return "", nil, err
	}

	dimensions := g.resolveDimensions(query.GroupBy)
	aggregate := len(dimensions) > 0 || (query.TimeRange != nil && query.Granularity != "")

	var selectFields []string
	if query.TimeRange != nil {
		selectFields = append(selectFields, "dd.date")
	}
	for _, dim := range dimensions {
		selectFields = append(selectFields,
			fmt.Sprintf("%s.%s_name AS \"%s\"", dim.Code, dim.Code, dim.Name))
	}
	if aggregate {
		fn := sqlAggregation[query.Operator]
		if fn == "" {
			fn = "SUM"
		}
		selectFields = append(selectFields, fmt.Sprintf("%s(f.%s) AS metric_value", fn, metric.Column))
	} else {
		selectFields = append(selectFields, fmt.Sprintf("f.%s AS metric_value", metric.Column))
	}

	joins := []string{"JOIN dim_date dd ON f.date_key = dd.date_key"}
	for _, dim := range dimensions {
		joins = append(joins, fmt.Sprintf("JOIN %s %s ON f.%s = %s.%s",
			dim.Table, dim.Code, dim.Key, dim.Code, dim.Key))
	}

	var (
		conditions []string
		params     []any
	)
	if query.TimeRange != nil {
		params = append(params,
			query.TimeRange.Start.Format("2006-01-02"),
			query.TimeRange.End.Format("2006-01-02"))
		conditions = append(conditions, fmt.Sprintf("dd.date BETWEEN $%d AND $%d", len(params)-1, len(params)))
	}

	var groupFields []string
	if query.TimeRange != nil && query.Granularity != "" {
		groupFields = append(groupFields, "dd.date")
	}
	for _, dim := range dimensions {
		groupFields = append(groupFields, fmt.Sprintf("%s.%s_name", dim.Code, dim.Code))
	}

	clauses := []string{
		"SELECT " + strings.Join(selectFields, ", "),
		"FROM " + metric.Table + " f",
	}
	clauses = append(clauses, joins...)
	if len(conditions) > 0 {
		clauses = append(clauses, "WHERE "+strings.Join(conditions, " AND "))
	}
	if len(groupFields) > 0 {
		clauses = append(clauses, "GROUP BY "+strings.Join(groupFields, ", "))
	}
	if query.TimeRange != nil {
		clauses = append(clauses, "ORDER BY dd.date DESC")
	}

	return strings.Join(clauses, " "), params, nil
}

func (g *SQLGenerator) resolveDimensions(names []string) []catalog.Dimension {
	var out []catalog.Dimension
	for _, name := range names {
		for _, dim := range g.registry.Dimensions() {
			if dim.Name == name || dim.Code == name {
				out = append(out, dim)
				break
			}
		}
	}
	return out
}
