package mql

import (
	"testing"
	"time"

	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/intent"
)

func testRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	registry, err := catalog.NewRegistry([]catalog.Metric{
		{
			ID: "gmv", Name: "GMV", Code: "gmv", Domain: "电商", Unit: "元",
			Table: "fact_orders", Column: "order_amount", CalculationType: "SUM",
			Synonyms: []string{"成交金额", "成交总额"},
		},
		{
			ID: "conversion_rate", Name: "转化率", Code: "conversion_rate", Domain: "电商", Unit: "%",
			Table: "fact_traffic", Column: "conversion_rate", CalculationType: "RATIO",
		},
	}, []catalog.Dimension{
		{Name: "地区", Code: "region", Table: "dim_region", Key: "region_key"},
		{Name: "渠道", Code: "channel", Table: "dim_channel", Key: "channel_key"},
	})
	if err != nil {
		t.Fatalf("catalog.NewRegistry() error = %v", err)
	}
	return registry
}

func testTimeRange() *intent.TimeRange {
	start, _ := time.Parse("2006-01-02", "2026-08-12")
	end, _ := time.Parse("2006-01-02", "2026-08-19")
	return &intent.TimeRange{Start: start, End: end}
}

func TestGenerateFromIntent(t *testing.T) {
	in := intent.Intent{
		Query:       "最近7天按地区的GMV总和",
		CoreQuery:   "GMV",
		MetricID:    "gmv",
		TimeRange:   testTimeRange(),
		Granularity: intent.GranularityDay,
		Aggregation: intent.AggregationSum,
		Dimensions:  []string{"地区"},
		Comparison:  "yoy",
		Filters:     map[string]string{"domain": "电商"},
	}

	query := Generate(in)
	if query.Operator != OperatorSum {
		t.Fatalf("Operator = %q", query.Operator)
	}
	if query.Comparison != ComparisonYoY {
		t.Fatalf("Comparison = %q", query.Comparison)
	}
	if len(query.Filters) != 1 || query.Filters[0].Field != "domain" {
		t.Fatalf("Filters = %+v", query.Filters)
	}

	want := "SELECT SUM(GMV) FROM 2026-08-12 TO 2026-08-19 WHERE domain = '电商' GROUP BY 地区 COMPARE WITH YoY"
	if got := query.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestGenerateDefaultsToSelect(t *testing.T) {
	query := Generate(intent.Intent{CoreQuery: "GMV"})
	if query.Operator != OperatorSelect {
		t.Fatalf("Operator = %q", query.Operator)
	}
	if got := query.String(); got != "SELECT GMV" {
		t.Fatalf("String() = %q", got)
	}
}

func TestSQLGeneratorSimpleQuery(t *testing.T) {
	generator := NewSQLGenerator(testRegistry(t))

	sqlText, params, err := generator.Generate(Query{Metric: "GMV"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := "SELECT f.order_amount AS metric_value FROM fact_orders f JOIN dim_date dd ON f.date_key = dd.date_key"
	if sqlText != want {
		t.Fatalf("sql = %q, want %q", sqlText, want)
	}
	if len(params) != 0 {
		t.Fatalf("params = %+v", params)
	}
}

func TestSQLGeneratorTimeRangeAndDimensions(t *testing.T) {
	generator := NewSQLGenerator(testRegistry(t))

	sqlText, params, err := generator.Generate(Query{
		Metric:      "GMV",
		MetricID:    "gmv",
		Operator:    OperatorSum,
		TimeRange:   testTimeRange(),
		Granularity: intent.GranularityDay,
		GroupBy:     []string{"地区"},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := `SELECT dd.date, region.region_name AS "地区", SUM(f.order_amount) AS metric_value ` +
		"FROM fact_orders f " +
		"JOIN dim_date dd ON f.date_key = dd.date_key " +
		"JOIN dim_region region ON f.region_key = region.region_key " +
		"WHERE dd.date BETWEEN $1 AND $2 " +
		"GROUP BY dd.date, region.region_name " +
		"ORDER BY dd.date DESC"
	if sqlText != want {
		t.Fatalf("sql = %q, want %q", sqlText, want)
	}
	if len(params) != 2 || params[0] != "2026-08-12" || params[1] != "2026-08-19" {
		t.Fatalf("params = %+v", params)
	}
}

func TestSQLGeneratorRateMetricUsesAvg(t *testing.T) {
	generator := NewSQLGenerator(testRegistry(t))

	sqlText, _, err := generator.Generate(Query{
		Metric:      "转化率",
		Operator:    OperatorRatio,
		TimeRange:   testTimeRange(),
		Granularity: intent.GranularityDay,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := "SELECT dd.date, AVG(f.conversion_rate) AS metric_value " +
		"FROM fact_traffic f " +
		"JOIN dim_date dd ON f.date_key = dd.date_key " +
		"WHERE dd.date BETWEEN $1 AND $2 " +
		"GROUP BY dd.date " +
		"ORDER BY dd.date DESC"
	if sqlText != want {
		t.Fatalf("sql = %q, want %q", sqlText, want)
	}
}

func TestSQLGeneratorResolvesSynonymInText(t *testing.T) {
	generator := NewSQLGenerator(testRegistry(t))

	metric, err := generator.Resolve(Query{Metric: "最近7天的成交金额"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if metric.ID != "gmv" {
		t.Fatalf("metric = %+v", metric)
	}
}

func TestSQLGeneratorRejectsUnknownMetric(t *testing.T) {
	generator := NewSQLGenerator(testRegistry(t))

	if _, _, err := generator.Generate(Query{Metric: "不存在的指标"}); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}
