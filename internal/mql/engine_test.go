package mql

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/chatbi/chatbi/internal/intent"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestEngineExecuteFormatsRows(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := NewEngine(db, NewSQLGenerator(testRegistry(t)), nil)

	query := Query{
		Metric:      "GMV",
		MetricID:    "gmv",
		Operator:    OperatorSum,
		TimeRange:   testTimeRange(),
		Granularity: intent.GranularityDay,
	}
	sqlText, _, err := engine.Generator().Generate(query)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(sqlText)).
		WithArgs("2026-08-12", "2026-08-19").
		WillReturnRows(sqlmock.NewRows([]string{"date", "metric_value"}).
			AddRow("2026-08-19", 12345.678).
			AddRow("2026-08-18", 9876.541))

	result, err := engine.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if result.SQL != sqlText {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if len(result.Params) != 2 {
		t.Fatalf("Params = %+v", result.Params)
	}

	first := result.Rows[0]
	if first["date"] != "2026-08-19" {
		t.Fatalf("date = %v", first["date"])
	}
	if first["metric_value"] != 12345.678 {
		t.Fatalf("metric_value = %v", first["metric_value"])
	}
	if first["value"] != 12345.68 {
		t.Fatalf("value = %v", first["value"])
	}
	assertSQLMock(t, mock)
}

func TestEngineExecutePercentMetric(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := NewEngine(db, NewSQLGenerator(testRegistry(t)), nil)

	query := Query{
		Metric:      "转化率",
		Operator:    OperatorRatio,
		TimeRange:   testTimeRange(),
		Granularity: intent.GranularityDay,
	}
	sqlText, _, err := engine.Generator().Generate(query)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(sqlText)).
		WithArgs("2026-08-12", "2026-08-19").
		WillReturnRows(sqlmock.NewRows([]string{"date", "metric_value"}).
			AddRow("2026-08-19", 0.0342))

	result, err := engine.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0]["value"] != 3.42 {
		t.Fatalf("value = %v", result.Rows[0]["value"])
	}
	assertSQLMock(t, mock)
}

func TestEngineExecuteUnknownMetric(t *testing.T) {
	db, _ := newSQLMock(t)
	engine := NewEngine(db, NewSQLGenerator(testRegistry(t)), nil)

	if _, err := engine.Execute(context.Background(), Query{Metric: "神秘指标"}); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestEngineExecuteQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := NewEngine(db, NewSQLGenerator(testRegistry(t)), nil)

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	if _, err := engine.Execute(context.Background(), Query{Metric: "GMV"}); err == nil {
		t.Fatal("expected query error")
	}
	assertSQLMock(t, mock)
}
