package recall

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
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

func candidateColumns() []string {
	return []string{"metric_id", "name", "code", "description", "domain"}
}

func TestGraphRecallMergesTextDomainAndRelated(t *testing.T) {
	db, mock := newSQLMock(t)
	recaller := NewGraphRecaller(db)

	mock.ExpectQuery(regexp.QuoteMeta(graphTextMatchQuery)).
		WithArgs("最近7天的GMV", 10).
		WillReturnRows(sqlmock.NewRows(candidateColumns()).
			AddRow("gmv", "GMV", "gmv", "成交总额", "电商"))

	mock.ExpectQuery(regexp.QuoteMeta(graphDomainMatchQuery)).
		WithArgs("最近7天的GMV", 10).
		WillReturnRows(sqlmock.NewRows(candidateColumns()))

	mock.ExpectQuery(regexp.QuoteMeta(graphRelatedQuery)).
		WithArgs(`{"gmv"}`, 10).
		WillReturnRows(sqlmock.NewRows(candidateColumns()).
			AddRow("order_count", "订单量", "order_count", "订单总数", "电商").
			AddRow("gmv", "GMV", "gmv", "成交总额", "电商"))

	got, err := recaller.Recall(context.Background(), "最近7天的GMV", 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (deduped)", len(got))
	}
	if got[0].MetricID != "gmv" || got[1].MetricID != "order_count" {
		t.Fatalf("candidates = %+v", got)
	}
	for _, candidate := range got {
		if candidate.Source != SourceGraph || candidate.GraphScore != 1.0 {
			t.Fatalf("candidate = %+v", candidate)
		}
	}
	assertSQLMock(t, mock)
}

func TestGraphRecallDomainOnlyQuery(t *testing.T) {
	db, mock := newSQLMock(t)
	recaller := NewGraphRecaller(db)

	mock.ExpectQuery(regexp.QuoteMeta(graphTextMatchQuery)).
		WithArgs("电商指标有哪些", 10).
		WillReturnRows(sqlmock.NewRows(candidateColumns()))

	mock.ExpectQuery(regexp.QuoteMeta(graphDomainMatchQuery)).
		WithArgs("电商指标有哪些", 10).
		WillReturnRows(sqlmock.NewRows(candidateColumns()).
			AddRow("gmv", "GMV", "gmv", "成交总额", "电商").
			AddRow("order_count", "订单量", "order_count", "订单总数", "电商"))

	got, err := recaller.Recall(context.Background(), "电商指标有哪些", 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	assertSQLMock(t, mock)
}

func TestPGTextArrayEscaping(t *testing.T) {
	got := pgTextArray([]string{"a", `b"c`, `d\e`})
	want := `{"a","b\"c","d\\e"}`
	if got != want {
		t.Fatalf("pgTextArray = %s, want %s", got, want)
	}
}
