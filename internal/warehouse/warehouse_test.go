package warehouse

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

func TestMigrateAppliesEveryStatement(t *testing.T) {
	db, mock := newSQLMock(t)
	for range ddlStatements {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(sql.ErrConnDone)

	if err := Migrate(context.Background(), db); err == nil {
		t.Fatal("expected migration error")
	}
}

func TestSeedWritesDimensionsAndFacts(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.MatchExpectationsInOrder(false)

	expect := func(pattern string, count int) {
		for i := 0; i < count; i++ {
			mock.ExpectExec(pattern).WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}
	expect("INSERT INTO dim_region", 5)
	expect("INSERT INTO dim_category", 6)
	expect("INSERT INTO dim_channel", 4)
	expect("INSERT INTO dim_date", 1)
	expect("INSERT INTO fact_orders", 40)
	expect("INSERT INTO fact_traffic", 20)
	expect("INSERT INTO fact_finance", 5)
	expect("INSERT INTO fact_user_activity", 120)

	fixed := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	err := Seed(context.Background(), db, SeedConfig{
		Days: 1,
		Now:  func() time.Time { return fixed },
		Seed: 1,
	})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDateKey(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	if got := dateKey(day); got != 20260819 {
		t.Fatalf("dateKey = %d", got)
	}
}
