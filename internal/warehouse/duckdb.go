package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// OpenDemo starts an in-memory DuckDB warehouse with the star schema applied
// and demo data seeded. Used by the demo profile so the service answers
// queries without a PostgreSQL instance.
func OpenDemo(ctx context.Context, cfg SeedConfig) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Seed(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
