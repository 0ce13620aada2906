package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

// ddlStatements is the star schema: one date dimension, the business
// dimensions, and one fact table per subject area. The types are the common
// subset that PostgreSQL and DuckDB both accept.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS dim_date (
	date_key INTEGER PRIMARY KEY,
	date DATE NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS dim_region (
	region_key INTEGER PRIMARY KEY,
	region_name VARCHAR NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS dim_category (
	category_key INTEGER PRIMARY KEY,
	category_name VARCHAR NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS dim_channel (
	channel_key INTEGER PRIMARY KEY,
	channel_name VARCHAR NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fact_orders (
	order_id BIGINT NOT NULL,
	date_key INTEGER NOT NULL,
	region_key INTEGER NOT NULL,
	category_key INTEGER NOT NULL,
	channel_key INTEGER NOT NULL,
	order_amount DOUBLE PRECISION NOT NULL,
	quantity INTEGER NOT NULL,
	paid_flag INTEGER NOT NULL,
	refund_flag INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fact_traffic (
	date_key INTEGER NOT NULL,
	region_key INTEGER NOT NULL,
	channel_key INTEGER NOT NULL,
	visits INTEGER NOT NULL,
	conversion DOUBLE PRECISION NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fact_user_activity (
	date_key INTEGER NOT NULL,
	region_key INTEGER NOT NULL,
	channel_key INTEGER NOT NULL,
	user_id BIGINT NOT NULL,
	new_user_flag INTEGER NOT NULL,
	retained_flag INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fact_finance (
	date_key INTEGER NOT NULL,
	region_key INTEGER NOT NULL,
	revenue DOUBLE PRECISION NOT NULL,
	profit DOUBLE PRECISION NOT NULL
)`,
}

// Migrate creates the star schema. Statements are idempotent so repeated
// runs are safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, statement := range ddlStatements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply warehouse schema: %w", err)
		}
	}
	return nil
}
