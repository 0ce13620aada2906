package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

var (
	seedRegions    = []string{"华东", "华南", "华北", "西南", "东北"}
	seedCategories = []string{"数码", "服饰", "美妆", "食品", "家居", "运动"}
	seedChannels   = []string{"App", "小程序", "网页", "线下"}
)

type SeedConfig struct {
	Days int
	Now  func() time.Time
	Seed int64
}

// Seed fills the warehouse with demo data: dimension rows plus a daily
// series of orders, traffic, user activity, and finance facts. Weekends get
// a lift so trend analysis has something to find.
func Seed(ctx context.Context, db *sql.DB, cfg SeedConfig) error {
	if cfg.Days <= 0 {
		cfg.Days = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	if err := seedDimensions(ctx, db); err != nil {
		return err
	}

	end := cfg.Now().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -cfg.Days+1)

	orderID := int64(1000000)
	userID := int64(500000)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := dateKey(day)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO dim_date (date_key, date) VALUES ($1, $2)`,
			key, day.Format("2006-01-02")); err != nil {
			return fmt.Errorf("seed dim_date: %w", err)
		}

		weekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
		lift := 1.0
		if weekend {
			lift = 1.2
		}

		for i := 0; i < 40; i++ {
			orderID++
			amount := (50 + rng.Float64()*4950) * lift
			if err := insertOrder(ctx, db, orderID, key, rng, amount); err != nil {
				return err
			}
		}

		for region := 1; region <= len(seedRegions); region++ {
			for channel := 1; channel <= len(seedChannels); channel++ {
				visits := 500 + rng.Intn(1500)
				conversion := 0.02 + rng.Float64()*0.04
				if _, err := db.ExecContext(ctx,
					`INSERT INTO fact_traffic (date_key, region_key, channel_key, visits, conversion) VALUES ($1, $2, $3, $4, $5)`,
					key, region, channel, visits, conversion); err != nil {
					return fmt.Errorf("seed fact_traffic: %w", err)
				}
			}
			revenue := (80000 + rng.Float64()*40000) * lift
			profit := revenue * (0.1 + rng.Float64()*0.15)
			if _, err := db.ExecContext(ctx,
				`INSERT INTO fact_finance (date_key, region_key, revenue, profit) VALUES ($1, $2, $3, $4)`,
				key, region, revenue, profit); err != nil {
				return fmt.Errorf("seed fact_finance: %w", err)
			}
		}

		for i := 0; i < 120; i++ {
			userID++
			newUser := 0
			if rng.Float64() < 0.15 {
				newUser = 1
			}
			retained := 0
			if rng.Float64() < 0.6 {
				retained = 1
			}
			if _, err := db.ExecContext(ctx,
				`INSERT INTO fact_user_activity (date_key, region_key, channel_key, user_id, new_user_flag, retained_flag) VALUES ($1, $2, $3, $4, $5, $6)`,
				key, 1+rng.Intn(len(seedRegions)), 1+rng.Intn(len(seedChannels)), userID, newUser, retained); err != nil {
				return fmt.Errorf("seed fact_user_activity: %w", err)
			}
		}
	}
	return nil
}

func insertOrder(ctx context.Context, db *sql.DB, orderID int64, key int, rng *rand.Rand, amount float64) error {
	paid := 0
	if rng.Float64() < 0.75 {
		paid = 1
	}
	refunded := 0
	if rng.Float64() < 0.2 {
		refunded = 1
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO fact_orders (order_id, date_key, region_key, category_key, channel_key, order_amount, quantity, paid_flag, refund_flag) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		orderID, key,
		1+rng.Intn(len(seedRegions)),
		1+rng.Intn(len(seedCategories)),
		1+rng.Intn(len(seedChannels)),
		amount, 1+rng.Intn(5), paid, refunded); err != nil {
		return fmt.Errorf("seed fact_orders: %w", err)
	}
	return nil
}

func seedDimensions(ctx context.Context, db *sql.DB) error {
	type dimension struct {
		table  string
		column string
		values []string
	}
	for _, dim := range []dimension{
		{"dim_region", "region_name", seedRegions},
		{"dim_category", "category_name", seedCategories},
		{"dim_channel", "channel_name", seedChannels},
	} {
		for i, name := range dim.values {
			query := `INSERT INTO ` + dim.table + ` (` + dim.table[4:] + `_key, ` + dim.column + `) VALUES ($1, $2)`
			if _, err := db.ExecContext(ctx, query, i+1, name); err != nil {
				return fmt.Errorf("seed %s: %w", dim.table, err)
			}
		}
	}
	return nil
}

// dateKey renders 2026-08-19 as 20260819.
func dateKey(day time.Time) int {
	key, _ := strconv.Atoi(day.Format("20060102"))
	return key
}
