package mql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/observability"
)

// ResultSet is the outcome of executing one MQL query against the warehouse.
type ResultSet struct {
	SQL      string           `json:"sql"`
	Params   []any            `json:"params"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Elapsed  time.Duration    `json:"-"`
}

// Engine generates SQL from MQL queries and runs it on the warehouse.
type Engine struct {
	db        *sql.DB
	generator *SQLGenerator
	logger    *slog.Logger
}

func NewEngine(db *sql.DB, generator *SQLGenerator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, generator: generator, logger: logger}
}

func (e *Engine) Generator() *SQLGenerator {
	return e.generator
}

// Execute resolves the metric, generates SQL, and returns the formatted rows.
// Rate metrics come back both raw and as percentages.
func (e *Engine) Execute(ctx context.Context, query Query) (*ResultSet, error) {
	metric, err := e.generator.Resolve(query)
	if err != nil {
		return nil, err
	}

	sqlText, params, err := e.generator.Generate(query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText, params...)
	elapsed := time.Since(start)
	observability.ObserveWarehouseQuery("select", metric.Table, elapsed)
	if err != nil {
		return nil, fmt.Errorf("execute %s query: %w", metric.Code, err)
	}
	defer rows.Close()

	formatted, err := formatRows(rows, metric)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("mql query executed",
		"metric", metric.Code,
		"rows", len(formatted),
		"elapsed_ms", elapsed.Milliseconds())

	return &ResultSet{
		SQL:      sqlText,
		Params:   params,
		Rows:     formatted,
		RowCount: len(formatted),
		Elapsed:  elapsed,
	}, nil
}

func formatRows(rows *sql.Rows, metric catalog.Metric) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	formatted := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := map[string]any{}
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		if value, ok := row["metric_value"]; ok {
			row["value"] = displayValue(value, metric)
		}
		formatted = append(formatted, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return formatted, nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return v
	}
}

// displayValue rounds metric values for presentation. Percent metrics are
// stored as fractions and shown multiplied by 100.
func displayValue(value any, metric catalog.Metric) any {
	number, ok := toFloat(value)
	if !ok {
		return value
	}
	if metric.Unit == "%" {
		return math.Round(number*100*100) / 100
	}
	return math.Round(number*100) / 100
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
