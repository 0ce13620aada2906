package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// resultRow flattens a query result row for the parquet schema. Dimension
// values collapse into a single label column so every metric shares one
// layout.
type resultRow struct {
	Date        string  `parquet:"date"`
	Label       string  `parquet:"label"`
	MetricValue float64 `parquet:"metric_value"`
	Value       float64 `parquet:"value"`
}

// EncodeResultToParquet writes the result rows to a parquet payload.
// dimensions names the row keys that become the label column.
func EncodeResultToParquet(rows []map[string]any, dimensions []string) ([]byte, int, error) {
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("rows are required")
	}

	encoded := make([]resultRow, 0, len(rows))
	for _, row := range rows {
		item := resultRow{}
		if date, ok := row["date"].(string); ok {
			item.Date = date
		}
		var labels []string
		for _, dim := range dimensions {
			if v, ok := row[dim]; ok {
				labels = append(labels, fmt.Sprintf("%v", v))
			}
		}
		item.Label = strings.Join(labels, "/")
		item.MetricValue = floatOf(row["metric_value"])
		item.Value = floatOf(row["value"])
		encoded = append(encoded, item)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[resultRow](buf)
	if _, err := writer.Write(encoded); err != nil {
		return nil, 0, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), len(encoded), nil
}

func floatOf(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
