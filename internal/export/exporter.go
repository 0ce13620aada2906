package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const parquetContentType = "application/vnd.apache.parquet"

// Exporter encodes query results and stores them under
// exports/<metric>/<date>/<id>.parquet.
type Exporter struct {
	store ObjectStore
	now   func() time.Time
}

func NewExporter(store ObjectStore) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

type ExportResult struct {
	Key      string `json:"key"`
	RowCount int    `json:"row_count"`
	Size     int64  `json:"size_bytes"`
}

func (e *Exporter) Export(ctx context.Context, metricCode string, rows []map[string]any, dimensions []string) (ExportResult, error) {
	if metricCode == "" {
		return ExportResult{}, fmt.Errorf("metric code is required")
	}

	payload, count, err := EncodeResultToParquet(rows, dimensions)
	if err != nil {
		return ExportResult{}, err
	}

	key := fmt.Sprintf("exports/%s/%s/%s.parquet",
		metricCode, e.now().UTC().Format("2006-01-02"), uuid.NewString())
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)),
		PutOptions{ContentType: parquetContentType})
	if err != nil {
		return ExportResult{}, err
	}

	return ExportResult{Key: key, RowCount: count, Size: info.Size}, nil
}
