package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbi_queries_total",
			Help: "Total natural-language queries processed.",
		},
		[]string{"status", "query_type"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbi_query_duration_seconds",
			Help:    "End-to-end query duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"query_type"},
	)
	queriesInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbi_queries_in_progress",
			Help: "Number of queries currently being processed.",
		},
	)
	intentRecognitionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbi_intent_recognition_total",
			Help: "Intent recognition attempts by pipeline layer.",
		},
		[]string{"layer", "success"},
	)
	intentRecognitionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbi_intent_recognition_duration_seconds",
			Help:    "Intent recognition duration by pipeline layer.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"layer"},
	)
	warehouseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbi_db_queries_total",
			Help: "Warehouse queries issued by the MQL engine.",
		},
		[]string{"operation", "table"},
	)
	warehouseQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbi_db_query_duration_seconds",
			Help:    "Warehouse query duration.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation", "table"},
	)
	metricUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbi_metric_usage_total",
			Help: "How often each catalog metric is queried.",
		},
		[]string{"metric_name"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbi_llm_requests_total",
			Help: "LLM API requests by model and outcome.",
		},
		[]string{"model", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		queriesInProgress,
		intentRecognitionTotal,
		intentRecognitionDurationSeconds,
		warehouseQueriesTotal,
		warehouseQueryDurationSeconds,
		metricUsageTotal,
		llmRequestsTotal,
	)
}

func ObserveQuery(queryType, status string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(status, queryType).Inc()
	queryDurationSeconds.WithLabelValues(queryType).Observe(elapsed.Seconds())
}

func QueryStarted() {
	queriesInProgress.Inc()
}

func QueryFinished() {
	queriesInProgress.Dec()
}

func ObserveIntentLayer(layer string, success bool, elapsed time.Duration) {
	outcome := "false"
	if success {
		outcome = "true"
	}
	intentRecognitionTotal.WithLabelValues(layer, outcome).Inc()
	intentRecognitionDurationSeconds.WithLabelValues(layer).Observe(elapsed.Seconds())
}

func ObserveWarehouseQuery(operation, table string, elapsed time.Duration) {
	warehouseQueriesTotal.WithLabelValues(operation, table).Inc()
	warehouseQueryDurationSeconds.WithLabelValues(operation, table).Observe(elapsed.Seconds())
}

func ObserveMetricUsage(metricName string) {
	metricUsageTotal.WithLabelValues(metricName).Inc()
}

func ObserveLLMRequest(model, status string) {
	llmRequestsTotal.WithLabelValues(model, status).Inc()
}
