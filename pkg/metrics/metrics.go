// Package metrics holds the Prometheus collectors for the chat pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_chat_requests_total",
			Help: "Total number of chat requests by outcome (answer, clarify, error).",
		},
		[]string{"outcome"},
	)

	chatDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_chat_duration_seconds",
			Help:    "End-to-end chat pipeline latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	modelAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_model_attempts_total",
			Help: "Model invocations by attempt number and result.",
		},
		[]string{"attempt", "result"},
	)

	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_guard_rejections_total",
			Help: "SQL candidates refused by the guard, by reason.",
		},
		[]string{"reason"},
	)

	schemaCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_schema_cache_lookups_total",
			Help: "Schema cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_duration_seconds",
			Help:    "Latency of validated queries against the datasource.",
			Buckets: prometheus.DefBuckets,
		},
	)

	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_rows",
			Help:    "Rows returned per validated query.",
			Buckets: []float64{0, 1, 10, 50, 100, 200, 500, 1000},
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	mcpToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_mcp_tool_calls_total",
			Help: "MCP tool calls by tool and result (ok, tool_error, error).",
		},
		[]string{"tool", "result"},
	)

	mcpToolDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_mcp_tool_duration_seconds",
			Help:    "MCP tool call latency.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		chatDurationSeconds,
		modelAttemptsTotal,
		guardRejectionsTotal,
		schemaCacheLookupsTotal,
		queryDurationSeconds,
		queryRows,
		httpRequestsTotal,
		mcpToolCallsTotal,
		mcpToolDurationSeconds,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveChat(outcome string, elapsed time.Duration) {
	chatRequestsTotal.WithLabelValues(outcome).Inc()
	chatDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveModelAttempt(attempt int, result string) {
	modelAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), result).Inc()
}

func IncrementGuardRejection(reason string) {
	guardRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveSchemaCacheLookup(result string) {
	schemaCacheLookupsTotal.WithLabelValues(result).Inc()
}

func ObserveQuery(rows int, elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
	if rows < 0 {
		rows = 0
	}
	queryRows.Observe(float64(rows))
}

func ObserveHTTPRequest(method, path string, status int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func ObserveMCPToolCall(tool, result string, elapsed time.Duration) {
	mcpToolCallsTotal.WithLabelValues(tool, result).Inc()
	mcpToolDurationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}
