package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesVisited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_visited_total",
		Help: "Pages rendered by the browser across all sessions.",
	})

	PageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_page_failures_total",
		Help: "Page loads that failed, by reason.",
	}, []string{"reason"}) // timeout, error, skipped

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_llm_calls_total",
		Help: "Structured LLM calls by response schema and outcome.",
	}, []string{"schema", "outcome"})

	LLMCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_llm_call_seconds",
		Help:    "Latency of a single LLM request.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	JobsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_jobs_extracted_total",
		Help: "Job offers accepted into a session's job list.",
	})

	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_sessions_total",
		Help: "Crawl sessions by worker mode and outcome.",
	}, []string{"mode", "outcome"})

	PaginationDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_pagination_detections_total",
		Help: "Pagination lookups by where the container came from.",
	}, []string{"source"}) // cache, llm, none
)

func IncPageFailure(reason string) {
	PageFailures.WithLabelValues(reason).Inc()
}

func ObserveLLMCall(schema, outcome string, started time.Time) {
	LLMCalls.WithLabelValues(schema, outcome).Inc()
	LLMCallDuration.Observe(time.Since(started).Seconds())
}

func IncSession(mode, outcome string) {
	Sessions.WithLabelValues(mode, outcome).Inc()
}

func IncPaginationDetection(source string) {
	PaginationDetections.WithLabelValues(source).Inc()
}
