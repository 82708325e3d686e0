package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "jobs_total",
			Help:      "Jobs finalized by result (completed, failed, cancelled, reused)",
		},
		[]string{"result"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "summarizer",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages by stage and result",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 240, 300},
		},
		[]string{"stage", "result"},
	)

	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "llm_requests_total",
			Help:      "Model calls by model, stage and result",
		},
		[]string{"model", "stage", "result"},
	)

	llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "llm_tokens_total",
			Help:      "Token usage by model and direction (input, output, reasoning)",
		},
		[]string{"model", "direction"},
	)

	dedupHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "dedup_hits_total",
			Help:      "Requests served from a previously completed job",
		},
	)

	rateLimitBackoffs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "rate_limit_backoffs_total",
			Help:      "Pauses taken because remaining provider tokens ran low",
		},
	)

	cleanupRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "cleanup_removed_total",
			Help:      "Job directories removed by the cleanup worker, by reason",
		},
		[]string{"reason"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(jobsTotal, stageDuration, llmRequests, llmTokens, dedupHits, rateLimitBackoffs, cleanupRemoved)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncJob(result string) { jobsTotal.WithLabelValues(result).Inc() }

func ObserveStage(stage, result string, dur time.Duration) {
	stageDuration.WithLabelValues(stage, result).Observe(dur.Seconds())
}

func ObserveLLM(model, stage, result string, inTokens, outTokens, reasoningTokens int) {
	llmRequests.WithLabelValues(model, stage, result).Inc()
	llmTokens.WithLabelValues(model, "input").Add(float64(inTokens))
	llmTokens.WithLabelValues(model, "output").Add(float64(outTokens))
	llmTokens.WithLabelValues(model, "reasoning").Add(float64(reasoningTokens))
}

func IncDedupHit() { dedupHits.Inc() }

func IncRateLimitBackoff() { rateLimitBackoffs.Inc() }

func IncCleanupRemoved(reason string) { cleanupRemoved.WithLabelValues(reason).Inc() }
