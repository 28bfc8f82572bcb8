package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "extraction_attempts_total",
			Help:      "Text-layer extraction attempts by backend and result (accepted, rejected, empty, error)",
		},
		[]string{"backend", "result"},
	)

	extractionRatio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "extraction_corruption_ratio",
			Help:      "Corruption ratio of scored extraction attempts by backend",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 0.75, 1},
		},
		[]string{"backend"},
	)

	pageStrategy = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "page_strategy_total",
			Help:      "Per-page strategy decisions (digital, visual)",
		},
		[]string{"strategy"},
	)

	digitalFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "digital_fallbacks_total",
			Help:      "Pages whose digital reconstruction failed and were retried on the visual path",
		},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "pages_processed_total",
			Help:      "Pages processed by result (ok, failed)",
		},
		[]string{"result"},
	)

	articlesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "articles_extracted_total",
			Help:      "Article candidates produced by source",
		},
		[]string{"source"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal state",
		},
		[]string{"result"},
	)

	indexFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "indexing_failures_total",
			Help:      "Search index hand-offs that failed (non-fatal)",
		},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "provider_requests_total",
			Help:      "Model requests by model and result (success, rate_limited, transient, fatal, refused)",
		},
		[]string{"model", "result"},
	)

	providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "provider_request_duration_seconds",
			Help:      "Model request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "retries_total",
			Help:      "Model request retries after transient failures",
		},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "breaker_events_total",
			Help:      "Circuit breaker events per model",
		},
		[]string{"model", "event"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "newsdigest",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(extractionAttempts, extractionRatio, pageStrategy, digitalFallbacks,
		pagesProcessed, articlesExtracted, stageDuration, runs, indexFailures, queueDepth,
		providerRequests, providerDuration, retriesTotal, breakerEvents)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveAttempt(backend, result string) {
	extractionAttempts.WithLabelValues(backend, result).Inc()
}

func ObserveRatio(backend string, ratio float64) {
	extractionRatio.WithLabelValues(backend).Observe(ratio)
}

func IncStrategy(strategy string)        { pageStrategy.WithLabelValues(strategy).Inc() }
func IncDigitalFallback()                { digitalFallbacks.Inc() }
func IncPage(result string)              { pagesProcessed.WithLabelValues(result).Inc() }
func AddArticles(source string, n int)   { articlesExtracted.WithLabelValues(source).Add(float64(n)) }
func IncRun(result string)               { runs.WithLabelValues(result).Inc() }
func IncIndexFailure()                   { indexFailures.Inc() }
func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

func ObserveStage(stage string, dur time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(dur.Seconds())
}

func ObserveProvider(model, result string, dur time.Duration) {
	providerRequests.WithLabelValues(model, result).Inc()
	providerDuration.WithLabelValues(model).Observe(dur.Seconds())
}

func IncRetry()                  { retriesTotal.Inc() }
func BreakerOpened(model string) { breakerEvents.WithLabelValues(model, "opened").Inc() }
func BreakerClosed(model string) { breakerEvents.WithLabelValues(model, "closed").Inc() }
