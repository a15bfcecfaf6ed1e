package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "report_worker"

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	Jobs             *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	Generations      *prometheus.CounterVec
	Tokens           prometheus.Counter
	CacheOperations  *prometheus.CounterVec
	SkippedResponses prometheus.Counter
}

// NewMetrics registers the worker metrics on reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Processed generation requests by outcome",
		}, []string{"status"}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from receipt to response for a generation request",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		Generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_generations_total",
			Help:      "Per-category language model calls by result",
		}, []string{"result"}),
		Tokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by generation calls",
		}),
		CacheOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache operations by kind and result",
		}, []string{"operation", "result"}),
		SkippedResponses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undecodable_messages_total",
			Help:      "Requests acked without a response because they could not be decoded",
		}),
	}
}
