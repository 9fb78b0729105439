package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PlansCreated prometheus.Counter
	PlansMerged  prometheus.Counter
	PlansDeleted prometheus.Counter

	DocumentsUpserted prometheus.Counter
	DocumentsDeleted  prometheus.Counter
	PipelineRetries   *prometheus.CounterVec
	EnqueueFailures   prometheus.Counter

	RequestLatency *prometheus.HistogramVec
}

// New creates all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all Prometheus metrics on the given registerer. Tests pass
// a fresh registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PlansCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "planhub_plans_created_total",
			Help: "Total number of plan aggregates created",
		}),
		PlansMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "planhub_plans_merged_total",
			Help: "Total number of merge patches applied (no-ops excluded)",
		}),
		PlansDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "planhub_plans_deleted_total",
			Help: "Total number of plan aggregates deleted",
		}),
		DocumentsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "planhub_index_documents_upserted_total",
			Help: "Total number of index documents upserted by pipeline consumers",
		}),
		DocumentsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "planhub_index_documents_deleted_total",
			Help: "Total number of index documents deleted by pipeline consumers",
		}),
		PipelineRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planhub_pipeline_retries_total",
			Help: "Message handling attempts that failed and were requeued",
		}, []string{"channel"}),
		EnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "planhub_enqueue_failures_total",
			Help: "Mutations committed to the primary store whose queue publish failed",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
