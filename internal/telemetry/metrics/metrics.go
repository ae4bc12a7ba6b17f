// Package metrics wires the engine's business and infrastructure counters
// into a private Prometheus registry, grounded on
// 99souls-ariadne's engine/monitoring.PrometheusExporter
// (CounterVec/GaugeVec/HistogramVec registered on a dedicated
// *prometheus.Registry rather than the global default one).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine emits, under one namespace so
// they don't collide with metrics from an embedding process.
type Registry struct {
	registry *prometheus.Registry

	IngestMessagesTotal    *prometheus.CounterVec
	ClassifiedReadingsTotal *prometheus.CounterVec
	AlarmTransitionsTotal  *prometheus.CounterVec
	AppExecutionsTotal     *prometheus.CounterVec
	AppExecutionDuration   *prometheus.HistogramVec
	SchedulerTickDuration  *prometheus.HistogramVec
	PublishQueueDepth      prometheus.Gauge
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec
}

// New builds a Registry under namespace (e.g. "monapps") and registers
// every metric on its own private *prometheus.Registry.
func New(namespace string) *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.IngestMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_messages_total",
		Help:      "MQTT ingress messages decoded, by transport shape and result.",
	}, []string{"shape", "result"})

	r.ClassifiedReadingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classified_readings_total",
		Help:      "Datastream readings classified, by ReadingKind.",
	}, []string{"kind"})

	r.AlarmTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alarm_transitions_total",
		Help:      "Alarm map transitions emitted by the merge state machine, by level and new status.",
	}, []string{"level", "status"})

	r.AppExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "app_executions_total",
		Help:      "Application evaluation runs, by application name and outcome.",
	}, []string{"application", "result"})

	r.AppExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "app_execution_duration_seconds",
		Help:      "Wall time of one application evaluation run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"application"})

	r.SchedulerTickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_tick_duration_seconds",
		Help:      "Wall time of one scheduler worker pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"worker"})

	r.PublishQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "publish_queue_depth",
		Help:      "Pending publish-on-save jobs waiting in the dispatcher's redis sorted set.",
	})

	r.StoreOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_operation_duration_seconds",
		Help:      "Wall time of one repository operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	r.StoreErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Repository operation failures, by operation and apperrors.Kind.",
	}, []string{"operation", "kind"})

	r.registry.MustRegister(
		r.IngestMessagesTotal,
		r.ClassifiedReadingsTotal,
		r.AlarmTransitionsTotal,
		r.AppExecutionsTotal,
		r.AppExecutionDuration,
		r.SchedulerTickDuration,
		r.PublishQueueDepth,
		r.StoreOperationDuration,
		r.StoreErrorsTotal,
	)
	return r
}

// Handler serves the registry's metrics in the Prometheus exposition
// format, to be mounted at e.g. /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
