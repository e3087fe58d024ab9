// Package metrics exposes prometheus collectors for the dispatch pipeline.
// Every helper is a no-op until Init has run, so packages can record
// metrics unconditionally.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "dispatch_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	queueDepth        prometheus.Gauge
	commandsEnqueued  *prometheus.CounterVec
	commandResults    *prometheus.CounterVec
	encodeLatency     *prometheus.HistogramVec
	validationWarning *prometheus.CounterVec
	transportErrors   *prometheus.CounterVec
)

// Init registers the collectors with the default registry
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers the collectors with reg. Only the first call has effect.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		queueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "queue_depth",
				Help: "Commands currently waiting in the queue",
			},
		)
		commandsEnqueued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_enqueued_total",
				Help: "Total commands accepted by the queue by priority",
			},
			[]string{"priority"},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Total commands reaching a terminal status",
			},
			[]string{"status"},
		)
		encodeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "encode_latency_seconds",
				Help:    "Validation plus frame encoding latency in seconds",
				Buckets: []float64{.00001, .000025, .00005, .0001, .00025, .0005, .001, .0025, .005},
			},
			[]string{"format", "result"},
		)
		validationWarning = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_warnings_total",
				Help: "Total validation warnings by device family",
			},
			[]string{"family"},
		)
		transportErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_errors_total",
				Help: "Total frame send failures by transport type",
			},
			[]string{"transport"},
		)

		reg.MustRegister(
			queueDepth,
			commandsEnqueued,
			commandResults,
			encodeLatency,
			validationWarning,
			transportErrors,
		)
	})
}

// SetQueueDepth records the current queue length
func SetQueueDepth(depth int) {
	if queueDepth != nil {
		queueDepth.Set(float64(depth))
	}
}

// IncEnqueued increments the enqueue counter for priority
func IncEnqueued(priority string) {
	if commandsEnqueued != nil {
		commandsEnqueued.WithLabelValues(priority).Inc()
	}
}

// IncCommandResult increments the terminal status counter
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// ObserveEncode records validate+encode duration and result
func ObserveEncode(format, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if encodeLatency != nil {
		encodeLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddValidationWarnings adds count warnings for family
func AddValidationWarnings(family string, count int) {
	if count <= 0 {
		return
	}
	if validationWarning != nil {
		validationWarning.WithLabelValues(family).Add(float64(count))
	}
}

// IncTransportError increments the send failure counter
func IncTransportError(transport string) {
	if transportErrors != nil {
		transportErrors.WithLabelValues(transport).Inc()
	}
}
