package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter names emitted by the engine, each tagged with query_type.
const (
	// MetricInvocations increments once per ProcessDataSources call,
	// including calls with an empty batch.
	MetricInvocations = "dispatch.invocation"

	// MetricDetectorsFound increments by the total number of detectors
	// returned across the whole batch, only when that count is >= 1.
	MetricDetectorsFound = "dispatch.detectors_found"

	// MetricNoDetectors increments once when no packet in the batch
	// resolved to any detector.
	MetricNoDetectors = "dispatch.no_detectors"
)

// Tags is a set of key/value labels attached to a counter increment.
type Tags map[string]string

// MetricsEmitter receives counters describing dispatch outcomes. The
// emitter is assumed to be fire-and-forget; implementations must not
// block the ingestion path.
type MetricsEmitter interface {
	Incr(name string, value int64, tags Tags)
}

// NopEmitter discards all counters.
type NopEmitter struct{}

func (NopEmitter) Incr(string, int64, Tags) {}

// PrometheusEmitter exposes the dispatch counters as Prometheus
// counter vectors labeled by query_type.
type PrometheusEmitter struct {
	invocations    *prometheus.CounterVec
	detectorsFound *prometheus.CounterVec
	noDetectors    *prometheus.CounterVec
}

// NewPrometheusEmitter registers the dispatch counters with the given
// registerer. Pass prometheus.DefaultRegisterer to expose them on the
// default /metrics handler.
func NewPrometheusEmitter(reg prometheus.Registerer) *PrometheusEmitter {
	factory := promauto.With(reg)
	labels := []string{"query_type"}

	return &PrometheusEmitter{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_invocations_total",
			Help: "Total dispatch engine invocations.",
		}, labels),
		detectorsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_detectors_found_total",
			Help: "Total detectors resolved across all dispatched batches.",
		}, labels),
		noDetectors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_no_detectors_total",
			Help: "Dispatch invocations where no packet resolved to any detector.",
		}, labels),
	}
}

func (e *PrometheusEmitter) Incr(name string, value int64, tags Tags) {
	var vec *prometheus.CounterVec
	switch name {
	case MetricInvocations:
		vec = e.invocations
	case MetricDetectorsFound:
		vec = e.detectorsFound
	case MetricNoDetectors:
		vec = e.noDetectors
	default:
		return
	}
	vec.WithLabelValues(tags["query_type"]).Add(float64(value))
}
