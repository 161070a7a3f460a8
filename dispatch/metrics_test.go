package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusEmitterCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	emitter := NewPrometheusEmitter(reg)

	tags := Tags{"query_type": "test"}
	emitter.Incr(MetricInvocations, 1, tags)
	emitter.Incr(MetricInvocations, 1, tags)
	emitter.Incr(MetricDetectorsFound, 5, tags)
	emitter.Incr(MetricNoDetectors, 1, Tags{"query_type": "test2"})

	if got := testutil.ToFloat64(emitter.invocations.WithLabelValues("test")); got != 2 {
		t.Errorf("invocations counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(emitter.detectorsFound.WithLabelValues("test")); got != 5 {
		t.Errorf("detectors-found counter = %v, want 5", got)
	}
	if got := testutil.ToFloat64(emitter.noDetectors.WithLabelValues("test2")); got != 1 {
		t.Errorf("no-detectors counter = %v, want 1", got)
	}
}

func TestPrometheusEmitterUnknownMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	emitter := NewPrometheusEmitter(reg)

	// Unknown names are dropped rather than panicking.
	emitter.Incr("dispatch.unknown", 1, Tags{"query_type": "test"})

	if got := testutil.ToFloat64(emitter.invocations.WithLabelValues("test")); got != 0 {
		t.Errorf("invocations counter = %v, want 0", got)
	}
}

func TestPrometheusEmitterSatisfiesInterface(t *testing.T) {
	var _ MetricsEmitter = (*PrometheusEmitter)(nil)
	var _ MetricsEmitter = NopEmitter{}
}
