package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitWith(reg)
	InitWith(reg) // second call is a no-op

	SetQueueDepth(4)
	IncEnqueued("HIGH")
	IncEnqueued("HIGH")
	IncCommandResult("COMPLETED")
	IncCommandResult("")
	ObserveEncode("native", ResultSuccess, 50*time.Microsecond)
	AddValidationWarnings("ARDUINO", 2)
	AddValidationWarnings("ARDUINO", 0)
	IncTransportError("SERIAL")

	families := gather(t, reg)

	if got := families["dispatch_queue_depth"].GetMetric()[0].GetGauge().GetValue(); got != 4 {
		t.Errorf("queue_depth = %v, want 4", got)
	}
	if got := families["dispatch_commands_enqueued_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("commands_enqueued_total = %v, want 2", got)
	}
	if got := len(families["dispatch_commands_total"].GetMetric()); got != 2 {
		t.Errorf("commands_total series = %d, want 2", got)
	}
	if got := families["dispatch_encode_latency_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("encode_latency sample count = %d, want 1", got)
	}
	if got := families["dispatch_validation_warnings_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("validation_warnings_total = %v, want 2", got)
	}
	if _, ok := families["dispatch_transport_errors_total"]; !ok {
		t.Error("transport_errors_total not registered")
	}
}
