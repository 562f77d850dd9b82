package otel

import (
	"context"
	"testing"

	authkit "github.com/rentfold/authkit"
	"github.com/rentfold/authkit/metrics/export/internaldefs"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type stubSource struct {
	counters map[authkit.MetricID]uint64
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() authkit.MetricsSnapshot {
	return authkit.MetricsSnapshot{Counters: s.counters}
}

func (s *stubSource) AuditDropped() uint64 { return s.dropped }

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", m.Name)
			}
			for _, dp := range sum.DataPoints {
				values[m.Name] = dp.Value
			}
		}
	}
	return values
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	source := &stubSource{
		counters: map[authkit.MetricID]uint64{
			authkit.MetricRenewSuccess:         42,
			authkit.MetricRefreshReuseDetected: 3,
		},
		dropped: 7,
	}

	exporter, err := NewExporterFromSource(provider.Meter("authkit-test"), source)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	values := collect(t, reader)
	if values["authkit_renew_success_total"] != 42 {
		t.Fatalf("renew success = %d, want 42", values["authkit_renew_success_total"])
	}
	if values["authkit_refresh_reuse_detected_total"] != 3 {
		t.Fatalf("reuse detected = %d, want 3", values["authkit_refresh_reuse_detected_total"])
	}
	if values[internaldefs.AuditDroppedName] != 7 {
		t.Fatalf("audit dropped = %d, want 7", values[internaldefs.AuditDroppedName])
	}
	if values["authkit_logout_total"] != 0 {
		t.Fatalf("untouched counter = %d, want 0", values["authkit_logout_total"])
	}

	// Collection pulls live values, not the state at registration.
	source.counters[authkit.MetricRenewSuccess] = 43
	values = collect(t, reader)
	if values["authkit_renew_success_total"] != 43 {
		t.Fatalf("second collection = %d, want 43", values["authkit_renew_success_total"])
	}

	if err := exporter.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	if _, err := NewExporterFromSource(nil, &stubSource{}); err != ErrNilMeter {
		t.Fatalf("nil meter: %v", err)
	}
	if _, err := NewExporter(provider.Meter("authkit-test"), nil); err != ErrNilSource {
		t.Fatalf("nil source: %v", err)
	}
}

func TestShutdownOnNilExporter(t *testing.T) {
	var e *Exporter
	if err := e.Shutdown(); err != nil {
		t.Fatalf("nil exporter shutdown: %v", err)
	}
}
