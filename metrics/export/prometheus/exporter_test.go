package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authkit "github.com/rentfold/authkit"
	"github.com/rentfold/authkit/metrics/export/internaldefs"
)

type stubSource struct {
	counters map[authkit.MetricID]uint64
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() authkit.MetricsSnapshot {
	return authkit.MetricsSnapshot{Counters: s.counters}
}

func (s *stubSource) AuditDropped() uint64 { return s.dropped }

func TestRenderExpositionFormat(t *testing.T) {
	e := NewExporterFromSource(&stubSource{
		counters: map[authkit.MetricID]uint64{
			authkit.MetricRenewSuccess: 12,
			authkit.MetricUnauthorized: 4,
		},
		dropped: 2,
	})

	out := e.Render()

	for _, want := range []string{
		"# HELP authkit_renew_success_total",
		"# TYPE authkit_renew_success_total counter",
		"authkit_renew_success_total 12\n",
		"authkit_unauthorized_total 4\n",
		"authkit_access_issued_total 0\n",
		internaldefs.AuditDroppedName + " 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered output missing %q:\n%s", want, out)
		}
	}

	// Every defined counter appears, even at zero.
	for _, def := range internaldefs.CounterDefs {
		if !strings.Contains(out, def.Name+" ") {
			t.Fatalf("counter %s missing from output", def.Name)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	e := NewExporterFromSource(&stubSource{
		counters: map[authkit.MetricID]uint64{authkit.MetricLogout: 1},
	})

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "authkit_logout_total 1\n") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}

func TestRenderOnNilExporter(t *testing.T) {
	var e *Exporter
	if e.Render() != "" {
		t.Fatal("nil exporter must render nothing")
	}
}
