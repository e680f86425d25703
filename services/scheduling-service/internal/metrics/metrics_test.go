package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/appointments/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Instrument(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/appointments/abc", nil))

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /api/v1/appointments/{id}", "404"))
	if got != 1 {
		t.Fatalf("expected one request recorded under the pattern, got %v", got)
	}
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveBooking("book", "conflict")
	m.ObserveCache("hit")
	m.ObserveOutbox("published", 3)
	m.ObserveSlot("available")

	if v := testutil.ToFloat64(m.outbox.WithLabelValues("published")); v != 3 {
		t.Fatalf("expected 3 published, got %v", v)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "clinicsched_booking_attempts_total") {
		t.Fatalf("metrics output missing booking counter")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBooking("book", "ok")
	m.ObserveCache("miss")
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
