package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arturkam25/intelplatform/internal/account"
)

func TestMiddleware(t *testing.T) {
	HTTPRequestsTotal.Reset()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrapped := Middleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestMiddlewareWithChiRouter(t *testing.T) {
	HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/test/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	req := httptest.NewRequest("GET", "/api/v1/test/123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	if rw.statusCode != http.StatusCreated {
		t.Errorf("Expected status code 201, got %d", rw.statusCode)
	}

	data := []byte("Hello, World!")
	n, err := rw.Write(data)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if rw.size != len(data) {
		t.Errorf("Expected size %d, got %d", len(data), rw.size)
	}
}

func TestHandler(t *testing.T) {
	// Touch one metric so the exposition is never empty.
	HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200").Inc()

	handler := Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("Expected text/plain content type, got %s", contentType)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "intelplatform_http_requests_total") {
		t.Errorf("Expected body to contain intelplatform_http_requests_total metric")
	}
}

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		HTTPResponseSize,
		DBConnectionsOpen,
		DBConnectionsInUse,
		DBConnectionsIdle,
		DBConnectionsMaxOpen,
		DBQueryDuration,
		LoginAttemptsTotal,
		LockoutsTotal,
		RegistrationsTotal,
		RecoveriesTotal,
		AuditEventsTotal,
		DatasetRowsImported,
		ArchiveUploadsTotal,
	}

	for _, m := range metrics {
		desc := make(chan *prometheus.Desc, 10)
		m.Describe(desc)
		close(desc)

		count := 0
		for range desc {
			count++
		}
		if count == 0 {
			t.Errorf("Metric has no descriptions")
		}
	}
}

func TestRecordAuditActionMapsCounters(t *testing.T) {
	LoginAttemptsTotal.Reset()
	AuditEventsTotal.Reset()

	RecordAuditAction(account.AuditLoginSucceeded)
	RecordAuditAction(account.AuditLoginFailed)
	RecordAuditAction(account.AuditLocked)

	handler := Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`intelplatform_auth_login_attempts_total{result="success"} 1`,
		`intelplatform_auth_login_attempts_total{result="failure"} 1`,
		`intelplatform_audit_events_total{action="account.locked"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
