package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/audit/export", "/api/audit/export"},
		{"/api/limits", "/api/limits"},
		{"/api/audit/events/abc-123", "/api/audit/events/{id}"},
		{"/api/limits/blocked/203.0.113.5", "/api/limits/blocked/{ip}"},
		{"/api/unknown/deep/path", "/api/other"},
		{"/admin/users", "/admin/other"},
		{"/favicon.ico", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handler := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/limits", nil))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
		if f.GetName() == MetricHTTPRequestsTotal {
			metric := f.GetMetric()
			if len(metric) != 1 {
				t.Fatalf("requests_total has %d series", len(metric))
			}
			labels := map[string]string{}
			for _, l := range metric[0].GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["method"] != "GET" || labels["path"] != "/api/limits" || labels["status"] != "418" {
				t.Errorf("labels = %v", labels)
			}
		}
	}
	for _, name := range []string{MetricHTTPRequestDuration, MetricHTTPRequestsTotal, MetricHTTPResponseSizeBytes} {
		if !byName[name] {
			t.Errorf("metric %s not exported", name)
		}
	}
}

func TestResponseWriterCapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("ab"))
	_, _ = rw.Write([]byte("cd"))

	if rw.statusCode != http.StatusAccepted {
		t.Errorf("statusCode = %d, want first write wins", rw.statusCode)
	}
	if rw.size != 4 {
		t.Errorf("size = %d, want 4", rw.size)
	}
}

func TestResponseWriterDefaultsTo200(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	_, _ = rw.Write([]byte("implicit"))
	if rw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rw.statusCode)
	}
}
