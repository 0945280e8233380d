package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func middlewareLogger(t *testing.T, cfg Config) (*Logger, *MemoryStore) {
	t.Helper()
	return newTestLogger(t, cfg)
}

func eventsByAction(t *testing.T, store *MemoryStore, action string) []*Event {
	t.Helper()
	events, err := store.Query(context.Background(), Query{Action: action})
	if err != nil {
		t.Fatal(err)
	}
	return events
}

func TestMiddlewareRecordsCompletion(t *testing.T) {
	logger, store := middlewareLogger(t, enabledConfig())

	handler := logger.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
	req.RemoteAddr = "10.1.2.3:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	complete := eventsByAction(t, store, "request_complete")
	if len(complete) != 1 {
		t.Fatalf("recorded %d completion events, want 1", len(complete))
	}
	e := complete[0]
	if e.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", e.StatusCode)
	}
	if e.SourceIP != "10.1.2.3" {
		t.Errorf("SourceIP = %s, want 10.1.2.3", e.SourceIP)
	}
	if e.Method != http.MethodPost || e.Path != "/api/things" {
		t.Errorf("Method/Path = %s %s", e.Method, e.Path)
	}
	if size, ok := e.Details["response_size"].(int); !ok || size != len("created") {
		t.Errorf("response_size = %v", e.Details["response_size"])
	}
	if _, ok := e.Details["duration_ms"]; !ok {
		t.Error("duration_ms missing from details")
	}
	// POST to a normal path is not high risk.
	if starts := eventsByAction(t, store, "request_start"); len(starts) != 0 {
		t.Errorf("unexpected request_start events: %d", len(starts))
	}
}

func TestMiddlewareHighRiskRequests(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		wantStart bool
	}{
		{"delete method", http.MethodDelete, "/api/things/1", true},
		{"put method", http.MethodPut, "/api/things/1", true},
		{"admin path", http.MethodGet, "/admin/users", true},
		{"auth path", http.MethodPost, "/auth/login", true},
		{"plain get", http.MethodGet, "/api/things", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, store := middlewareLogger(t, enabledConfig())
			handler := logger.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			starts := eventsByAction(t, store, "request_start")
			if (len(starts) == 1) != tt.wantStart {
				t.Errorf("request_start recorded = %d, want %v", len(starts), tt.wantStart)
			}
		})
	}
}

func TestMiddlewareStripsCredentialHeaders(t *testing.T) {
	logger, store := middlewareLogger(t, enabledConfig())
	handler := logger.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodDelete, "/api/things/1?next=%2Fhome&token=abc", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("User-Agent", "curl/8.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	starts := eventsByAction(t, store, "request_start")
	if len(starts) != 1 {
		t.Fatalf("recorded %d start events, want 1", len(starts))
	}
	headers, ok := starts[0].Details["headers"].(Object)
	if !ok {
		t.Fatalf("headers detail missing: %v", starts[0].Details)
	}
	if _, present := headers["Authorization"]; present {
		t.Error("Authorization header recorded")
	}
	if _, present := headers["Cookie"]; present {
		t.Error("Cookie header recorded")
	}
	if headers["User-Agent"] != "curl/8.0" {
		t.Errorf("User-Agent = %v", headers["User-Agent"])
	}
	query, ok := starts[0].Details["query"].(Object)
	if !ok {
		t.Fatalf("query detail missing: %v", starts[0].Details)
	}
	// Sensitive query parameter names fall under payload redaction.
	if query["token"] != RedactionMarker {
		t.Errorf("token query parameter = %v, want redacted", query["token"])
	}
	if query["next"] != "/home" {
		t.Errorf("next query parameter = %v", query["next"])
	}
}

func TestMiddlewareSkipsExcludedPaths(t *testing.T) {
	cfg := enabledConfig()
	cfg.ExcludedPaths = []string{"/health"}
	logger, store := middlewareLogger(t, cfg)
	handler := logger.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if store.Len() != 0 {
		t.Errorf("excluded paths recorded %d events", store.Len())
	}
}

func TestMiddlewareNeverBlocksRequest(t *testing.T) {
	logger, err := NewLogger(enabledConfig(), failingStore{})
	if err != nil {
		t.Fatal(err)
	}
	handler := logger.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/things/1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("request blocked by audit failure: status %d", rec.Code)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{"remote addr with port", "192.0.2.10:1234", "", "", "192.0.2.10"},
		{"forwarded for wins", "192.0.2.10:1234", "203.0.113.5", "", "203.0.113.5"},
		{"forwarded for first hop", "192.0.2.10:1234", "203.0.113.5, 198.51.100.2", "", "203.0.113.5"},
		{"real ip fallback", "192.0.2.10:1234", "", "203.0.113.9", "203.0.113.9"},
		{"ipv6 remote addr", "[2001:db8::1]:443", "", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := extractIP(req); got != tt.want {
				t.Errorf("extractIP() = %s, want %s", got, tt.want)
			}
		})
	}
}
