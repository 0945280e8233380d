package audit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/bastion/internal/middleware"
)

// Header names never recorded, regardless of the sensitive-field list.
var strippedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// highRiskPathPrefixes mark request paths that get a request_start record in
// addition to the completion record.
var highRiskPathPrefixes = []string{"/admin", "/auth"}

// Middleware wraps inbound requests with audit recording. Excluded paths are
// skipped entirely. High-risk operations (DELETE, PUT, or admin/auth paths)
// produce a request_start event carrying sanitized headers and query
// parameters; every recorded request produces a completion event with status
// code, duration, and response size. Recording failures are logged and never
// block the request.
func (l *Logger) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range l.cfg.ExcludedPaths {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()
			start := time.Now()
			base := Entry{
				UserID:    middleware.GetUserID(ctx),
				SessionID: middleware.GetRequestID(ctx),
				SourceIP:  extractIP(r),
				UserAgent: r.UserAgent(),
				Method:    r.Method,
				Path:      r.URL.Path,
			}

			if isHighRisk(r) {
				entry := base
				entry.Action = "request_start"
				entry.Resource = "http_request"
				entry.Details = Object{
					"headers": headerObject(r.Header),
					"query":   queryObject(r.URL.Query()),
				}
				if _, err := l.LogEvent(ctx, entry); err != nil {
					l.log.WarnContext(ctx, "failed to record request start", "error", err)
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := base
			entry.Action = "request_complete"
			entry.Resource = "http_request"
			entry.StatusCode = rec.status
			entry.Details = Object{
				"duration_ms":   time.Since(start).Milliseconds(),
				"response_size": rec.size,
			}
			if _, err := l.LogEvent(ctx, entry); err != nil {
				l.log.WarnContext(ctx, "failed to record request completion", "error", err)
			}
		})
	}
}

// isHighRisk reports whether a request warrants a request_start record.
func isHighRisk(r *http.Request) bool {
	if r.Method == http.MethodDelete || r.Method == http.MethodPut {
		return true
	}
	for _, p := range highRiskPathPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}

// headerObject converts request headers to a payload object, always
// stripping credentials.
func headerObject(h http.Header) Object {
	out := make(Object, len(h))
	for name, values := range h {
		if strippedHeaders[name] {
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func queryObject(values map[string][]string) Object {
	out := make(Object, len(values))
	for name, vals := range values {
		out[name] = strings.Join(vals, ", ")
	}
	return out
}

// statusRecorder captures the response status and size. Only the first
// WriteHeader call sets the status, matching net/http behavior.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.status = code
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.size += n
	return n, err
}

// extractIP extracts the client IP from a request, checking X-Forwarded-For,
// X-Real-IP, and RemoteAddr in that order. Ports are stripped.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			first = xff[:idx]
		}
		first = strings.TrimSpace(first)
		if first != "" {
			return stripPort(first)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripPort(xri)
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// Address may not carry a port.
		return addr
	}
	return host
}
