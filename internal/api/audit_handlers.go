package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/bastion/internal/audit"
)

// AuditHandlers exposes the audit trail's query, report, verification, and
// export operations.
type AuditHandlers struct {
	logger *audit.Logger
}

// NewAuditHandlers creates handlers backed by the given audit logger.
func NewAuditHandlers(logger *audit.Logger) *AuditHandlers {
	return &AuditHandlers{logger: logger}
}

// contentTypes per export format.
var exportContentTypes = map[audit.Format]string{
	audit.FormatJSON: "application/json; charset=utf-8",
	audit.FormatCSV:  "text/csv; charset=utf-8",
	audit.FormatXML:  "application/xml; charset=utf-8",
}

// Export handles GET /api/audit/export?format=json|csv|xml plus optional
// query filters (from, to, user, action, resource, limit).
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format := audit.Format(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = audit.FormatJSON
	}

	q, err := parseQuery(r)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	data, err := h.logger.Export(ctx, format, q)
	if err != nil {
		if errors.Is(err, audit.ErrUnsupportedFormat) {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedFormat, err.Error())
			return
		}
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "export failed")
		return
	}

	w.Header().Set("Content-Type", exportContentTypes[format])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Report handles GET /api/audit/report?from=...&to=... and returns the
// aggregated activity report with anomalies.
func (h *AuditHandlers) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to, err := parseRange(r)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	rep, err := h.logger.GenerateReport(ctx, from, to)
	if err != nil {
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "report generation failed")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, rep)
}

// Verify handles GET /api/audit/verify and returns the chain verification
// result.
func (h *AuditHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.logger.VerifyIntegrity(ctx)
	if err != nil {
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "integrity verification failed")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{
		"valid":    report.Valid,
		"errors":   report.Errors,
		"warnings": report.Warnings,
	})
}

func parseQuery(r *http.Request) (audit.Query, error) {
	q := audit.Query{
		UserID:   r.URL.Query().Get("user"),
		Action:   r.URL.Query().Get("action"),
		Resource: r.URL.Query().Get("resource"),
	}
	var err error
	if q.From, q.To, err = parseRange(r); err != nil {
		return audit.Query{}, err
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return audit.Query{}, errInvalidParam("limit")
		}
		q.Limit = limit
	}
	return q, nil
}

func parseRange(r *http.Request) (from, to time.Time, err error) {
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, errInvalidParam("from")
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, errInvalidParam("to")
		}
	}
	return from, to, nil
}

type paramError string

func errInvalidParam(name string) error { return paramError(name) }

func (e paramError) Error() string { return "invalid query parameter: " + string(e) }
