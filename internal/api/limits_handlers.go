package api

import (
	"net/http"
	"time"

	"github.com/onnwee/bastion/internal/ratelimit"
)

// LimitsHandlers exposes rate-limit status and manual block administration.
type LimitsHandlers struct {
	limiter *ratelimit.Limiter
}

// NewLimitsHandlers creates handlers backed by the given limiter.
func NewLimitsHandlers(limiter *ratelimit.Limiter) *LimitsHandlers {
	return &LimitsHandlers{limiter: limiter}
}

// Status handles GET /api/limits and returns, for each rule applicable to
// this request, the caller's current window state. The read is non-mutating:
// asking never consumes quota.
func (h *LimitsHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	statuses, err := h.limiter.Status(ctx, r)
	if err != nil {
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "status check failed")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"rules": statuses})
}

// Block handles POST /api/limits/blocked/{ip}?duration=1h.
func (h *LimitsHandlers) Block(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := r.PathValue("ip")
	if ip == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "missing ip")
		return
	}
	var d time.Duration
	if v := r.URL.Query().Get("duration"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid duration")
			return
		}
		d = parsed
	}
	if err := h.limiter.BlockIP(ctx, ip, d); err != nil {
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "block failed")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]string{"blocked": ip})
}

// Unblock handles DELETE /api/limits/blocked/{ip}.
func (h *LimitsHandlers) Unblock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := r.PathValue("ip")
	if ip == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "missing ip")
		return
	}
	if err := h.limiter.UnblockIP(ctx, ip); err != nil {
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "unblock failed")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]string{"unblocked": ip})
}
