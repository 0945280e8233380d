package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Defaults for limiter options.
const (
	DefaultBlockTTL      = time.Hour
	DefaultSweepInterval = 5 * time.Minute
	violationIdleTTL     = time.Hour
)

// Options configures a Limiter.
type Options struct {
	// Store is the shared window store. Required.
	Store WindowStore
	// Rules is the rule catalog; DefaultRules() when nil.
	Rules []Rule
	// Logger receives diagnostics; slog.Default() when nil.
	Logger *slog.Logger
	// Metrics receives counters (optional).
	Metrics *Metrics
	// LegacyHeaders additionally sets X-RateLimit-* headers.
	LegacyHeaders bool
	// BlockTTL is the shared-store block marker lifetime for escalated IPs.
	BlockTTL time.Duration
	// SweepInterval is the period of the background cleanup; 0 disables it.
	// Use DefaultSweepInterval for the standard 5-minute sweep.
	SweepInterval time.Duration
}

// Limiter enforces every applicable rule per request against a sliding
// window and escalates repeat violators to blocked status. State that must
// hold across processes (window counters, block markers) lives in the
// WindowStore; everything else is owned by the instance.
type Limiter struct {
	store   WindowStore
	threats *ThreatMetrics
	log     *slog.Logger
	metrics *Metrics

	legacyHeaders bool
	blockTTL      time.Duration

	mu    sync.RWMutex
	rules []Rule

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a Limiter and, unless disabled, starts its background sweep.
// Callers own the returned limiter and must Close it.
func New(opts Options) *Limiter {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	rules = append([]Rule(nil), rules...)
	sortRules(rules)

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	blockTTL := opts.BlockTTL
	if blockTTL <= 0 {
		blockTTL = DefaultBlockTTL
	}

	l := &Limiter{
		store:         opts.Store,
		threats:       NewThreatMetrics(),
		log:           log,
		metrics:       opts.Metrics,
		legacyHeaders: opts.LegacyHeaders,
		blockTTL:      blockTTL,
		rules:         rules,
	}

	if opts.SweepInterval > 0 {
		l.sweepStop = make(chan struct{})
		l.sweepDone = make(chan struct{})
		go l.sweepLoop(opts.SweepInterval)
	}
	return l
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	if l.sweepStop != nil {
		close(l.sweepStop)
		<-l.sweepDone
		l.sweepStop = nil
	}
}

// AddRule registers a rule, keeping priority order.
func (l *Limiter) AddRule(ru Rule) {
	l.mu.Lock()
	l.rules = append(l.rules, ru)
	sortRules(l.rules)
	l.mu.Unlock()
}

// RemoveRule unregisters the named rule. Removing an unknown name is a
// no-op.
func (l *Limiter) RemoveRule(name string) {
	l.mu.Lock()
	kept := l.rules[:0]
	for _, ru := range l.rules {
		if ru.Name != name {
			kept = append(kept, ru)
		}
	}
	l.rules = kept
	l.mu.Unlock()
}

// applicableRules snapshots the rules matching a request, in priority order.
func (l *Limiter) applicableRules(r *http.Request) []Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Rule
	for _, ru := range l.rules {
		if ru.Applies(r) {
			out = append(out, ru)
		}
	}
	return out
}

// Middleware returns the per-request enforcement hook.
//
// Order of operations: blocked-IP check first (rejected requests never reach
// rule evaluation), then every applicable rule in priority order. Each rule
// counts independently against its own window key. Store failures fail open:
// a rule that cannot be checked admits the request rather than turning an
// unreachable store into a total outage.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := ClientIP(r)

			if l.isBlocked(ctx, ip) {
				l.metrics.incRejected("blocked")
				l.log.WarnContext(ctx, "request from blocked ip rejected", "ip", ip)
				l.reject(w, &BlockedError{IP: ip})
				return
			}

			for _, ru := range l.applicableRules(r) {
				if err := l.applyRule(ctx, w, r, ru, ip); err != nil {
					l.reject(w, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// applyRule evaluates one rule. A nil return admits the request; a
// *LimitExceededError return means the rule rejected it. Rejection headers
// (window state, Retry-After) are already written when the error returns.
func (l *Limiter) applyRule(ctx context.Context, w http.ResponseWriter, r *http.Request, ru Rule, ip string) error {
	l.metrics.incCheck(ru.Name)

	identity := ip
	if ru.Config.KeyFunc != nil {
		identity = ru.Config.KeyFunc(r)
	}
	key := ru.Name + ":" + identity

	count, err := l.store.Hit(ctx, key, ru.Config.Window)
	if err != nil {
		l.metrics.incStoreError()
		l.log.ErrorContext(ctx, "window store error, failing open",
			"rule", ru.Name, "key", key, "error", err)
		return nil
	}

	reset := time.Now().Add(ru.Config.Window)
	l.setHeaders(w, ru.Config.MaxRequests, count, reset)

	if count <= ru.Config.MaxRequests {
		return nil
	}

	l.recordViolation(ctx, r, ip, ru)
	w.Header().Set("Retry-After", retryAfterSeconds(ru.Config.Window))
	if ru.Config.OnLimitReached != nil {
		ru.Config.OnLimitReached(r, key)
	}

	msg := ru.Config.Message
	if msg == "" {
		msg = DefaultMessage
	}
	l.metrics.incRejected(ru.Name)
	l.log.WarnContext(ctx, "rate limit exceeded",
		"rule", ru.Name, "key", key, "count", count, "limit", ru.Config.MaxRequests)
	return &LimitExceededError{Rule: ru.Name, Message: msg}
}

// reject translates a typed rejection error into its HTTP response.
func (l *Limiter) reject(w http.ResponseWriter, err error) {
	var (
		blocked  *BlockedError
		exceeded *LimitExceededError
	)
	switch {
	case errors.As(err, &blocked):
		writeReject(w, http.StatusForbidden, "ip_blocked",
			"access temporarily blocked due to repeated violations")
	case errors.As(err, &exceeded):
		writeReject(w, http.StatusTooManyRequests, "rate_limited", exceeded.Message)
	default:
		writeReject(w, http.StatusTooManyRequests, "rate_limited", DefaultMessage)
	}
}

// recordViolation updates threat state for ip and persists the shared block
// marker the moment the block threshold is crossed.
func (l *Limiter) recordViolation(ctx context.Context, r *http.Request, ip string, ru Rule) {
	l.metrics.incViolation()
	count, newlyBlocked := l.threats.RecordViolation(ip, time.Now())
	if count == SuspiciousThreshold {
		l.log.WarnContext(ctx, "ip marked suspicious", "ip", ip, "violations", count)
	}
	if newlyBlocked {
		l.log.WarnContext(ctx, "ip blocked after repeated violations",
			"ip", ip, "violations", count, "rule", ru.Name)
		if err := l.store.SetBlock(ctx, ip, l.blockTTL); err != nil {
			l.metrics.incStoreError()
			l.log.ErrorContext(ctx, "failed to persist block marker", "ip", ip, "error", err)
		}
	}
}

// isBlocked checks the in-process set first, then the shared store so blocks
// issued by other processes are honored. Store errors fail open.
func (l *Limiter) isBlocked(ctx context.Context, ip string) bool {
	if l.threats.IsBlocked(ip) {
		return true
	}
	blocked, err := l.store.IsBlocked(ctx, ip)
	if err != nil {
		l.metrics.incStoreError()
		l.log.ErrorContext(ctx, "block marker check failed, failing open", "ip", ip, "error", err)
		return false
	}
	if blocked {
		// Mirror the shared marker locally to skip the store round trip
		// next time; the sweep clears it when the marker expires.
		l.threats.Block(ip)
	}
	return blocked
}

// BlockIP manually blocks an IP for the given duration (DefaultBlockTTL when
// zero), both in-process and via the shared store marker.
func (l *Limiter) BlockIP(ctx context.Context, ip string, d time.Duration) error {
	if d <= 0 {
		d = l.blockTTL
	}
	l.threats.Block(ip)
	if err := l.store.SetBlock(ctx, ip, d); err != nil {
		return err
	}
	l.log.InfoContext(ctx, "ip manually blocked", "ip", ip, "duration", d)
	return nil
}

// UnblockIP removes an IP from every in-process set, resets its violation
// history, and deletes the shared-store marker.
func (l *Limiter) UnblockIP(ctx context.Context, ip string) error {
	l.threats.Forget(ip)
	if err := l.store.DeleteBlock(ctx, ip); err != nil {
		return err
	}
	l.log.InfoContext(ctx, "ip unblocked", "ip", ip)
	return nil
}

// RuleStatus is a read-only projection of one rule's current window.
type RuleStatus struct {
	Rule      string    `json:"rule"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// Status returns the current {limit, remaining, reset} for every rule
// applicable to the request without recording a request: it reads through
// the store's non-mutating peek path, so calling it never consumes quota.
func (l *Limiter) Status(ctx context.Context, r *http.Request) ([]RuleStatus, error) {
	ip := ClientIP(r)
	var statuses []RuleStatus
	for _, ru := range l.applicableRules(r) {
		identity := ip
		if ru.Config.KeyFunc != nil {
			identity = ru.Config.KeyFunc(r)
		}
		count, err := l.store.Peek(ctx, ru.Name+":"+identity, ru.Config.Window)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, RuleStatus{
			Rule:      ru.Name,
			Limit:     ru.Config.MaxRequests,
			Remaining: remaining(ru.Config.MaxRequests, count),
			Reset:     time.Now().Add(ru.Config.Window),
		})
	}
	return statuses, nil
}

// sweepLoop reconciles threat state every interval until Close.
func (l *Limiter) sweepLoop(interval time.Duration) {
	defer close(l.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(context.Background())
		case <-l.sweepStop:
			return
		}
	}
}

// sweep evicts in-process blocked IPs whose store-side marker has expired
// and forgets violation history idle for more than an hour. It reads a
// snapshot and mutates incrementally so request handling never waits on it.
func (l *Limiter) sweep(ctx context.Context) {
	for _, ip := range l.threats.BlockedIPs() {
		blocked, err := l.store.IsBlocked(ctx, ip)
		if err != nil {
			l.metrics.incStoreError()
			l.log.ErrorContext(ctx, "sweep block check failed", "ip", ip, "error", err)
			continue
		}
		if !blocked {
			l.threats.Unblock(ip)
			l.log.InfoContext(ctx, "block expired", "ip", ip)
		}
	}
	l.threats.ForgetIdle(time.Now().Add(-violationIdleTTL))
}

// setHeaders exposes the rule's window state on the response. When several
// rules apply, the most recently evaluated one wins; on rejection that is
// the rule that rejected.
func (l *Limiter) setHeaders(w http.ResponseWriter, limit, count int, reset time.Time) {
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(remaining(limit, count)))
	h.Set("RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	if l.legacyHeaders {
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining(limit, count)))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	}
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// retryAfterSeconds renders a window as whole seconds, rounded up, min 1.
func retryAfterSeconds(window time.Duration) string {
	secs := int(math.Ceil(window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// rejectBody is the JSON error envelope written on rejection.
type rejectBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeReject(w http.ResponseWriter, status int, code, message string) {
	var body rejectBody
	body.Error.Code = code
	body.Error.Message = message
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
