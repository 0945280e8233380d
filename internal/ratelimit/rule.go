// Package ratelimit enforces prioritized sliding-window rate limits with
// threat escalation for repeat violators.
package ratelimit

import (
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
)

// KeyFunc resolves the identity a rule counts against.
type KeyFunc func(r *http.Request) string

// RuleConfig holds the limit parameters for one rule.
type RuleConfig struct {
	// Window is the sliding time window.
	Window time.Duration
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
	// KeyFunc overrides the default client-IP identity (optional).
	KeyFunc KeyFunc
	// Message is returned to rejected callers (optional).
	Message string
	// OnLimitReached is invoked when this rule rejects a request (optional).
	OnLimitReached func(r *http.Request, key string)
}

// Rule is one named rate limit. Rules are immutable once registered; the
// limiter evaluates every applicable rule in ascending priority order, with
// equal priorities preserving registration order.
type Rule struct {
	// Name uniquely identifies the rule and prefixes its window keys.
	Name string
	// Path restricts the rule to requests whose path has this prefix
	// (empty matches all paths).
	Path string
	// Methods restricts the rule to the listed HTTP methods (empty matches
	// all methods).
	Methods []string
	// Condition is an arbitrary extra predicate (optional).
	Condition func(r *http.Request) bool
	// Config holds the limit parameters.
	Config RuleConfig
	// Priority orders evaluation; lower values are checked first.
	Priority int
}

// Applies reports whether the rule's matchers accept the request.
func (ru *Rule) Applies(r *http.Request) bool {
	if ru.Path != "" && !strings.HasPrefix(r.URL.Path, ru.Path) {
		return false
	}
	if len(ru.Methods) > 0 {
		ok := false
		for _, m := range ru.Methods {
			if strings.EqualFold(m, r.Method) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if ru.Condition != nil && !ru.Condition(r) {
		return false
	}
	return true
}

// sortRules orders rules by ascending priority, preserving registration
// order for equal priorities.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}

// DefaultRules returns the standard rule catalog. Credential endpoints are
// tightest and checked first; the global fallback catches everything else.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "auth-login",
			Path:     "/api/auth/login",
			Methods:  []string{http.MethodPost},
			Priority: 50,
			Config: RuleConfig{
				Window:      15 * time.Minute,
				MaxRequests: 5,
				Message:     "too many login attempts, please try again later",
			},
		},
		{
			Name:     "auth-password-reset",
			Path:     "/api/auth/password-reset",
			Methods:  []string{http.MethodPost},
			Priority: 50,
			Config: RuleConfig{
				Window:      time.Hour,
				MaxRequests: 3,
				Message:     "too many password reset requests, please try again later",
			},
		},
		{
			Name:     "auth-general",
			Path:     "/api/auth",
			Priority: 100,
			Config: RuleConfig{
				Window:      15 * time.Minute,
				MaxRequests: 10,
			},
		},
		{
			Name:     "analysis",
			Path:     "/api/analysis",
			Priority: 200,
			Config: RuleConfig{
				Window:      time.Hour,
				MaxRequests: 50,
			},
		},
		{
			Name:     "upload",
			Path:     "/api/upload",
			Priority: 200,
			Config: RuleConfig{
				Window:      time.Hour,
				MaxRequests: 20,
			},
		},
		{
			Name:     "api-general",
			Path:     "/api",
			Priority: 900,
			Config: RuleConfig{
				Window:      time.Minute,
				MaxRequests: 100,
			},
		},
		{
			Name:     "global",
			Priority: 1000,
			Config: RuleConfig{
				Window:      15 * time.Minute,
				MaxRequests: 1000,
			},
		},
	}
}

// ClientIP extracts the client IP from a request, checking X-Forwarded-For,
// X-Real-IP, and RemoteAddr in that order. Ports are stripped.
func ClientIP(r *http.Request) string {
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
