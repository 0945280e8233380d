package ratelimit

import (
	"sync"
	"time"
)

// Escalation thresholds: violation counts at which an IP becomes suspicious
// and blocked respectively.
const (
	SuspiciousThreshold = 3
	BlockThreshold      = 10
)

// ThreatMetrics tracks rate limit violators per process. Suspicious status
// and violation counts are process-local best-effort signals; only blocked
// status is persisted to the shared store for cross-process enforcement.
// Rebuilt empty on restart.
type ThreatMetrics struct {
	mu            sync.Mutex
	suspicious    map[string]struct{}
	blocked       map[string]struct{}
	violations    map[string]int
	lastViolation map[string]time.Time
}

// NewThreatMetrics creates empty threat state.
func NewThreatMetrics() *ThreatMetrics {
	return &ThreatMetrics{
		suspicious:    make(map[string]struct{}),
		blocked:       make(map[string]struct{}),
		violations:    make(map[string]int),
		lastViolation: make(map[string]time.Time),
	}
}

// RecordViolation registers one violation for ip and applies escalation.
// It returns the updated count and whether this violation crossed the block
// threshold (so the caller persists the shared block marker exactly once).
func (t *ThreatMetrics) RecordViolation(ip string, now time.Time) (count int, newlyBlocked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.violations[ip]++
	t.lastViolation[ip] = now
	count = t.violations[ip]

	if count >= SuspiciousThreshold {
		t.suspicious[ip] = struct{}{}
	}
	if count >= BlockThreshold {
		if _, already := t.blocked[ip]; !already {
			t.blocked[ip] = struct{}{}
			newlyBlocked = true
		}
	}
	return count, newlyBlocked
}

// IsBlocked reports whether ip is in the in-process blocked set.
func (t *ThreatMetrics) IsBlocked(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.blocked[ip]
	return ok
}

// IsSuspicious reports whether ip is in the in-process suspicious set.
func (t *ThreatMetrics) IsSuspicious(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.suspicious[ip]
	return ok
}

// Block adds ip to the blocked set without touching violation history.
func (t *ThreatMetrics) Block(ip string) {
	t.mu.Lock()
	t.blocked[ip] = struct{}{}
	t.mu.Unlock()
}

// Forget removes ip from every set and clears its violation history.
func (t *ThreatMetrics) Forget(ip string) {
	t.mu.Lock()
	delete(t.blocked, ip)
	delete(t.suspicious, ip)
	delete(t.violations, ip)
	delete(t.lastViolation, ip)
	t.mu.Unlock()
}

// Unblock removes ip from the blocked set only, keeping violation history.
// Used by the sweep when a store-side marker expires.
func (t *ThreatMetrics) Unblock(ip string) {
	t.mu.Lock()
	delete(t.blocked, ip)
	t.mu.Unlock()
}

// BlockedIPs returns a snapshot of the blocked set.
func (t *ThreatMetrics) BlockedIPs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ips := make([]string, 0, len(t.blocked))
	for ip := range t.blocked {
		ips = append(ips, ip)
	}
	return ips
}

// Violations returns the current violation count for ip.
func (t *ThreatMetrics) Violations(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.violations[ip]
}

// ForgetIdle clears violation history and suspicious status for every IP
// whose last violation predates the cutoff. Blocked status is left to the
// store-marker reconciliation.
func (t *ThreatMetrics) ForgetIdle(cutoff time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, last := range t.lastViolation {
		if last.Before(cutoff) {
			delete(t.suspicious, ip)
			delete(t.violations, ip)
			delete(t.lastViolation, ip)
		}
	}
}
