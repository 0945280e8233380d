// Package audit provides a tamper-evident audit trail with automatic risk
// and compliance classification for security-sensitive operations.
package audit

import (
	"time"
)

// RiskLevel classifies the severity of an audit event.
type RiskLevel string

// Risk levels in ascending order of severity.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskRank maps risk levels to a comparable ordering.
var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// maxRisk returns the more severe of two risk levels.
func maxRisk(a, b RiskLevel) RiskLevel {
	if riskRank[a] >= riskRank[b] {
		return a
	}
	return b
}

// ComplianceFlag marks an event as relevant to a regulatory regime.
type ComplianceFlag string

// Supported compliance regimes.
const (
	FlagGDPR     ComplianceFlag = "GDPR"
	FlagCCPA     ComplianceFlag = "CCPA"
	FlagSOX      ComplianceFlag = "SOX"
	FlagHIPAA    ComplianceFlag = "HIPAA"
	FlagPCIDSS   ComplianceFlag = "PCI_DSS"
	FlagISO27001 ComplianceFlag = "ISO27001"
)

// Event is a single immutable record in the audit trail.
// Hash and PreviousHash link the record into a tamper-evident chain:
// Hash is an HMAC over a canonical subset of fields plus PreviousHash,
// so any mutation of a stored event is detectable by recomputation,
// and any reordering or removal breaks the PreviousHash linkage.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Actor identifiers (optional).
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// What happened and to what.
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resourceId,omitempty"`

	// Request context.
	SourceIP   string `json:"sourceIP,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`

	// Structured payload, sanitized before storage.
	OldValues Object `json:"oldValues,omitempty"`
	NewValues Object `json:"newValues,omitempty"`
	Details   Object `json:"details,omitempty"`

	// Derived classification.
	RiskLevel       RiskLevel        `json:"riskLevel"`
	ComplianceFlags []ComplianceFlag `json:"complianceFlags,omitempty"`

	// Integrity chain.
	Hash         string `json:"hash,omitempty"`
	PreviousHash string `json:"previousHash,omitempty"`
}

// Entry is the caller-supplied description of an event. Action and Resource
// are the only required fields; everything else is inferred or defaulted.
// RiskLevel and ComplianceFlags are hints: classification may raise the risk
// and add flags, but never lowers a hinted risk or drops a hinted flag.
type Entry struct {
	ID         string
	Timestamp  time.Time
	UserID     string
	SessionID  string
	Action     string
	Resource   string
	ResourceID string
	SourceIP   string
	UserAgent  string
	Method     string
	Path       string
	StatusCode int
	OldValues  Object
	NewValues  Object
	Details    Object

	RiskLevel       RiskLevel
	ComplianceFlags []ComplianceFlag
}

// Query selects a subset of the audit trail. Zero values match everything.
type Query struct {
	From      time.Time
	To        time.Time
	UserID    string
	Action    string
	Resource  string
	RiskLevel RiskLevel
	Limit     int
}

// matches reports whether an event satisfies every non-zero query filter.
func (q Query) matches(e *Event) bool {
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.Resource != "" && e.Resource != q.Resource {
		return false
	}
	if q.RiskLevel != "" && e.RiskLevel != q.RiskLevel {
		return false
	}
	return true
}
