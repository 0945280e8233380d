package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config controls logger behavior.
type Config struct {
	// Enabled turns event recording on. When false, LogEvent is a no-op.
	Enabled bool

	// IntegrityProtection links events into an HMAC hash chain.
	IntegrityProtection bool

	// Secret keys the HMAC. Required when IntegrityProtection is on.
	Secret string

	// AlertOnCritical emits an alert for every critical-risk event.
	AlertOnCritical bool

	// AnonymizeIPs truncates source IPs before classification and hashing,
	// for deployments where raw client IPs must not be retained.
	AnonymizeIPs bool

	// ExcludedPaths are request paths never recorded (health checks, metrics).
	ExcludedPaths []string

	// ExcludedUsers are user IDs never recorded (synthetic monitors).
	ExcludedUsers []string

	// SensitiveFields overrides DefaultSensitiveFields when non-nil.
	SensitiveFields []string
}

// Alerter receives fire-and-forget notifications for critical events.
type Alerter interface {
	Alert(ctx context.Context, e *Event)
}

// LogAlerter is an Alerter that writes structured log records. It is the
// default alerting channel; production deployments swap in a pager.
type LogAlerter struct {
	Logger *slog.Logger
}

// Alert logs the critical event at error level.
func (a *LogAlerter) Alert(ctx context.Context, e *Event) {
	a.Logger.ErrorContext(ctx, "critical audit event",
		"event_id", e.ID,
		"action", e.Action,
		"resource", e.Resource,
		"user_id", e.UserID,
		"source_ip", e.SourceIP,
	)
}

// Logger produces an append-only, tamper-evident audit trail with automatic
// risk and compliance classification and sensitive-data redaction.
//
// The hash chain state (the last appended hash) is process-local and only an
// optimization: every persisted event carries its own PreviousHash, so
// integrity verification replays purely from the store.
type Logger struct {
	cfg     Config
	store   Store
	alerter Alerter
	log     *slog.Logger
	secret  []byte

	mu       sync.Mutex
	lastHash string
}

// Option configures a Logger.
type Option func(*Logger)

// WithAlerter sets the alerting channel for critical events.
func WithAlerter(a Alerter) Option {
	return func(l *Logger) { l.alerter = a }
}

// WithSlog sets the diagnostic logger.
func WithSlog(log *slog.Logger) Option {
	return func(l *Logger) { l.log = log }
}

// NewLogger creates an audit logger writing to the given store.
func NewLogger(cfg Config, store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store cannot be nil")
	}
	if cfg.IntegrityProtection && cfg.Secret == "" {
		return nil, fmt.Errorf("integrity protection requires a secret")
	}
	if cfg.SensitiveFields == nil {
		cfg.SensitiveFields = DefaultSensitiveFields
	}
	l := &Logger{
		cfg:    cfg,
		store:  store,
		secret: []byte(cfg.Secret),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.alerter == nil {
		l.alerter = &LogAlerter{Logger: l.log}
	}
	return l, nil
}

// LogEvent records one audit event and returns its ID.
//
// Excluded events (logging disabled, excluded path, excluded user) return an
// empty ID with no side effects. Persistence failures are returned to the
// caller but must not block the primary request path; callers on the request
// path log and continue.
func (l *Logger) LogEvent(ctx context.Context, entry Entry) (string, error) {
	if !l.cfg.Enabled || l.excluded(entry) {
		return "", nil
	}
	if entry.Action == "" || entry.Resource == "" {
		return "", fmt.Errorf("audit entry requires action and resource")
	}

	e := l.build(entry)

	if l.cfg.IntegrityProtection {
		// Hold the lock across linking and appending so the persisted
		// order always matches the chain order.
		l.mu.Lock()
		e.PreviousHash = l.lastHash
		e.Hash = eventHash(l.secret, e)
		if err := l.store.Append(ctx, e); err != nil {
			l.mu.Unlock()
			// A dropped integrity-protected event breaks chain linkage
			// for verification, so this failure is logged loudly.
			l.log.ErrorContext(ctx, "integrity-protected audit event lost",
				"event_id", e.ID, "action", e.Action, "error", err)
			return "", fmt.Errorf("failed to persist audit event: %w", err)
		}
		l.lastHash = e.Hash
		l.mu.Unlock()
	} else {
		if err := l.store.Append(ctx, e); err != nil {
			l.log.ErrorContext(ctx, "failed to persist audit event",
				"event_id", e.ID, "action", e.Action, "error", err)
			return "", fmt.Errorf("failed to persist audit event: %w", err)
		}
	}

	if l.cfg.AlertOnCritical && e.RiskLevel == RiskCritical {
		l.alerter.Alert(ctx, e)
	}
	return e.ID, nil
}

// build assembles a classified, sanitized event from an entry.
func (l *Logger) build(entry Entry) *Event {
	e := &Event{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp,
		UserID:     entry.UserID,
		SessionID:  entry.SessionID,
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		SourceIP:   entry.SourceIP,
		UserAgent:  entry.UserAgent,
		Method:     entry.Method,
		Path:       entry.Path,
		StatusCode: entry.StatusCode,
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	// The hash covers the timestamp, and Postgres TIMESTAMPTZ keeps only
	// microseconds, so events are stamped at the precision that survives a
	// storage round trip.
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	if l.cfg.AnonymizeIPs {
		e.SourceIP = AnonymizeIP(e.SourceIP)
	}

	e.OldValues = redactObject(entry.OldValues, l.cfg.SensitiveFields)
	e.NewValues = redactObject(entry.NewValues, l.cfg.SensitiveFields)
	e.Details = redactObject(entry.Details, l.cfg.SensitiveFields)

	derived := ClassifyRisk(e.Action, e.Resource, e.StatusCode)
	e.RiskLevel = derived
	if entry.RiskLevel != "" {
		e.RiskLevel = maxRisk(entry.RiskLevel, derived)
	}
	e.ComplianceFlags = mergeFlags(entry.ComplianceFlags,
		DeriveComplianceFlags(e.Action, e.Resource, e.RiskLevel))
	return e
}

// redactObject redacts a payload object, tolerating nil.
func redactObject(o Object, sensitive []string) Object {
	if o == nil {
		return nil
	}
	redacted, ok := Redact(o, sensitive).(Object)
	if !ok {
		// Redact preserves the input shape; this branch is unreachable for
		// a non-nil Object but keeps the conversion safe.
		return o
	}
	return redacted
}

// excluded reports whether an entry is filtered out by configuration.
func (l *Logger) excluded(entry Entry) bool {
	for _, p := range l.cfg.ExcludedPaths {
		if entry.Path != "" && strings.HasPrefix(entry.Path, p) {
			return true
		}
	}
	for _, u := range l.cfg.ExcludedUsers {
		if entry.UserID != "" && entry.UserID == u {
			return true
		}
	}
	return false
}

// LogAuth records an authentication event (login, logout, token refresh).
// Failures classify at least medium.
func (l *Logger) LogAuth(ctx context.Context, action, userID, sourceIP, userAgent string, success bool, details Object) (string, error) {
	hint := RiskLow
	status := 200
	if !success {
		hint = RiskMedium
		status = 401
	}
	return l.LogEvent(ctx, Entry{
		Action:     "auth_" + action,
		Resource:   "authentication",
		UserID:     userID,
		SourceIP:   sourceIP,
		UserAgent:  userAgent,
		StatusCode: status,
		Details:    details,
		RiskLevel:  hint,
	})
}

// LogDataAccess records access to user data. Delete operations classify at
// least high.
func (l *Logger) LogDataAccess(ctx context.Context, action, userID, resourceID string, details Object) (string, error) {
	hint := RiskLow
	if strings.Contains(strings.ToLower(action), "delete") {
		hint = RiskHigh
	}
	return l.LogEvent(ctx, Entry{
		Action:     "data_" + action,
		Resource:   ResourceUserData,
		UserID:     userID,
		ResourceID: resourceID,
		Details:    details,
		RiskLevel:  hint,
	})
}

// LogAdmin records an administrative action.
func (l *Logger) LogAdmin(ctx context.Context, action, userID, resourceID string, oldValues, newValues Object) (string, error) {
	return l.LogEvent(ctx, Entry{
		Action:          "admin_" + action,
		Resource:        "admin_config",
		UserID:          userID,
		ResourceID:      resourceID,
		OldValues:       oldValues,
		NewValues:       newValues,
		RiskLevel:       RiskMedium,
		ComplianceFlags: []ComplianceFlag{FlagSOX},
	})
}

// LogSecurity records a security incident. Always critical.
func (l *Logger) LogSecurity(ctx context.Context, action, sourceIP string, details Object) (string, error) {
	return l.LogEvent(ctx, Entry{
		Action:    "security_" + action,
		Resource:  ResourceSecuritySystem,
		SourceIP:  sourceIP,
		Details:   details,
		RiskLevel: RiskCritical,
	})
}

// LogPrivacy records a privacy-relevant operation (export, consent change,
// erasure request). Flags GDPR and CCPA, classifies at least high.
func (l *Logger) LogPrivacy(ctx context.Context, action, userID string, details Object) (string, error) {
	return l.LogEvent(ctx, Entry{
		Action:          "privacy_" + action,
		Resource:        ResourceUserData,
		UserID:          userID,
		Details:         details,
		RiskLevel:       RiskHigh,
		ComplianceFlags: []ComplianceFlag{FlagGDPR, FlagCCPA},
	})
}

// IntegrityReport is the result of a chain verification pass.
type IntegrityReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// VerifyIntegrity recomputes every stored event's hash and chain link from
// persisted records alone. With integrity protection disabled it reports
// valid with a warning. Inconsistencies are reported as readable strings,
// never raised.
func (l *Logger) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	if !l.cfg.IntegrityProtection {
		return IntegrityReport{
			Valid:    true,
			Warnings: []string{"integrity protection is disabled; chain not verified"},
		}, nil
	}
	events, err := l.store.All(ctx)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("failed to load audit trail: %w", err)
	}
	errs := verifyChain(l.secret, events)
	return IntegrityReport{Valid: len(errs) == 0, Errors: errs}, nil
}
