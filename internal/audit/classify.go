package audit

import "strings"

// Score contributions for risk classification. The score is additive over
// all matching signals except the status-code pair, where a 5xx supersedes
// the generic 4xx contribution.
const (
	scoreDelete         = 3
	scoreAdmin          = 2
	scoreSecurity       = 4
	scoreAuth           = 1
	scoreClientError    = 2
	scoreServerError    = 3
	scoreUserData       = 2
	scoreSecuritySystem = 3
)

// Resources with elevated baseline sensitivity.
const (
	ResourceUserData       = "user_data"
	ResourceSecuritySystem = "security_system"
)

// riskScore computes the additive risk score for an event.
func riskScore(action, resource string, statusCode int) int {
	score := 0
	a := strings.ToLower(action)
	if strings.Contains(a, "delete") {
		score += scoreDelete
	}
	if strings.Contains(a, "admin") {
		score += scoreAdmin
	}
	if strings.Contains(a, "security") {
		score += scoreSecurity
	}
	if strings.Contains(a, "auth") {
		score += scoreAuth
	}
	switch {
	case statusCode >= 500:
		score += scoreServerError
	case statusCode >= 400:
		score += scoreClientError
	}
	switch resource {
	case ResourceUserData:
		score += scoreUserData
	case ResourceSecuritySystem:
		score += scoreSecuritySystem
	}
	return score
}

// ClassifyRisk maps an event's action, resource, and status code to a risk
// level. It is a pure function of its inputs.
func ClassifyRisk(action, resource string, statusCode int) RiskLevel {
	switch score := riskScore(action, resource, statusCode); {
	case score >= 6:
		return RiskCritical
	case score >= 4:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DeriveComplianceFlags determines which regulatory regimes an event is
// relevant to, given its classified risk level:
//
//   - GDPR and CCPA for privacy-related actions (privacy settings, data
//     export, data deletion) and any access to user data
//   - SOX for administrative or configuration changes, and anything critical
//   - ISO 27001 for security and authentication activity, and anything
//     classified high
func DeriveComplianceFlags(action, resource string, risk RiskLevel) []ComplianceFlag {
	a := strings.ToLower(action)
	var flags []ComplianceFlag

	privacyRelated := strings.Contains(a, "privacy") ||
		strings.Contains(a, "data_export") ||
		strings.Contains(a, "data_deletion") ||
		resource == ResourceUserData
	if privacyRelated {
		flags = append(flags, FlagGDPR, FlagCCPA)
	}

	if strings.Contains(a, "admin") || strings.Contains(a, "config") || risk == RiskCritical {
		flags = append(flags, FlagSOX)
	}

	if strings.Contains(a, "security") || strings.Contains(a, "auth") || risk == RiskHigh {
		flags = append(flags, FlagISO27001)
	}

	return flags
}

// mergeFlags unions hinted and derived flags, preserving first-seen order.
func mergeFlags(hinted, derived []ComplianceFlag) []ComplianceFlag {
	if len(hinted) == 0 {
		return derived
	}
	seen := make(map[ComplianceFlag]bool, len(hinted)+len(derived))
	var out []ComplianceFlag
	for _, f := range hinted {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range derived {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
