package audit

import (
	"testing"
)

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		resource   string
		statusCode int
		want       RiskLevel
	}{
		{
			name:     "plain read is low",
			action:   "view_profile",
			resource: "profile",
			want:     RiskLow,
		},
		{
			name:     "auth alone is low",
			action:   "auth_login",
			resource: "authentication",
			want:     RiskLow,
		},
		{
			name:     "delete alone is medium",
			action:   "delete_post",
			resource: "post",
			want:     RiskMedium,
		},
		{
			name:     "admin alone is medium",
			action:   "admin_update",
			resource: "settings",
			want:     RiskMedium,
		},
		{
			name:     "security alone is high",
			action:   "security_scan",
			resource: "network",
			want:     RiskHigh,
		},
		{
			name:     "delete on user data is high",
			action:   "delete_record",
			resource: ResourceUserData,
			want:     RiskHigh,
		},
		{
			name:       "delete with server error is critical",
			action:     "delete_record",
			resource:   "post",
			statusCode: 500,
			want:       RiskCritical,
		},
		{
			name:     "security on security system is critical",
			action:   "security_alert",
			resource: ResourceSecuritySystem,
			want:     RiskCritical,
		},
		{
			name:       "client error alone is medium",
			action:     "view_profile",
			resource:   "profile",
			statusCode: 403,
			want:       RiskMedium,
		},
		{
			name:       "server error does not stack with client error",
			action:     "view_profile",
			resource:   "profile",
			statusCode: 502,
			want:       RiskMedium,
		},
		{
			name:     "matching is case insensitive",
			action:   "DELETE_USER",
			resource: "account",
			want:     RiskMedium,
		},
		{
			name:       "admin delete with failure is critical",
			action:     "admin_delete_user",
			resource:   ResourceUserData,
			statusCode: 500,
			want:       RiskCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRisk(tt.action, tt.resource, tt.statusCode)
			if got != tt.want {
				t.Errorf("ClassifyRisk(%q, %q, %d) = %v, want %v",
					tt.action, tt.resource, tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestRiskScoreStatusCodes(t *testing.T) {
	// A 5xx supersedes the 4xx contribution rather than adding to it.
	if got := riskScore("view", "thing", 500); got != scoreServerError {
		t.Errorf("riskScore 500 = %d, want %d", got, scoreServerError)
	}
	if got := riskScore("view", "thing", 404); got != scoreClientError {
		t.Errorf("riskScore 404 = %d, want %d", got, scoreClientError)
	}
	if got := riskScore("view", "thing", 200); got != 0 {
		t.Errorf("riskScore 200 = %d, want 0", got)
	}
}

func TestDeriveComplianceFlags(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		resource string
		risk     RiskLevel
		want     []ComplianceFlag
	}{
		{
			name:     "privacy action flags GDPR and CCPA",
			action:   "privacy_update",
			resource: "settings",
			risk:     RiskLow,
			want:     []ComplianceFlag{FlagGDPR, FlagCCPA},
		},
		{
			name:     "data export flags GDPR and CCPA",
			action:   "data_export_request",
			resource: "export",
			risk:     RiskLow,
			want:     []ComplianceFlag{FlagGDPR, FlagCCPA},
		},
		{
			name:     "user data resource flags GDPR and CCPA",
			action:   "read_record",
			resource: ResourceUserData,
			risk:     RiskLow,
			want:     []ComplianceFlag{FlagGDPR, FlagCCPA},
		},
		{
			name:     "admin action flags SOX",
			action:   "admin_restart",
			resource: "service",
			risk:     RiskMedium,
			want:     []ComplianceFlag{FlagSOX},
		},
		{
			name:     "config action flags SOX",
			action:   "config_change",
			resource: "service",
			risk:     RiskLow,
			want:     []ComplianceFlag{FlagSOX},
		},
		{
			name:     "critical risk flags SOX",
			action:   "wipe",
			resource: "disk",
			risk:     RiskCritical,
			want:     []ComplianceFlag{FlagSOX},
		},
		{
			name:     "auth action flags ISO27001",
			action:   "auth_login",
			resource: "authentication",
			risk:     RiskLow,
			want:     []ComplianceFlag{FlagISO27001},
		},
		{
			name:     "high risk flags ISO27001",
			action:   "bulk_update",
			resource: "records",
			risk:     RiskHigh,
			want:     []ComplianceFlag{FlagISO27001},
		},
		{
			name:     "nothing matches",
			action:   "view_page",
			resource: "page",
			risk:     RiskLow,
			want:     nil,
		},
		{
			name:     "security action on user data stacks regimes",
			action:   "security_review",
			resource: ResourceUserData,
			risk:     RiskCritical,
			want:     []ComplianceFlag{FlagGDPR, FlagCCPA, FlagSOX, FlagISO27001},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveComplianceFlags(tt.action, tt.resource, tt.risk)
			if !equalFlags(got, tt.want) {
				t.Errorf("DeriveComplianceFlags(%q, %q, %v) = %v, want %v",
					tt.action, tt.resource, tt.risk, got, tt.want)
			}
		})
	}
}

func TestMergeFlags(t *testing.T) {
	tests := []struct {
		name    string
		hinted  []ComplianceFlag
		derived []ComplianceFlag
		want    []ComplianceFlag
	}{
		{
			name:    "no hints returns derived",
			derived: []ComplianceFlag{FlagSOX},
			want:    []ComplianceFlag{FlagSOX},
		},
		{
			name:   "hints only",
			hinted: []ComplianceFlag{FlagHIPAA},
			want:   []ComplianceFlag{FlagHIPAA},
		},
		{
			name:    "union preserves hint order first",
			hinted:  []ComplianceFlag{FlagPCIDSS, FlagGDPR},
			derived: []ComplianceFlag{FlagGDPR, FlagCCPA},
			want:    []ComplianceFlag{FlagPCIDSS, FlagGDPR, FlagCCPA},
		},
		{
			name:    "duplicate hints collapse",
			hinted:  []ComplianceFlag{FlagSOX, FlagSOX},
			derived: []ComplianceFlag{FlagSOX},
			want:    []ComplianceFlag{FlagSOX},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeFlags(tt.hinted, tt.derived)
			if !equalFlags(got, tt.want) {
				t.Errorf("mergeFlags(%v, %v) = %v, want %v", tt.hinted, tt.derived, got, tt.want)
			}
		})
	}
}

func TestMaxRisk(t *testing.T) {
	if got := maxRisk(RiskLow, RiskHigh); got != RiskHigh {
		t.Errorf("maxRisk(low, high) = %v, want high", got)
	}
	if got := maxRisk(RiskCritical, RiskMedium); got != RiskCritical {
		t.Errorf("maxRisk(critical, medium) = %v, want critical", got)
	}
	if got := maxRisk(RiskMedium, RiskMedium); got != RiskMedium {
		t.Errorf("maxRisk(medium, medium) = %v, want medium", got)
	}
}

func equalFlags(a, b []ComplianceFlag) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
