package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fixed anomaly-detection thresholds. Deliberately not configurable so that
// reports are comparable across deployments.
const (
	bulkDeleteThreshold = 10
	offHoursRatio       = 0.3
	offHoursStart       = 22 // inclusive, local event time
	offHoursEnd         = 6  // exclusive
)

// Anomaly flags a suspicious pattern detected in a reporting window.
type Anomaly struct {
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	EventIDs    []string `json:"eventIds"`
}

// Report aggregates audit activity over a time range.
type Report struct {
	From        time.Time              `json:"from"`
	To          time.Time              `json:"to"`
	TotalEvents int                    `json:"totalEvents"`
	ByUser      map[string]int         `json:"byUser"`
	ByAction    map[string]int         `json:"byAction"`
	ByRisk      map[RiskLevel]int      `json:"byRisk"`
	ByFlag      map[ComplianceFlag]int `json:"byFlag"`
	Anomalies   []Anomaly              `json:"anomalies,omitempty"`
}

// GenerateReport aggregates events in [from, to] into per-user, per-action,
// per-risk, and per-flag counts and runs anomaly detection over the window.
// The underlying trail is never mutated.
func (l *Logger) GenerateReport(ctx context.Context, from, to time.Time) (*Report, error) {
	events, err := l.store.Query(ctx, Query{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	rep := &Report{
		From:        from,
		To:          to,
		TotalEvents: len(events),
		ByUser:      make(map[string]int),
		ByAction:    make(map[string]int),
		ByRisk:      make(map[RiskLevel]int),
		ByFlag:      make(map[ComplianceFlag]int),
	}
	for _, e := range events {
		if e.UserID != "" {
			rep.ByUser[e.UserID]++
		}
		rep.ByAction[e.Action]++
		rep.ByRisk[e.RiskLevel]++
		for _, f := range e.ComplianceFlags {
			rep.ByFlag[f]++
		}
	}
	rep.Anomalies = detectAnomalies(events)
	return rep, nil
}

// detectAnomalies runs two independent checks over a window of events:
//
//   - bulk deletion: any single user with more than bulkDeleteThreshold
//     delete-type events (high severity)
//   - off-hours activity: events outside 06:00-22:00 exceeding 30% of the
//     window's total (medium severity)
//
// Both may fire for the same window.
func detectAnomalies(events []*Event) []Anomaly {
	var anomalies []Anomaly

	deletesByUser := make(map[string][]string)
	var offHours []string
	for _, e := range events {
		if isDeleteAction(e.Action) && e.UserID != "" {
			deletesByUser[e.UserID] = append(deletesByUser[e.UserID], e.ID)
		}
		if h := e.Timestamp.Hour(); h >= offHoursStart || h < offHoursEnd {
			offHours = append(offHours, e.ID)
		}
	}

	for user, ids := range deletesByUser {
		if len(ids) > bulkDeleteThreshold {
			anomalies = append(anomalies, Anomaly{
				Type:        "bulk_deletion",
				Severity:    "high",
				Description: fmt.Sprintf("user %s performed %d delete operations", user, len(ids)),
				EventIDs:    ids,
			})
		}
	}

	if total := len(events); total > 0 && float64(len(offHours))/float64(total) > offHoursRatio {
		anomalies = append(anomalies, Anomaly{
			Type:        "off_hours_activity",
			Severity:    "medium",
			Description: fmt.Sprintf("%d of %d events occurred outside business hours", len(offHours), total),
			EventIDs:    offHours,
		})
	}
	return anomalies
}

func isDeleteAction(action string) bool {
	return strings.Contains(strings.ToLower(action), "delete")
}
