package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"time"
)

// Format selects an export encoding.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ErrUnsupportedFormat is returned by Export for formats outside the
// supported set. Callers match it with errors.Is.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// csvHeader is the fixed column schema consumed by downstream compliance
// tooling. Order and names are part of the contract.
var csvHeader = []string{"id", "timestamp", "userId", "action", "resource", "sourceIP", "riskLevel"}

// Export serializes the events matching the query. JSON output is
// pretty-printed; CSV uses the fixed seven-column schema with standard
// double-quote escaping; XML is a flat document with one <event> element per
// record. An unsupported format is a hard error.
func (l *Logger) Export(ctx context.Context, format Format, q Query) ([]byte, error) {
	switch format {
	case FormatJSON, FormatCSV, FormatXML:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	events, err := l.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	switch format {
	case FormatJSON:
		return exportJSON(events)
	case FormatCSV:
		return exportCSV(events)
	default:
		return exportXML(events)
	}
}

func exportJSON(events []*Event) ([]byte, error) {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON export: %w", err)
	}
	return data, nil
}

func exportCSV(events []*Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range events {
		row := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.UserID,
			e.Action,
			e.Resource,
			e.SourceIP,
			string(e.RiskLevel),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV export: %w", err)
	}
	return buf.Bytes(), nil
}

// xmlEvent mirrors the CSV column set; tag names are part of the downstream
// contract.
type xmlEvent struct {
	ID        string `xml:"id"`
	Timestamp string `xml:"timestamp"`
	UserID    string `xml:"userId"`
	Action    string `xml:"action"`
	Resource  string `xml:"resource"`
	SourceIP  string `xml:"sourceIP"`
	RiskLevel string `xml:"riskLevel"`
}

type xmlDocument struct {
	XMLName xml.Name   `xml:"auditEvents"`
	Events  []xmlEvent `xml:"event"`
}

func exportXML(events []*Event) ([]byte, error) {
	doc := xmlDocument{Events: make([]xmlEvent, 0, len(events))}
	for _, e := range events {
		doc.Events = append(doc.Events, xmlEvent{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			UserID:    e.UserID,
			Action:    e.Action,
			Resource:  e.Resource,
			SourceIP:  e.SourceIP,
			RiskLevel: string(e.RiskLevel),
		})
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode XML export: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}
