package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// createTableStmt bootstraps the audit table. The BIGSERIAL sequence column
// preserves insertion order for chain verification; the trail itself is
// append-only so no UPDATE or DELETE is ever issued against it.
const createTableStmt = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq              BIGSERIAL PRIMARY KEY,
	id               TEXT NOT NULL UNIQUE,
	ts               TIMESTAMPTZ NOT NULL,
	user_id          TEXT NOT NULL DEFAULT '',
	session_id       TEXT NOT NULL DEFAULT '',
	action           TEXT NOT NULL,
	resource         TEXT NOT NULL,
	resource_id      TEXT NOT NULL DEFAULT '',
	source_ip        TEXT NOT NULL DEFAULT '',
	user_agent       TEXT NOT NULL DEFAULT '',
	method           TEXT NOT NULL DEFAULT '',
	path             TEXT NOT NULL DEFAULT '',
	status_code      INT NOT NULL DEFAULT 0,
	old_values       JSONB,
	new_values       JSONB,
	details          JSONB,
	risk_level       TEXT NOT NULL,
	compliance_flags TEXT[] NOT NULL DEFAULT '{}',
	hash             TEXT NOT NULL DEFAULT '',
	previous_hash    TEXT NOT NULL DEFAULT ''
)`

const insertStmt = `
INSERT INTO audit_events (
	id, ts, user_id, session_id, action, resource, resource_id,
	source_ip, user_agent, method, path, status_code,
	old_values, new_values, details,
	risk_level, compliance_flags, hash, previous_hash
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

const selectColumns = `
	id, ts, user_id, session_id, action, resource, resource_id,
	source_ip, user_agent, method, path, status_code,
	old_values, new_values, details,
	risk_level, compliance_flags, hash, previous_hash`

// PostgresStore persists audit events in PostgreSQL via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed audit store, creating the
// audit_events table if it does not exist.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createTableStmt); err != nil {
		return nil, fmt.Errorf("failed to create audit_events table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Append persists one event.
func (s *PostgresStore) Append(ctx context.Context, e *Event) error {
	oldVals, err := marshalPayload(e.OldValues)
	if err != nil {
		return fmt.Errorf("failed to encode old values: %w", err)
	}
	newVals, err := marshalPayload(e.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode new values: %w", err)
	}
	details, err := marshalPayload(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	flags := make([]string, len(e.ComplianceFlags))
	for i, f := range e.ComplianceFlags {
		flags[i] = string(f)
	}

	_, err = s.db.ExecContext(ctx, insertStmt,
		e.ID, e.Timestamp.UTC(), e.UserID, e.SessionID, e.Action, e.Resource, e.ResourceID,
		e.SourceIP, e.UserAgent, e.Method, e.Path, e.StatusCode,
		oldVals, newVals, details,
		string(e.RiskLevel), pq.Array(flags), e.Hash, e.PreviousHash,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// Query retrieves events matching the query in insertion order.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]*Event, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}

	if !q.From.IsZero() {
		add("ts >= ", q.From.UTC())
	}
	if !q.To.IsZero() {
		add("ts <= ", q.To.UTC())
	}
	if q.UserID != "" {
		add("user_id = ", q.UserID)
	}
	if q.Action != "" {
		add("action = ", q.Action)
	}
	if q.Resource != "" {
		add("resource = ", q.Resource)
	}
	if q.RiskLevel != "" {
		add("risk_level = ", string(q.RiskLevel))
	}

	query := "SELECT" + selectColumns + " FROM audit_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var results []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return results, nil
}

// All retrieves every event in insertion order.
func (s *PostgresStore) All(ctx context.Context) ([]*Event, error) {
	return s.Query(ctx, Query{})
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e       Event
		oldVals []byte
		newVals []byte
		details []byte
		risk    string
		flags   pq.StringArray
	)
	err := rows.Scan(
		&e.ID, &e.Timestamp, &e.UserID, &e.SessionID, &e.Action, &e.Resource, &e.ResourceID,
		&e.SourceIP, &e.UserAgent, &e.Method, &e.Path, &e.StatusCode,
		&oldVals, &newVals, &details,
		&risk, &flags, &e.Hash, &e.PreviousHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	e.RiskLevel = RiskLevel(risk)
	for _, f := range flags {
		e.ComplianceFlags = append(e.ComplianceFlags, ComplianceFlag(f))
	}
	if e.OldValues, err = unmarshalPayload(oldVals); err != nil {
		return nil, err
	}
	if e.NewValues, err = unmarshalPayload(newVals); err != nil {
		return nil, err
	}
	if e.Details, err = unmarshalPayload(details); err != nil {
		return nil, err
	}
	return &e, nil
}

func marshalPayload(o Object) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func unmarshalPayload(data []byte) (Object, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var o Object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return o, nil
}
