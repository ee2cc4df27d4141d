// Package postgres persists audit events in PostgreSQL. The table is
// append-only; nothing in this package updates or deletes rows.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"certgate/internal/audit"
)

// Schema is the expected table layout, applied by migrations outside this
// package:
//
//	CREATE TABLE audit_events (
//	    id           TEXT PRIMARY KEY,
//	    recorded_at  TIMESTAMPTZ NOT NULL,
//	    actor        TEXT NOT NULL,
//	    client_ip    TEXT,
//	    user_agent   TEXT,
//	    fingerprint  TEXT NOT NULL,
//	    policy       TEXT,
//	    stage        TEXT NOT NULL,
//	    validator    TEXT,
//	    decision     TEXT NOT NULL,
//	    reason_code  TEXT,
//	    reason       TEXT,
//	    serial       TEXT
//	);
//	CREATE INDEX audit_events_fingerprint_idx ON audit_events (fingerprint);
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, event audit.Event) error {
	const query = `
		INSERT INTO audit_events
			(id, recorded_at, actor, client_ip, user_agent, fingerprint,
			 policy, stage, validator, decision, reason_code, reason, serial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.Actor, event.ClientIP, event.UserAgent,
		event.Fingerprint, event.Policy, string(event.Stage), event.Validator,
		event.Decision, event.ReasonCode, event.Reason, event.Serial,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByFingerprint(ctx context.Context, fingerprint string) ([]audit.Event, error) {
	const query = `
		SELECT id, recorded_at, actor, client_ip, user_agent, fingerprint,
		       policy, stage, validator, decision, reason_code, reason, serial
		FROM audit_events
		WHERE fingerprint = $1
		ORDER BY recorded_at
	`
	rows, err := s.db.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var stage string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.ClientIP, &e.UserAgent,
			&e.Fingerprint, &e.Policy, &stage, &e.Validator, &e.Decision,
			&e.ReasonCode, &e.Reason, &e.Serial); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Stage = audit.Stage(stage)
		events = append(events, e)
	}
	return events, rows.Err()
}
