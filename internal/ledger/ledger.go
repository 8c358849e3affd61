// Package ledger records button press invocations for auditing.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventActionStarted   EventType = "action_started"
	EventActionCompleted EventType = "action_completed"
	EventActionFailed    EventType = "action_failed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID           int64          `json:"id"`
	EventType    EventType      `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	InvocationID string         `json:"invocation_id"`
	Page         string         `json:"page,omitempty"`
	Key          int            `json:"key"`
	ActionKind   string         `json:"action_kind,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Ledger is an append-only invocation history
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger. Timestamp defaults to now.
func (l *Ledger) Append(e Entry) error {
	var payloadJSON []byte
	if e.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := l.db.Exec(`
		INSERT INTO event_ledger (event_type, timestamp, invocation_id, page, button_key, action_kind, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.EventType), ts.UTC().Unix(), e.InvocationID, e.Page, e.Key, e.ActionKind, string(payloadJSON))
	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, invocation_id, page, button_key, action_kind, payload
		FROM event_ledger
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByInvocation returns every entry of one invocation in insertion order
func (l *Ledger) ByInvocation(invocationID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, invocation_id, page, button_key, action_kind, payload
		FROM event_ledger
		WHERE invocation_id = ?
		ORDER BY id ASC
	`, invocationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var page, actionKind, payloadStr sql.NullString
		var key sql.NullInt64
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.InvocationID, &page, &key, &actionKind, &payloadStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.Page = page.String
		entry.Key = int(key.Int64)
		entry.ActionKind = actionKind.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
