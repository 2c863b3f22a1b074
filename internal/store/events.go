package store

import (
	"encoding/json"
	"fmt"
	"time"
)

type Event struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	RunID     string          `json:"run_id"`
	Tick      int64           `json:"tick"`
	AgentID   string          `json:"agent_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaveEvent appends e to its run. An event id that was already saved is
// ignored, so redelivered events do not duplicate.
func (s *Store) SaveEvent(e *Event) error {
	var data *string
	if len(e.Data) > 0 {
		d := string(e.Data)
		data = &d
	}
	result, err := s.db.Exec(`
		INSERT INTO events (event_id, run_id, tick, agent_id, type, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.RunID, e.Tick, e.AgentID, e.Type, data)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		e.ID, _ = result.LastInsertId()
	}
	return nil
}

// ListEvents returns up to limit events of runID with an id greater than
// afterID, oldest first.
func (s *Store) ListEvents(runID string, afterID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(`
		SELECT id, event_id, run_id, tick, agent_id, type, data, created_at
		FROM events
		WHERE run_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`, runID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data *string
		if err := rows.Scan(&e.ID, &e.EventID, &e.RunID, &e.Tick, &e.AgentID, &e.Type, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if data != nil {
			e.Data = json.RawMessage(*data)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events of each type recorded for runID.
func (s *Store) CountEvents(runID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT type, COUNT(*)
		FROM events
		WHERE run_id = ?
		GROUP BY type`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}
