package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Event is an append-only record of something that happened to a project,
// protocol run, or step run. Events are never updated or deleted.
type Event struct {
	ID            int64
	ProtocolRunID sql.NullInt64
	StepRunID     sql.NullInt64
	ProjectID     sql.NullInt64
	EventType     string
	Message       string
	Metadata      json.RawMessage
	CreatedAt     string
}

// CreateEventInput carries the fields needed to append an event. Exactly the
// scoping fields relevant to the event should be set; zero values are stored
// as NULL.
type CreateEventInput struct {
	ProtocolRunID int64 // 0 means unset
	StepRunID     int64 // 0 means unset
	ProjectID     int64 // 0 means unset
	EventType     string
	Message       string
	Metadata      json.RawMessage
}

// CreateEvent appends an event row. Events are immutable once written: there
// is no Update or Delete on this type.
func (s *Store) CreateEvent(in CreateEventInput) (*Event, error) {
	if in.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", ErrValidation)
	}
	meta := in.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}

	res, err := s.db.Exec(`
		INSERT INTO events (protocol_run_id, step_run_id, project_id, event_type, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullableID(in.ProtocolRunID), nullableID(in.StepRunID), nullableID(in.ProjectID),
		in.EventType, in.Message, string(meta))
	if err != nil {
		return nil, fmt.Errorf("store: create event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create event: %w", err)
	}
	return s.GetEvent(id)
}

// GetEvent fetches a single event by id.
func (s *Store) GetEvent(id int64) (*Event, error) {
	return scanEvent(s.db.QueryRow(`
		SELECT id, protocol_run_id, step_run_id, project_id, event_type, message, metadata, created_at
		FROM events WHERE id = ?
	`, id))
}

// ListEventsPage is one keyset-paginated page of events for a protocol run,
// ordered oldest-first by id.
type ListEventsPage struct {
	Events     []*Event
	NextCursor int64 // 0 when there is no further page
}

// ListEvents returns up to limit events for a protocol run with id > afterID,
// oldest first. Pass afterID=0 to start from the beginning.
func (s *Store) ListEvents(protocolRunID, afterID int64, limit int) (*ListEventsPage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, protocol_run_id, step_run_id, project_id, event_type, message, metadata, created_at
		FROM events
		WHERE protocol_run_id = ? AND id > ?
		ORDER BY id
		LIMIT ?
	`, protocolRunID, afterID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	page := &ListEventsPage{}
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(page.Events) > limit {
		page.NextCursor = page.Events[limit-1].ID
		page.Events = page.Events[:limit]
	}
	return page, nil
}

func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func scanEvent(row *sql.Row) (*Event, error) {
	var ev Event
	var meta string
	err := row.Scan(&ev.ID, &ev.ProtocolRunID, &ev.StepRunID, &ev.ProjectID, &ev.EventType, &ev.Message, &meta, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: event", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan event: %w", err)
	}
	ev.Metadata = json.RawMessage(meta)
	return &ev, nil
}

func scanEventRow(row rowScanner) (*Event, error) {
	var ev Event
	var meta string
	err := row.Scan(&ev.ID, &ev.ProtocolRunID, &ev.StepRunID, &ev.ProjectID, &ev.EventType, &ev.Message, &meta, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan event: %w", err)
	}
	ev.Metadata = json.RawMessage(meta)
	return &ev, nil
}
