package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const eventColumns = `event_id, event_type, session_id, use_case, ts_event, ts_ingest, url, payload`

// AppendEvent writes evt to the log. A zero TsIngest is set to now.
func (s *Store) AppendEvent(ctx context.Context, evt *Event) error {
	if evt.TsIngest.IsZero() {
		evt.TsIngest = time.Now().UTC()
	}
	payload := evt.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.EventID, evt.EventType, evt.SessionID, evt.UseCase,
		evt.TsEvent.UTC(), evt.TsIngest.UTC(), evt.URL, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvent returns the event with id, or nil when absent.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return evt, nil
}

// ReadRecentEvents returns the newest limit events, newest first. A limit of
// zero or less returns every event.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.QueryEvents(ctx, EventFilter{Limit: limit})
}

// QueryEvents returns events matching filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "ts_event >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts_event <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.UseCase != "" {
		where = append(where, "use_case = ?")
		args = append(args, filter.UseCase)
	}
	if len(filter.EventTypes) > 0 {
		marks := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			marks[i] = "?"
			args = append(args, et)
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_event DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// PruneEvents deletes events older than before and returns how many went.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts_event < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		evt     Event
		payload string
	)
	if err := row.Scan(&evt.EventID, &evt.EventType, &evt.SessionID, &evt.UseCase,
		&evt.TsEvent, &evt.TsIngest, &evt.URL, &payload); err != nil {
		return nil, err
	}
	evt.Payload = json.RawMessage(payload)
	return &evt, nil
}
