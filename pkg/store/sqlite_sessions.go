package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const sessionColumns = `session_id, use_case, state, url, version, created_at, updated_at`

// SaveSession inserts sess or updates it in place. Updates are optimistic:
// sess.Version must be exactly one more than the stored version, otherwise
// ErrVersionConflict is returned.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	if sess.Version <= 1 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, sess.UseCase, string(state), sess.URL, sess.Version,
			sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET use_case = ?, state = ?, url = ?, version = ?, updated_at = ?
		WHERE session_id = ? AND version = ?
	`, sess.UseCase, string(state), sess.URL, sess.Version, sess.UpdatedAt.UTC(),
		sess.ID, sess.Version-1)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, sess.ID, sess.Version)
	}
	return nil
}

// GetSession loads a session. It returns ErrSessionNotFound when absent.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recently updated sessions first. A limit of
// zero or less returns all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, session_id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session. It returns ErrSessionNotFound when absent.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func scanSession(row scanner) (Session, error) {
	var (
		sess  Session
		state string
	)
	if err := row.Scan(&sess.ID, &sess.UseCase, &state, &sess.URL, &sess.Version,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return Session{}, fmt.Errorf("failed to decode state of %s: %w", sess.ID, err)
	}
	return sess, nil
}
