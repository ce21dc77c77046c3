package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
)

// SessionReport lists live sessions, most recently updated first. Start and
// End bound the update time.
type SessionReport struct {
	store ReportStore
}

func NewSessionReport(s ReportStore) *SessionReport {
	return &SessionReport{store: s}
}

func (r *SessionReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	t, err := newTable("session_id", "use_case", "version", "depth", "current", "created_at", "updated_at", "url")
	if err != nil {
		return nil, err
	}

	sessions, err := r.store.ListSessions(ctx, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, s := range sessions {
		if !params.Start.IsZero() && s.UpdatedAt.Before(params.Start) {
			continue
		}
		if !params.End.IsZero() && s.UpdatedAt.After(params.End) {
			continue
		}
		if params.UseCase != "" && string(s.UseCase) != params.UseCase {
			continue
		}
		if params.SessionID != "" && s.ID != params.SessionID {
			continue
		}
		current := ""
		if e, ok := s.State.CurrentEntity(); ok {
			current = e.String()
		}
		err := t.row(
			s.ID,
			string(s.UseCase),
			strconv.FormatInt(s.Version, 10),
			strconv.Itoa(s.State.Len()),
			current,
			timestamp(s.CreatedAt),
			timestamp(s.UpdatedAt),
			s.URL,
		)
		if err != nil {
			return nil, err
		}
	}
	return t.done()
}
