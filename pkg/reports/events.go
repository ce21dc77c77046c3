package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/store"
)

// EventReport lists raw navigation log entries, oldest first.
type EventReport struct {
	store ReportStore
}

func NewEventReport(s ReportStore) *EventReport {
	return &EventReport{store: s}
}

func (r *EventReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	t, err := newTable("timestamp", "event_id", "event_type", "session_id", "use_case", "url")
	if err != nil {
		return nil, err
	}

	events, err := r.store.QueryEvents(ctx, eventFilter(params))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if err := t.row(timestamp(e.TsEvent), string(e.EventID), string(e.EventType), e.SessionID, string(e.UseCase), e.URL); err != nil {
			return nil, err
		}
	}
	return t.done()
}

func eventFilter(params ReportParams, types ...store.EventType) store.EventFilter {
	return store.EventFilter{
		From:       params.Start,
		To:         params.End,
		EventTypes: types,
		SessionID:  params.SessionID,
		UseCase:    entity.UseCase(params.UseCase),
		Limit:      params.Limit,
	}
}
