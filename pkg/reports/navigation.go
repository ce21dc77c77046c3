package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

// NavigationReport lists applied actions with the URL each one left and
// whether the stack had to be trimmed, oldest first.
type NavigationReport struct {
	store ReportStore
}

func NewNavigationReport(s ReportStore) *NavigationReport {
	return &NavigationReport{store: s}
}

type appliedAction struct {
	Action  navigator.Action `json:"action"`
	FromURL string           `json:"from_url"`
	State   workflow.State   `json:"state"`
	Trimmed bool             `json:"trimmed"`
}

func (r *NavigationReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	t, err := newTable("timestamp", "session_id", "use_case", "op", "type", "id", "from_url", "to_url", "depth", "trimmed")
	if err != nil {
		return nil, err
	}

	events, err := r.store.QueryEvents(ctx, eventFilter(params, store.EventTypeActionApplied))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		var p appliedAction
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for event %s: %w", e.EventID, err)
		}
		err := t.row(
			timestamp(e.TsEvent),
			e.SessionID,
			string(e.UseCase),
			string(p.Action.Op),
			string(p.Action.Type),
			p.Action.ID,
			p.FromURL,
			e.URL,
			strconv.Itoa(p.State.Len()),
			strconv.FormatBool(p.Trimmed),
		)
		if err != nil {
			return nil, err
		}
	}
	return t.done()
}
