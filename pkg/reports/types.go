package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/wayfinder/pkg/store"
)

type ReportType string

const (
	ReportTypeNavigation ReportType = "navigation"
	ReportTypeSessions   ReportType = "sessions"
	ReportTypeEvents     ReportType = "events"
)

// ReportParams bounds a report. Zero times do not filter.
type ReportParams struct {
	Start     time.Time
	End       time.Time
	SessionID string
	UseCase   string
	Limit     int
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	ListSessions(ctx context.Context, limit int) ([]store.Session, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
