package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

// EventType represents the kind of navigation event.
type EventType string

const (
	EventTypeSessionOpened  EventType = "session_opened"
	EventTypeActionApplied  EventType = "action_applied"
	EventTypeSessionDeleted EventType = "session_deleted"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
	ErrLockLost        = errors.New("lock lost or stolen")
)

// EventID is a unique identifier for an event.
type EventID string

// Event is one entry of the append-only navigation log.
type Event struct {
	EventID   EventID         `json:"event_id"`
	EventType EventType       `json:"event_type"`
	SessionID string          `json:"session_id"`
	UseCase   entity.UseCase  `json:"use_case"`
	TsEvent   time.Time       `json:"ts_event"`
	TsIngest  time.Time       `json:"ts_ingest"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
}

// EventFilter defines filters for querying events. Zero values do not filter.
type EventFilter struct {
	From       time.Time
	To         time.Time
	EventTypes []EventType
	SessionID  string
	UseCase    entity.UseCase
	Limit      int
}

// Session is the persisted navigation state of one client.
type Session struct {
	ID        string         `json:"id"`
	UseCase   entity.UseCase `json:"use_case"`
	State     workflow.State `json:"state"`
	URL       string         `json:"url"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionCache is a read-through cache in front of the session table.
type SessionCache interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, bool, error)
	Delete(ctx context.Context, id string) error

	// Sweep drops expired entries and reports how many it removed.
	Sweep(ctx context.Context) (int, error)
}

// Lock is a named, expiring claim used to serialise writers of a session.
type Lock struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"`
}

// LockStore acquires and releases locks.
type LockStore interface {
	// Acquire takes the lock, or extends it when holderID already holds it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew extends a lock held by holderID. It returns ErrLockLost otherwise.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release drops the lock if holderID holds it.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lock, or nil when nobody holds it.
	Get(ctx context.Context, name string) (*Lock, error)
}
