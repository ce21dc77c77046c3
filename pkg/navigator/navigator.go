// Package navigator keeps server-side navigation sessions. Each session holds
// a workflow state that clients advance with actions; every change is
// persisted, cached and recorded in the event log together with the URL that
// represents it.
package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/wayfinder/pkg/store"
	"github.com/rmax-ai/wayfinder/pkg/urlcodec"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

var ErrSessionBusy = errors.New("session is being modified by another writer")

const defaultLockTTL = 5 * time.Second

// Store is the persistence the navigator needs. *store.Store satisfies it.
type Store interface {
	SaveSession(ctx context.Context, sess store.Session) error
	GetSession(ctx context.Context, id string) (store.Session, error)
	ListSessions(ctx context.Context, limit int) ([]store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	AppendEvent(ctx context.Context, evt *store.Event) error
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

// Codec converts between states and URLs. *urlcodec.Registry satisfies it.
type Codec interface {
	Generate(s workflow.State) (string, error)
	Parse(loc urlcodec.Location) workflow.State
}

// Navigator applies actions to persisted sessions.
type Navigator struct {
	store    Store
	cache    store.SessionCache
	locks    store.LockStore
	codec    Codec
	logger   *slog.Logger
	holderID string
	lockTTL  time.Duration
	now      func() time.Time
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithCache puts a read-through cache in front of the store.
func WithCache(c store.SessionCache) Option {
	return func(n *Navigator) { n.cache = c }
}

// WithLocks serialises Apply calls on the same session across processes.
func WithLocks(l store.LockStore, holderID string, ttl time.Duration) Option {
	return func(n *Navigator) {
		n.locks = l
		n.holderID = holderID
		if ttl > 0 {
			n.lockTTL = ttl
		}
	}
}

// WithCodec replaces the default URL registry.
func WithCodec(c Codec) Option {
	return func(n *Navigator) { n.codec = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Navigator) { n.now = now }
}

// New returns a Navigator backed by st.
func New(st Store, opts ...Option) *Navigator {
	n := &Navigator{
		store:    st,
		codec:    urlcodec.Default(),
		logger:   slog.Default(),
		holderID: uuid.NewString(),
		lockTTL:  defaultLockTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Open starts a session at the state rawURL describes.
func (n *Navigator) Open(ctx context.Context, rawURL string) (store.Session, error) {
	return n.Create(ctx, n.codec.Parse(urlcodec.LocationFromURL(rawURL)))
}

// Create starts a session at state. The state must belong to a known use case
// so that it can be turned back into a URL, and every frame must be a type
// of that use case's graph.
func (n *Navigator) Create(ctx context.Context, state workflow.State) (store.Session, error) {
	for _, f := range state.Stack() {
		if err := checkType(state.UseCase(), f.Type); err != nil {
			return store.Session{}, err
		}
	}
	url, err := n.codec.Generate(state)
	if err != nil {
		return store.Session{}, fmt.Errorf("failed to generate url: %w", err)
	}

	now := n.now().UTC()
	sess := store.Session{
		ID:        uuid.NewString(),
		UseCase:   state.UseCase(),
		State:     state,
		URL:       url,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.store.SaveSession(ctx, sess); err != nil {
		return store.Session{}, err
	}
	n.record(ctx, sess, store.EventTypeSessionOpened, openedPayload{State: state})
	n.cachePut(ctx, sess)

	SessionsOpened.WithLabelValues(string(sess.UseCase)).Inc()
	StackDepth.WithLabelValues(string(sess.UseCase)).Observe(float64(state.Len()))
	n.logger.InfoContext(ctx, "session_opened",
		"session_id", sess.ID, "use_case", sess.UseCase, "url", sess.URL)
	return sess, nil
}

// Apply runs action against the session and persists the result.
func (n *Navigator) Apply(ctx context.Context, id string, action Action) (store.Session, error) {
	sess, err := n.apply(ctx, id, action)
	result := "ok"
	if err != nil {
		result = resultLabel(err)
	}
	ActionsTotal.WithLabelValues(string(action.Op), result).Inc()
	return sess, err
}

func (n *Navigator) apply(ctx context.Context, id string, action Action) (store.Session, error) {
	if n.locks != nil {
		// Locks re-grant to their holder, so each call holds under its own token.
		name, holder := lockName(id), n.holderID+":"+uuid.NewString()
		ok, err := n.locks.Acquire(ctx, name, holder, n.lockTTL)
		if err != nil {
			return store.Session{}, fmt.Errorf("failed to lock session: %w", err)
		}
		if !ok {
			return store.Session{}, fmt.Errorf("%w: %s", ErrSessionBusy, id)
		}
		defer func() {
			if err := n.locks.Release(context.WithoutCancel(ctx), name, holder); err != nil {
				n.logger.WarnContext(ctx, "session_unlock_failed", "session_id", id, "error", err)
			}
		}()
	}

	// Writes always start from the store; the cache may lag behind another replica.
	sess, err := n.store.GetSession(ctx, id)
	if err != nil {
		return store.Session{}, err
	}

	before := sess.State
	next, err := action.Apply(before)
	if err != nil {
		return store.Session{}, err
	}
	url, err := n.codec.Generate(next)
	if err != nil {
		return store.Session{}, fmt.Errorf("failed to generate url: %w", err)
	}

	fromURL := sess.URL
	sess.State = next
	sess.UseCase = next.UseCase()
	sess.URL = url
	sess.Version++
	sess.UpdatedAt = n.now().UTC()
	if err := n.store.SaveSession(ctx, sess); err != nil {
		return store.Session{}, err
	}

	trimmed := false
	if want, ok := expectedLen(action, before); ok && next.Len() < want {
		trimmed = true
		StackTrims.WithLabelValues(string(sess.UseCase)).Inc()
	}
	StackDepth.WithLabelValues(string(sess.UseCase)).Observe(float64(next.Len()))

	n.record(ctx, sess, store.EventTypeActionApplied, appliedPayload{
		Action:  action,
		FromURL: fromURL,
		State:   next,
		Trimmed: trimmed,
	})
	n.cachePut(ctx, sess)

	n.logger.DebugContext(ctx, "action_applied",
		"session_id", id, "op", action.Op, "version", sess.Version,
		"depth", next.Len(), "trimmed", trimmed, "url", url)
	return sess, nil
}

// Session returns the current state of a session.
func (n *Navigator) Session(ctx context.Context, id string) (store.Session, error) {
	if n.cache != nil {
		sess, ok, err := n.cache.Get(ctx, id)
		if err != nil {
			n.logger.WarnContext(ctx, "session_cache_get_failed", "session_id", id, "error", err)
		} else if ok {
			CacheLookups.WithLabelValues("hit").Inc()
			return sess, nil
		}
		CacheLookups.WithLabelValues("miss").Inc()
	}

	sess, err := n.store.GetSession(ctx, id)
	if err != nil {
		return store.Session{}, err
	}
	n.cachePut(ctx, sess)
	return sess, nil
}

// History returns the newest events of a session, newest first.
func (n *Navigator) History(ctx context.Context, id string, limit int) ([]*store.Event, error) {
	if _, err := n.Session(ctx, id); err != nil {
		return nil, err
	}
	return n.store.QueryEvents(ctx, store.EventFilter{SessionID: id, Limit: limit})
}

// Close deletes a session. Its history stays in the log until pruned.
func (n *Navigator) Close(ctx context.Context, id string) error {
	sess, err := n.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := n.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	if n.cache != nil {
		if err := n.cache.Delete(ctx, id); err != nil {
			n.logger.WarnContext(ctx, "session_cache_delete_failed", "session_id", id, "error", err)
		}
	}
	n.record(ctx, sess, store.EventTypeSessionDeleted, struct{}{})
	n.logger.InfoContext(ctx, "session_closed", "session_id", id)
	return nil
}

type openedPayload struct {
	State workflow.State `json:"state"`
}

type appliedPayload struct {
	Action  Action         `json:"action"`
	FromURL string         `json:"from_url"`
	State   workflow.State `json:"state"`
	Trimmed bool           `json:"trimmed,omitempty"`
}

// record appends an event. The session row is already written, so a failed
// append is logged rather than returned.
func (n *Navigator) record(ctx context.Context, sess store.Session, et store.EventType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.ErrorContext(ctx, "event_encode_failed", "session_id", sess.ID, "error", err)
		return
	}
	evt := &store.Event{
		EventID:   store.EventID(uuid.NewString()),
		EventType: et,
		SessionID: sess.ID,
		UseCase:   sess.UseCase,
		TsEvent:   n.now().UTC(),
		URL:       sess.URL,
		Payload:   raw,
	}
	if err := n.store.AppendEvent(ctx, evt); err != nil {
		n.logger.ErrorContext(ctx, "event_append_failed",
			"session_id", sess.ID, "event_type", et, "error", err)
	}
}

func (n *Navigator) cachePut(ctx context.Context, sess store.Session) {
	if n.cache == nil {
		return
	}
	if err := n.cache.Put(ctx, sess); err != nil {
		n.logger.WarnContext(ctx, "session_cache_put_failed", "session_id", sess.ID, "error", err)
	}
}

func lockName(id string) string {
	return "session:" + id
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionBusy), errors.Is(err, store.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, ErrUnknownAction), errors.Is(err, ErrInvalidEntityType), errors.Is(err, ErrMissingID):
		return "invalid"
	}
	return "error"
}

// List returns the most recently updated sessions first.
func (n *Navigator) List(ctx context.Context, limit int) ([]store.Session, error) {
	return n.store.ListSessions(ctx, limit)
}
