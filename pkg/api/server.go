package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/logging"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/reports"
	"github.com/rmax-ai/wayfinder/pkg/store"
	"github.com/rmax-ai/wayfinder/pkg/urlcodec"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

const (
	defaultHistoryLimit = 50
	maxBodyBytes        = 1 << 20
)

// Interfaces for dependencies to enable mocking

type NavigatorInterface interface {
	Open(ctx context.Context, rawURL string) (store.Session, error)
	Create(ctx context.Context, state workflow.State) (store.Session, error)
	Apply(ctx context.Context, id string, action navigator.Action) (store.Session, error)
	Session(ctx context.Context, id string) (store.Session, error)
	History(ctx context.Context, id string, limit int) ([]*store.Event, error)
	List(ctx context.Context, limit int) ([]store.Session, error)
	Close(ctx context.Context, id string) error
}

type CodecInterface interface {
	Generate(s workflow.State) (string, error)
	Parse(loc urlcodec.Location) workflow.State
	Match(pathname string) (urlcodec.Match, bool)
}

// Server encapsulates the HTTP API server
type Server struct {
	nav     NavigatorInterface
	codec   CodecInterface
	logger  *slog.Logger
	reports reports.ReportStore
	server  *http.Server

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance. A nil codec selects the
// default URL registry.
func NewServer(nav NavigatorInterface, codec CodecInterface, logger *slog.Logger, addr string) *Server {
	if codec == nil {
		codec = urlcodec.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{nav: nav, codec: codec, logger: logger}

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8095"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/url/generate", s.handleGenerate)
	mux.HandleFunc("POST /v1/url/parse", s.handleParse)

	mux.HandleFunc("GET /v1/relationships", s.handleRelationships)
	mux.HandleFunc("GET /v1/graph", s.handleGraph)

	mux.HandleFunc("POST /v1/sessions", s.handleOpenSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /v1/sessions/{id}/actions", s.handleApply)
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)

	mux.HandleFunc("GET /v1/reports", s.handleReports)

	// Middleware: Logging, Panic Recovery, Security Headers
	return s.withLogging(s.withRecovery(withSecureHeaders(mux)))
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// SetReportStore enables GET /v1/reports.
func (s *Server) SetReportStore(rs reports.ReportStore) {
	s.reports = rs
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", "addr", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != http.ErrServerClosed {
			return err
		}
		return nil
	}
	s.logger.Info("server_starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleGenerate turns a state into its canonical URL.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	url, err := s.codec.Generate(req.State)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, GenerateResponse{URL: url})
}

// handleParse decodes a URL. It never fails on unrecognised input: the
// result is simply an empty state.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	loc := urlcodec.LocationFromURL(req.URL)
	resp := ParseResponse{State: s.codec.Parse(loc)}
	if m, ok := s.codec.Match(loc.Pathname); ok {
		resp.Match = &m
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// handleRelationships answers ?use_case=&type=&relationship= queries
// against a use case's graph.
func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g, ok := s.graphFor(w, r, q.Get("use_case"))
	if !ok {
		return
	}

	t := entity.Type(q.Get("type"))
	if !g.Has(t) {
		writeError(w, http.StatusBadRequest, "unknown_entity_type", string(t))
		return
	}
	relName := q.Get("relationship")
	if relName == "" {
		relName = string(graph.RelContains)
	}
	rel, err := graph.ParseRelationship(relName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_relationship", relName)
		return
	}

	types := g.EntityTypesByRelationship(t, rel)
	if types == nil {
		types = []entity.Type{}
	}
	s.writeJSON(w, r, http.StatusOK, RelationshipsResponse{
		UseCase:      entity.UseCase(q.Get("use_case")),
		Type:         t,
		Relationship: rel,
		Types:        types,
	})
}

// handleGraph returns the relationship graph of a use case.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graphFor(w, r, r.URL.Query().Get("use_case"))
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, g.Export())
}

func (s *Server) graphFor(w http.ResponseWriter, r *http.Request, uc string) (*graph.Graph, bool) {
	if uc == "" {
		writeError(w, http.StatusBadRequest, "missing_use_case", "")
		return nil, false
	}
	g, ok := graph.ForUseCase(entity.UseCase(uc))
	if !ok {
		writeError(w, http.StatusNotFound, "graph_not_available", uc)
		return nil, false
	}
	return g, true
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		sess store.Session
		err  error
	)
	switch {
	case req.URL != "" && req.State != nil:
		writeError(w, http.StatusBadRequest, "ambiguous_request", "set either url or state")
		return
	case req.URL != "":
		sess, err = s.nav.Open(r.Context(), req.URL)
	case req.State != nil:
		sess, err = s.nav.Create(r.Context(), *req.State)
	default:
		writeError(w, http.StatusBadRequest, "missing_required_fields", "url or state")
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID)
	s.writeJSON(w, r, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultHistoryLimit)
	if !ok {
		return
	}
	sessions, err := s.nav.List(r.Context(), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	s.writeJSON(w, r, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.nav.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.nav.Close(r.Context(), r.PathValue("id")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var action navigator.Action
	if !decodeBody(w, r, &action) {
		return
	}
	if action.Op == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields", "op")
		return
	}
	sess, err := s.nav.Apply(r.Context(), r.PathValue("id"), action)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultHistoryLimit)
	if !ok {
		return
	}
	events, err := s.nav.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	s.writeJSON(w, r, http.StatusOK, events)
}

// handleReports generates and streams CSV reports.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotImplemented, "reports_disabled", "")
		return
	}

	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		writeError(w, http.StatusBadRequest, "missing_type", "")
		return
	}

	params := reports.ReportParams{
		SessionID: q.Get("session_id"),
		UseCase:   q.Get("use_case"),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if params.Start, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "want RFC3339")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if params.End, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "want RFC3339")
			return
		}
	}
	if q.Get("limit") != "" {
		limit, ok := parseLimit(w, r, 0)
		if !ok {
			return
		}
		params.Limit = limit
	}

	gen, err := reports.NewReportGenerator(reportType, s.reports)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err.Error())
		return
	}
	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=wayfinder_%s_%d.csv", reportType, time.Now().Unix()))
	if _, err := io.Copy(w, reader); err != nil {
		logging.FromContext(r.Context()).WarnContext(r.Context(), "report_stream_failed", "type", reportType, "error", err)
	}
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, true
	}
	val, err := strconv.Atoi(l)
	if err != nil || val <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", l)
		return 0, false
	}
	return val, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err.Error())
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, navigator.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, navigator.ErrUnknownAction):
		return http.StatusBadRequest, "unknown_action"
	case errors.Is(err, navigator.ErrInvalidEntityType):
		return http.StatusBadRequest, "invalid_entity_type"
	case errors.Is(err, navigator.ErrMissingID):
		return http.StatusBadRequest, "missing_entity_id"
	case errors.Is(err, urlcodec.ErrNoUseCase):
		return http.StatusUnprocessableEntity, "no_use_case"
	case errors.Is(err, urlcodec.ErrUnknownUseCase):
		return http.StatusUnprocessableEntity, "unknown_use_case"
	case errors.Is(err, urlcodec.ErrNoPathTemplate):
		return http.StatusUnprocessableEntity, "no_path_template"
	case errors.Is(err, urlcodec.ErrMalformedSort):
		return http.StatusUnprocessableEntity, "malformed_sort"
	}
	return http.StatusInternalServerError, "internal_server_error"
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	log := logging.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "error", err)
		writeError(w, status, code, "")
		return
	}
	log.DebugContext(r.Context(), "request_rejected", "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Detail: detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "failed_to_encode_response", "error", err)
	}
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.FromContext(r.Context()).ErrorContext(r.Context(), "panic_recovered",
					"error", fmt.Sprint(err), "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		ctx := logging.WithTraceID(r.Context(), s.logger, traceID)
		r = r.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		logging.FromContext(ctx).InfoContext(ctx, "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
