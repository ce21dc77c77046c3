package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	e "github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/logging"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
	"github.com/rmax-ai/wayfinder/pkg/urlcodec"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "wayfinder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	nav := navigator.New(st,
		navigator.WithCache(store.NewMemoryCache(0)),
		navigator.WithLogger(logging.Discard()),
	)
	s := NewServer(nav, nil, logging.Discard(), "")
	s.SetReportStore(st)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	withSecureHeaders(handler).ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
	}
	for key, expected := range expectedHeaders {
		assert.Equal(t, expected, w.Header().Get(key), key)
	}
}

func TestHealthAndTraceID(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get("X-Trace-ID"), 32)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "trace-123", resp2.Header.Get("X-Trace-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateAndParse(t *testing.T) {
	srv := newTestServer(t)

	state := workflow.New(e.VulnerabilityManagement, []e.Entity{e.Single(e.Cluster, "c1"), e.List(e.ImageCVE)})
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/url/generate", GenerateRequest{State: state})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gen := decode[GenerateResponse](t, resp)
	assert.Equal(t, "/main/vulnerability-management/cluster/c1/image-cves", gen.URL)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/url/parse", ParseRequest{URL: gen.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	parsed := decode[ParseResponse](t, resp)
	assert.True(t, state.Equal(parsed.State))
	require.NotNil(t, parsed.Match)
	assert.Equal(t, urlcodec.PageEntity, parsed.Match.PageType)
	assert.Equal(t, e.VulnerabilityManagement, parsed.Match.UseCase)
}

func TestParse_UnknownPath(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/url/parse", ParseRequest{URL: "/nowhere"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	parsed := decode[ParseResponse](t, resp)
	assert.Nil(t, parsed.Match)
	assert.Zero(t, parsed.State.Len())
}

func TestGenerate_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/url/generate", GenerateRequest{State: workflow.New("", nil)})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no_use_case", decode[ErrorResponse](t, resp).Error)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/url/generate", strings.NewReader("{"))
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/url/generate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRelationships(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/relationships?use_case=vulnerability-management&type=CLUSTER&relationship=CHILDREN", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[RelationshipsResponse](t, resp)
	assert.Equal(t, graph.Vulnerability.Children(e.Cluster), got.Types)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing use case", "type=CLUSTER", http.StatusBadRequest},
		{"legacy use case", "use_case=risk&type=DEPLOYMENT", http.StatusNotFound},
		{"type outside graph", "use_case=vulnerability-management&type=SECRET", http.StatusBadRequest},
		{"bad relationship", "use_case=compliance&type=CLUSTER&relationship=SIBLINGS", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodGet, srv.URL+"/v1/relationships?"+tt.query, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGraph(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/graph?use_case=compliance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[graph.Snapshot](t, resp)
	assert.Equal(t, "configuration", snap.Name)
	assert.NotEmpty(t, snap.Nodes)
	assert.NotEmpty(t, snap.Edges)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", OpenSessionRequest{URL: "/main/compliance/clusters"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[store.Session](t, resp)
	assert.Equal(t, "/v1/sessions/"+sess.ID, resp.Header.Get("Location"))
	assert.Equal(t, int64(1), sess.Version)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+sess.ID+"/actions",
		navigator.Action{Op: navigator.OpPushListItem, ID: "c1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess = decode[store.Session](t, resp)
	assert.Equal(t, int64(2), sess.Version)
	assert.Equal(t, "/main/compliance/clusters?workflowState[0][t]=CLUSTER&workflowState[0][i]=c1", sess.URL)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sess.URL, decode[store.Session](t, resp).URL)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+sess.ID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]store.Event](t, resp)
	require.Len(t, history, 2)
	assert.Equal(t, store.EventTypeActionApplied, history[0].EventType)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]store.Session](t, resp), 1)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenSession_FromState(t *testing.T) {
	srv := newTestServer(t)
	state := workflow.New(e.ConfigManagement, []e.Entity{e.List(e.Deployment)})

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", OpenSessionRequest{State: &state})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/main/configmanagement/deployments", decode[store.Session](t, resp).URL)
}

func TestOpenSession_Validation(t *testing.T) {
	srv := newTestServer(t)
	state := workflow.New(e.Compliance, nil)

	tests := []struct {
		name string
		body OpenSessionRequest
		want int
	}{
		{"empty", OpenSessionRequest{}, http.StatusBadRequest},
		{"both", OpenSessionRequest{URL: "/main/compliance", State: &state}, http.StatusBadRequest},
		{"unroutable url", OpenSessionRequest{URL: "/nowhere"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestApply_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", OpenSessionRequest{URL: "/main/compliance/clusters"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[store.Session](t, resp)

	tests := []struct {
		name   string
		id     string
		action navigator.Action
		want   int
		code   string
	}{
		{"missing op", sess.ID, navigator.Action{}, http.StatusBadRequest, "missing_required_fields"},
		{"unknown op", sess.ID, navigator.Action{Op: "fly"}, http.StatusBadRequest, "unknown_action"},
		{"bad type", sess.ID, navigator.Action{Op: navigator.OpPushList, Type: e.NodeCVE}, http.StatusBadRequest, "invalid_entity_type"},
		{"missing session", "nope", navigator.Action{Op: navigator.OpPop}, http.StatusNotFound, "session_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+tt.id+"/actions", tt.action)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Error)
		})
	}
}

func TestHistory_InvalidLimit(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/x/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReports(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", OpenSessionRequest{URL: "/main/vulnerability-management/cluster/c1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[store.Session](t, resp)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+sess.ID+"/actions", navigator.Action{Op: navigator.OpPushList, Type: e.ImageCVE})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/reports?type=navigation&session_id="+sess.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "wayfinder_navigation_")

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "push_list", records[1][3])
	assert.Equal(t, "/main/vulnerability-management/cluster/c1", records[1][6])
	assert.Equal(t, "/main/vulnerability-management/cluster/c1/image-cves", records[1][7])

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/reports?type=sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records, err = csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, sess.ID, records[1][0])
}

func TestReports_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		query string
		code  string
	}{
		{"", "missing_type"},
		{"type=usage", "invalid_report_type"},
		{"type=events&from=yesterday", "invalid_from"},
		{"type=events&to=tomorrow", "invalid_to"},
		{"type=events&limit=-1", "invalid_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			resp := doJSON(t, http.MethodGet, srv.URL+"/v1/reports?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Error)
		})
	}

	disabled := httptest.NewServer(NewServer(&mockNavigator{}, nil, logging.Discard(), "").Handler())
	defer disabled.Close()
	resp := doJSON(t, http.MethodGet, disabled.URL+"/v1/reports?type=events", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

type mockNavigator struct {
	mock.Mock
}

func (m *mockNavigator) Open(ctx context.Context, rawURL string) (store.Session, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(store.Session), args.Error(1)
}

func (m *mockNavigator) Create(ctx context.Context, state workflow.State) (store.Session, error) {
	args := m.Called(ctx, state)
	return args.Get(0).(store.Session), args.Error(1)
}

func (m *mockNavigator) Apply(ctx context.Context, id string, action navigator.Action) (store.Session, error) {
	args := m.Called(ctx, id, action)
	return args.Get(0).(store.Session), args.Error(1)
}

func (m *mockNavigator) Session(ctx context.Context, id string) (store.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Session), args.Error(1)
}

func (m *mockNavigator) History(ctx context.Context, id string, limit int) ([]*store.Event, error) {
	args := m.Called(ctx, id, limit)
	return args.Get(0).([]*store.Event), args.Error(1)
}

func (m *mockNavigator) List(ctx context.Context, limit int) ([]store.Session, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]store.Session), args.Error(1)
}

func (m *mockNavigator) Close(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestErrorMapping(t *testing.T) {
	nav := new(mockNavigator)
	nav.On("Apply", mock.Anything, "busy", mock.Anything).Return(store.Session{}, navigator.ErrSessionBusy)
	nav.On("Apply", mock.Anything, "stale", mock.Anything).Return(store.Session{}, store.ErrVersionConflict)
	nav.On("Apply", mock.Anything, "broken", mock.Anything).Return(store.Session{}, errors.New("disk on fire"))

	h := NewServer(nav, nil, logging.Discard(), "").Handler()

	tests := []struct {
		id   string
		want int
		code string
	}{
		{"busy", http.StatusConflict, "session_busy"},
		{"stale", http.StatusConflict, "version_conflict"},
		{"broken", http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+tt.id+"/actions", strings.NewReader(`{"op":"pop"}`))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error)
			if tt.want == http.StatusInternalServerError {
				assert.Empty(t, body.Detail, "internal errors are not leaked")
			}
		})
	}
	nav.AssertExpectations(t)
}

func TestRecovery(t *testing.T) {
	nav := new(mockNavigator)
	nav.On("Session", mock.Anything, "boom").Run(func(mock.Arguments) { panic("kaboom") })

	h := NewServer(nav, nil, logging.Discard(), "").Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/boom", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
