package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycle/member/internal/auth"
	"github.com/polycle/member/internal/dailyreport"
	"github.com/polycle/member/internal/retry"
	"github.com/polycle/member/internal/sheet"
	"github.com/polycle/member/internal/slack"
	"github.com/polycle/member/internal/store"
)

// MockNotifier implements dailyreport.Notifier for testing.
type MockNotifier struct {
	PostFunc func(ctx context.Context, text, userToken string) (slack.Delivery, error)
	Calls    int
}

func (m *MockNotifier) Post(ctx context.Context, text, userToken string) (slack.Delivery, error) {
	m.Calls++
	if m.PostFunc != nil {
		return m.PostFunc(ctx, text, userToken)
	}
	return slack.Delivery{Channel: "C1", TS: "100.1", Via: slack.ViaUser}, nil
}

// MockProvider implements auth.Provider for testing.
type MockProvider struct {
	ExchangeFunc func(ctx context.Context, code string) (auth.Identity, error)
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) AuthCodeURL(state string) string {
	return "https://idp.example/authorize?state=" + url.QueryEscape(state)
}

func (m *MockProvider) Exchange(ctx context.Context, code string) (auth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	return auth.Identity{Provider: "mock", Name: "Ken Sato", Email: "ken@polycle.jp", SlackToken: "xoxp-1"}, nil
}

// testServer wraps a Server over an in-memory spreadsheet.
type testServer struct {
	server   *Server
	grid     *sheet.Memory
	sessions *auth.SessionStore
	notifier *MockNotifier
	provider *MockProvider
	reports  *store.Reports
	tasks    *store.Tasks
	members  *store.Members
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	grid := sheet.NewMemory()
	opts := store.Options{Policy: retry.Policy{MaxAttempts: 1}}
	reports := store.NewReports(grid, opts)
	tasks := store.NewTasks(grid, opts)
	members := store.NewMembers(grid, opts)

	sessions, err := auth.OpenSessionStore(filepath.Join(t.TempDir(), "s.db"), auth.NewSealer("k"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	notifier := &MockNotifier{}
	provider := &MockProvider{}
	srv := NewServer(Deps{
		Reports:   reports,
		Tasks:     tasks,
		Members:   members,
		Submitter: dailyreport.NewService(reports, notifier, nil),
		Sessions:  sessions,
		Providers: auth.Providers{"mock": provider},
	})
	srv.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	return &testServer{
		server:   srv,
		grid:     grid,
		sessions: sessions,
		notifier: notifier,
		provider: provider,
		reports:  reports,
		tasks:    tasks,
		members:  members,
	}
}

// login creates a session directly and returns its cookie.
func (ts *testServer) login(t *testing.T, user string) *http.Cookie {
	t.Helper()
	sess, err := ts.sessions.Create(context.Background(), auth.Session{
		User: user, Name: user, Provider: "mock", SlackToken: "xoxp-" + user,
	})
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookie, Value: sess.ID}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestAPIRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = ts.do(t, http.MethodGet, "/api/me", nil, &http.Cookie{Name: sessionCookie, Value: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/me", nil, ts.login(t, "ken"))
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2026-10-19", body["today"])
	assert.Equal(t, "ken", body["user"].(map[string]any)["user"])
	assert.NotContains(t, w.Body.String(), "xoxp-ken")
}

func TestSubmitReport(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "ken")

	w := ts.do(t, http.MethodPost, "/api/reports", gin.H{"done": "shipped"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode(t, w)["result"].(map[string]any)
	assert.Equal(t, "sent", res["delivery"])
	assert.Equal(t, "2026-10-19", res["report"].(map[string]any)["date"])

	w = ts.do(t, http.MethodPost, "/api/reports", gin.H{"done": "shipped more"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode(t, w)["result"].(map[string]any)
	assert.Equal(t, "already_sent", res["delivery"])
	assert.Equal(t, 1, ts.notifier.Calls)

	w = ts.do(t, http.MethodGet, "/api/reports/2026-10-19", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode(t, w)["report"].(map[string]any)
	assert.Equal(t, "shipped more", rep["done"])
	assert.Equal(t, "100.1", rep["slackTs"])
}

func TestSubmitReport_Validation(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "ken")

	tests := []struct {
		name string
		body any
	}{
		{"empty", gin.H{}},
		{"bad date", gin.H{"date": "10/19", "done": "x"}},
		{"not json", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/reports", tt.body, cookie)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Equal(t, 0, ts.notifier.Calls)
}

func TestSubmitReport_WriteFailureIsGeneric(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "ken")
	ts.grid.FailNext(sheet.OpRows, errors.New("sheets quota exhausted for project 1234"))

	w := ts.do(t, http.MethodPost, "/api/reports", gin.H{"done": "x"}, cookie)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "1234")
}

func TestListAndGetReports(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "ken")
	ctx := context.Background()
	for _, r := range []store.Report{
		{Date: "2026-10-18", User: "aki", Done: "x"},
		{Date: "2026-10-19", User: "aki", Done: "y"},
	} {
		_, _, err := ts.reports.Save(ctx, r)
		require.NoError(t, err)
	}

	w := ts.do(t, http.MethodGet, "/api/reports?from=2026-10-19", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = ts.do(t, http.MethodGet, "/api/reports?from=yesterday", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/reports/2026-10-18?user=aki", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/reports/2026-10-18", nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/reports/today?user=aki", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "y", decode(t, w)["report"].(map[string]any)["done"])
}

func TestTaskCRUD(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "ken")

	w := ts.do(t, http.MethodPost, "/api/tasks", gin.H{"title": "ship", "assignee": "Aki"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode(t, w)["task"].(map[string]any)
	id := task["id"].(string)
	assert.Equal(t, "ken", task["createdBy"])
	assert.Equal(t, "aki", task["assignee"])
	assert.Equal(t, "todo", task["status"])

	w = ts.do(t, http.MethodPut, "/api/tasks/"+id, gin.H{"title": "ship it", "status": "done"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ken", decode(t, w)["task"].(map[string]any)["createdBy"])

	w = ts.do(t, http.MethodGet, "/api/tasks?status=done", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = ts.do(t, http.MethodPut, "/api/tasks/nope", gin.H{"title": "x"}, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/tasks", gin.H{"title": "x", "priority": "urgent"}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/tasks/"+id, nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/api/tasks/"+id, nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMembersAndDashboard(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "ken")
	ctx := context.Background()
	_, err := ts.members.Upsert(ctx, store.Member{Name: "Ken"})
	require.NoError(t, err)
	_, _, err = ts.reports.Save(ctx, store.Report{Date: "2026-10-19", User: "ken", Done: "x"})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/members", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = ts.do(t, http.MethodGet, "/api/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode(t, w)["dashboard"].(map[string]any)
	assert.Equal(t, "2026-10-19", d["date"])
	assert.Equal(t, float64(1), d["submitted"])

	w = ts.do(t, http.MethodGet, "/api/dashboard?date=soon", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/auth/mock/login", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateC *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookie {
			stateC = c
		}
	}
	require.NotNil(t, stateC)
	assert.Equal(t, state, stateC.Value)

	// wrong state
	w = ts.do(t, http.MethodGet, "/auth/mock/callback?code=c&state=other", nil, stateC)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/auth/mock/callback?code=c&state="+url.QueryEscape(state), nil, stateC)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/api/me", w.Header().Get("Location"))

	var sessC *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			sessC = c
		}
	}
	require.NotNil(t, sessC)

	sess, err := ts.sessions.Get(context.Background(), sessC.Value)
	require.NoError(t, err)
	assert.Equal(t, "ken", sess.User, "slug derived from the email")
	assert.Equal(t, "xoxp-1", sess.SlackToken)

	m, err := ts.members.List(context.Background())
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, "Ken Sato", m[0].Name)

	w = ts.do(t, http.MethodPost, "/auth/logout", nil, sessC)
	assert.Equal(t, http.StatusOK, w.Code)
	_, err = ts.sessions.Get(context.Background(), sessC.Value)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestLoginFailures(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/auth/github/login", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	state := &http.Cookie{Name: stateCookie, Value: "s"}
	w = ts.do(t, http.MethodGet, "/auth/mock/callback?error=access_denied&state=s", nil, state)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ts.provider.ExchangeFunc = func(context.Context, string) (auth.Identity, error) {
		return auth.Identity{}, errors.New("invalid_grant")
	}
	w = ts.do(t, http.MethodGet, "/auth/mock/callback?code=c&state=s", nil, state)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "sign-in failed", decode(t, w)["error"])
}
