package sheet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// fakeSheetsAPI records requests and answers with canned JSON bodies.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r *http.Request, body string)
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(data)})
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.handle(w, r, string(data))
}

func newTestClient(t *testing.T, fake *fakeSheetsAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "sheet-1",
		WithHTTPClient(srv.Client()),
		WithEndpoint(srv.URL+"/"),
		WithRequestsPerMinute(0),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresSpreadsheetID(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_Rows(t *testing.T) {
	fake := &fakeSheetsAPI{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		io.WriteString(w, `{"range":"'Tasks'!A1:C3","majorDimension":"ROWS",
			"values":[["id","title","points"],["t1","Write docs",3],["t2"]]}`)
	}}
	c := newTestClient(t, fake)

	rows, err := c.Rows(context.Background(), "Tasks")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "title", "points"}, {"t1", "Write docs", "3"}, {"t2"}}, rows)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, http.MethodGet, fake.requests[0].Method)
	assert.True(t, strings.HasPrefix(fake.requests[0].Path, "/v4/spreadsheets/sheet-1/values/"))
}

func TestClient_RowsMissingTab(t *testing.T) {
	fake := &fakeSheetsAPI{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"Unable to parse range: 'DR_ghost'","status":"INVALID_ARGUMENT"}}`)
	}}
	c := newTestClient(t, fake)

	_, err := c.Rows(context.Background(), "DR_ghost")
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestClient_RowsServerError(t *testing.T) {
	fake := &fakeSheetsAPI{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"code":503,"message":"The service is currently unavailable.","status":"UNAVAILABLE"}}`)
	}}
	c := newTestClient(t, fake)

	_, err := c.Rows(context.Background(), "Tasks")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTabNotFound)

	var gerr *googleapi.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusServiceUnavailable, gerr.Code)
}

func TestClient_AppendRow(t *testing.T) {
	fake := &fakeSheetsAPI{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		io.WriteString(w, `{"spreadsheetId":"sheet-1","updates":{"updatedRows":1}}`)
	}}
	c := newTestClient(t, fake)

	require.NoError(t, c.AppendRow(context.Background(), "Tasks", []string{"t3", "Ship it"}))

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.True(t, strings.HasSuffix(req.Path, ":append"), req.Path)

	var body struct {
		Values [][]string `json:"values"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	assert.Equal(t, [][]string{{"t3", "Ship it"}}, body.Values)
}

func TestClient_UpdateRowRejectsHeaderOffset(t *testing.T) {
	fake := &fakeSheetsAPI{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		t.Errorf("no request expected, got %s %s", r.Method, r.URL.Path)
	}}
	c := newTestClient(t, fake)
	assert.ErrorIs(t, c.UpdateRow(context.Background(), "Tasks", 0, []string{"x"}), ErrRowOutOfRange)
}

func TestClient_DeleteRowResolvesSheetID(t *testing.T) {
	fake := &fakeSheetsAPI{}
	fake.handle = func(w http.ResponseWriter, r *http.Request, body string) {
		switch {
		case r.Method == http.MethodGet:
			io.WriteString(w, `{"sheets":[{"properties":{"sheetId":0,"title":"Members"}},{"properties":{"sheetId":42,"title":"Tasks"}}]}`)
		case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
			io.WriteString(w, `{"spreadsheetId":"sheet-1","replies":[{}]}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}
	c := newTestClient(t, fake)

	require.NoError(t, c.DeleteRow(context.Background(), "Tasks", 4))

	require.Len(t, fake.requests, 2)
	var body struct {
		Requests []struct {
			DeleteDimension struct {
				Range struct {
					SheetID    int64  `json:"sheetId"`
					Dimension  string `json:"dimension"`
					StartIndex int64  `json:"startIndex"`
					EndIndex   int64  `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal([]byte(fake.requests[1].Body), &body))
	require.Len(t, body.Requests, 1)
	rng := body.Requests[0].DeleteDimension.Range
	assert.Equal(t, int64(42), rng.SheetID)
	assert.Equal(t, "ROWS", rng.Dimension)
	assert.Equal(t, int64(3), rng.StartIndex)
	assert.Equal(t, int64(4), rng.EndIndex)

	// second delete hits the cached id
	require.NoError(t, c.DeleteRow(context.Background(), "Tasks", 2))
	assert.Len(t, fake.requests, 3)
}

func TestClient_DeleteRowUnknownTab(t *testing.T) {
	fake := &fakeSheetsAPI{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		io.WriteString(w, `{"sheets":[{"properties":{"sheetId":7,"title":"Tasks"}}]}`)
	}}
	c := newTestClient(t, fake)

	assert.ErrorIs(t, c.DeleteRow(context.Background(), "ghost", 2), ErrTabNotFound)
}

func TestIsRangeNotFound(t *testing.T) {
	assert.True(t, IsRangeNotFound(&googleapi.Error{Code: 400, Message: "Unable to parse range: 'x'!A1"}))
	assert.True(t, IsRangeNotFound(ErrTabNotFound))
	assert.False(t, IsRangeNotFound(&googleapi.Error{Code: 400, Message: "Invalid value"}))
	assert.False(t, IsRangeNotFound(&googleapi.Error{Code: 500, Message: "Unable to parse range"}))
	assert.False(t, IsRangeNotFound(io.EOF))
}
