package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	// DefaultRequestsPerMinute is the per-user Sheets API read/write quota.
	DefaultRequestsPerMinute = 60

	valueInputRaw     = "RAW"
	valueRenderFormat = "FORMATTED_VALUE"
)

// Client is a rate-limited Grid backed by the Google Sheets API.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	limiter       *rate.Limiter

	mu       sync.Mutex
	sheetIDs map[string]int64 // tab title -> numeric sheet id
}

type clientSettings struct {
	credentialsFile string
	httpClient      *http.Client
	endpoint        string
	perMinute       int
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings)

// WithCredentialsFile authenticates with a service account JSON key.
func WithCredentialsFile(path string) ClientOption {
	return func(s *clientSettings) {
		s.credentialsFile = path
	}
}

// WithHTTPClient sets a custom HTTP client. It bypasses credential handling.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(s *clientSettings) {
		s.httpClient = hc
	}
}

// WithEndpoint sets a custom API base URL (for testing).
func WithEndpoint(url string) ClientOption {
	return func(s *clientSettings) {
		s.endpoint = url
	}
}

// WithRequestsPerMinute caps outgoing calls. Zero or less disables the limit.
func WithRequestsPerMinute(n int) ClientOption {
	return func(s *clientSettings) {
		s.perMinute = n
	}
}

// NewClient creates a Sheets client for one spreadsheet.
func NewClient(ctx context.Context, spreadsheetID string, opts ...ClientOption) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	settings := clientSettings{perMinute: DefaultRequestsPerMinute}
	for _, opt := range opts {
		opt(&settings)
	}

	var gopts []option.ClientOption
	switch {
	case settings.httpClient != nil:
		gopts = append(gopts, option.WithHTTPClient(settings.httpClient))
	case settings.credentialsFile != "":
		gopts = append(gopts,
			option.WithCredentialsFile(settings.credentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	}
	if settings.endpoint != "" {
		gopts = append(gopts, option.WithEndpoint(settings.endpoint))
	}

	svc, err := sheets.NewService(ctx, gopts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	limit := rate.Inf
	if settings.perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(settings.perMinute))
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		limiter:       rate.NewLimiter(limit, 1),
		sheetIDs:      make(map[string]int64),
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// Tabs lists tab titles and refreshes the sheet id cache.
func (c *Client) Tabs(ctx context.Context) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing tabs: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties == nil {
			continue
		}
		titles = append(titles, s.Properties.Title)
		c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
	}
	return titles, nil
}

func (c *Client) CreateTab(ctx context.Context, tab string, header []string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: tab},
			},
		}},
	}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating tab %s: %w", tab, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		c.mu.Lock()
		c.sheetIDs[tab] = resp.Replies[0].AddSheet.Properties.SheetId
		c.mu.Unlock()
	}

	if len(header) == 0 {
		return nil
	}
	return c.UpdateRow(ctx, tab, 1, header)
}

func (c *Client) Rows(ctx context.Context, tab string) ([][]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	vr, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, TabRange(tab)).
		ValueRenderOption(valueRenderFormat).
		Context(ctx).Do()
	if err != nil {
		return nil, mapError(tab, "reading rows", err)
	}

	rows := make([][]string, len(vr.Values))
	for i, r := range vr.Values {
		row := make([]string, len(r))
		for j, v := range r {
			row[j] = cellString(v)
		}
		rows[i] = row
	}
	return rows, nil
}

func (c *Client) AppendRow(ctx context.Context, tab string, row []string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, TabRange(tab), valueRange(row)).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return mapError(tab, "appending row", err)
	}
	return nil
}

func (c *Client) UpdateRow(ctx context.Context, tab string, rowNum int, row []string) error {
	if rowNum < 1 {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, tab, rowNum)
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, RowRange(tab, rowNum, len(row)), valueRange(row)).
		ValueInputOption(valueInputRaw).
		Context(ctx).Do()
	if err != nil {
		return mapError(tab, "updating row", err)
	}
	return nil
}

func (c *Client) DeleteRow(ctx context.Context, tab string, rowNum int) error {
	if rowNum < 1 {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, tab, rowNum)
	}
	sheetID, err := c.sheetID(ctx, tab)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowNum - 1),
					EndIndex:   int64(rowNum),
					// sheet 0 and row index 0 are meaningful values
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return mapError(tab, "deleting row", err)
	}
	return nil
}

// sheetID resolves a tab title to its numeric id, refreshing the cache once.
func (c *Client) sheetID(ctx context.Context, tab string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[tab]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := c.Tabs(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok = c.sheetIDs[tab]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	return id, nil
}

func valueRange(row []string) *sheets.ValueRange {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return &sheets.ValueRange{Values: [][]interface{}{cells}}
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// mapError turns "Unable to parse range" responses into ErrTabNotFound.
// The Sheets API reports a missing tab that way instead of with a 404.
func mapError(tab, action string, err error) error {
	if IsRangeNotFound(err) {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	return fmt.Errorf("%s in %s: %w", action, tab, err)
}

// IsRangeNotFound reports whether err is the Sheets API's missing-range error.
func IsRangeNotFound(err error) bool {
	if errors.Is(err, ErrTabNotFound) {
		return true
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code != http.StatusBadRequest && gerr.Code != http.StatusNotFound {
		return false
	}
	return strings.Contains(strings.ToLower(gerr.Message), "unable to parse range")
}
