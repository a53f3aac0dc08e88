package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polycle/member/internal/retry"
	"github.com/polycle/member/internal/sheet"
)

// Report tabs. Each user writes to DR_<slug>; the shared DR tab predates
// per-user tabs and is still read when aggregating.
const (
	ReportTabPrefix = "DR_"
	LegacyReportTab = "DR"

	// DateLayout is the layout of report dates and task due dates.
	DateLayout = "2006-01-02"

	// DefaultListConcurrency bounds parallel tab reads while aggregating.
	DefaultListConcurrency = 4
)

// Report columns.
const (
	colDate         = "date"
	colUser         = "user"
	colName         = "name"
	colEmail        = "email"
	colDone         = "done"
	colPlan         = "plan"
	colBlockers     = "blockers"
	colNotes        = "notes"
	colCreatedAt    = "createdAt"
	colUpdatedAt    = "updatedAt"
	colSlackTS      = "slackTs"
	colSlackChannel = "slackChannel"
)

var reportHeader = []string{
	colDate, colUser, colName, colEmail,
	colDone, colPlan, colBlockers, colNotes,
	colCreatedAt, colUpdatedAt, colSlackTS, colSlackChannel,
}

// Report is one daily report.
type Report struct {
	Date         string    `json:"date"`
	User         string    `json:"user"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Done         string    `json:"done"`
	Plan         string    `json:"plan"`
	Blockers     string    `json:"blockers,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	SlackTS      string    `json:"slackTs,omitempty"`
	SlackChannel string    `json:"slackChannel,omitempty"`
}

// ReportKey is the natural key of a report.
type ReportKey struct {
	Date string
	User string // normalized slug
}

func (k ReportKey) String() string { return k.Date + "/" + k.User }

// Key returns the report's natural key.
func (r Report) Key() ReportKey {
	return ReportKey{Date: strings.TrimSpace(r.Date), User: NormalizeSlug(r.User)}
}

// Delivered reports whether the report has already been posted to Slack.
func (r Report) Delivered() bool { return r.SlackTS != "" }

func (r Report) record() Record {
	return Record{
		colDate:         r.Date,
		colUser:         r.User,
		colName:         r.Name,
		colEmail:        r.Email,
		colDone:         r.Done,
		colPlan:         r.Plan,
		colBlockers:     r.Blockers,
		colNotes:        r.Notes,
		colCreatedAt:    formatTime(r.CreatedAt),
		colUpdatedAt:    formatTime(r.UpdatedAt),
		colSlackTS:      r.SlackTS,
		colSlackChannel: r.SlackChannel,
	}
}

func reportFromRecord(rec Record) Report {
	return Report{
		Date:         rec[colDate],
		User:         NormalizeSlug(rec[colUser]),
		Name:         rec[colName],
		Email:        rec[colEmail],
		Done:         rec[colDone],
		Plan:         rec[colPlan],
		Blockers:     rec[colBlockers],
		Notes:        rec[colNotes],
		CreatedAt:    parseTime(rec[colCreatedAt]),
		UpdatedAt:    parseTime(rec[colUpdatedAt]),
		SlackTS:      rec[colSlackTS],
		SlackChannel: rec[colSlackChannel],
	}
}

func matchReport(key ReportKey) func(Record) bool {
	return func(rec Record) bool {
		return strings.TrimSpace(rec[colDate]) == key.Date && NormalizeSlug(rec[colUser]) == key.User
	}
}

// mergeReport keeps the first-seen createdAt and never replaces a recorded
// delivery stamp.
func mergeReport(existing, incoming Record) Record {
	out := Overlay(existing, incoming)
	if existing[colCreatedAt] != "" {
		out[colCreatedAt] = existing[colCreatedAt]
	}
	if existing[colSlackTS] != "" {
		out[colSlackTS] = existing[colSlackTS]
		out[colSlackChannel] = existing[colSlackChannel]
	}
	return out
}

// ReportTab returns the per-user tab title for slug.
func ReportTab(slug string) string {
	return ReportTabPrefix + slug
}

// isReportTab reports whether tab holds reports and, for per-user tabs,
// the slug it belongs to.
func isReportTab(tab string) (slug string, ok bool) {
	if tab == LegacyReportTab {
		return "", true
	}
	if strings.HasPrefix(tab, ReportTabPrefix) {
		return NormalizeSlug(strings.TrimPrefix(tab, ReportTabPrefix)), true
	}
	return "", false
}

// ReportFilter narrows List. Empty fields match everything.
type ReportFilter struct {
	From string // inclusive, YYYY-MM-DD
	To   string // inclusive, YYYY-MM-DD
	User string
}

func (f ReportFilter) match(r Report) bool {
	if f.From != "" && r.Date < f.From {
		return false
	}
	if f.To != "" && r.Date > f.To {
		return false
	}
	if f.User != "" && r.User != NormalizeSlug(f.User) {
		return false
	}
	return true
}

// Reports is the daily report repository.
type Reports struct {
	grid        sheet.Grid
	opts        Options
	now         func() time.Time
	concurrency int
}

// NewReports returns a report repository over grid.
func NewReports(grid sheet.Grid, opts Options) *Reports {
	return &Reports{
		grid:        grid,
		opts:        opts.withDefaults(),
		now:         time.Now,
		concurrency: DefaultListConcurrency,
	}
}

func (r *Reports) table(slug string) *Table {
	return NewTable(r.grid, ReportTab(slug), reportHeader, r.opts)
}

// Save upserts rep into its user's tab. createdAt and the Slack stamp are
// carried forward from an existing row. It returns the report as stored
// and whether a new row was created.
func (r *Reports) Save(ctx context.Context, rep Report) (Report, bool, error) {
	key := rep.Key()
	if key.User == "" {
		return Report{}, false, fmt.Errorf("%w: report user is required", ErrInvalid)
	}
	if key.Date == "" {
		return Report{}, false, fmt.Errorf("%w: report date is required", ErrInvalid)
	}

	now := r.now().UTC()
	rep.Date = key.Date
	rep.User = key.User
	rep.UpdatedAt = now
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = now
	}

	if rep.SlackTS == "" {
		legacy, ok, err := r.legacy(ctx, key)
		if err != nil {
			return Report{}, false, fmt.Errorf("saving report %s: %w", key, err)
		}
		if ok && legacy.Delivered() {
			rep.SlackTS = legacy.SlackTS
			rep.SlackChannel = legacy.SlackChannel
		}
		if ok && !legacy.CreatedAt.IsZero() && legacy.CreatedAt.Before(rep.CreatedAt) {
			rep.CreatedAt = legacy.CreatedAt
		}
	}

	res, err := r.table(key.User).Upsert(ctx, rep.record(), matchReport(key), mergeReport)
	if err != nil {
		return Report{}, false, fmt.Errorf("saving report %s: %w", key, err)
	}
	r.opts.Logger.Debug("saved report",
		zap.String("key", key.String()),
		zap.Bool("created", res.Created),
	)
	return reportFromRecord(res.Record), res.Created, nil
}

// legacy returns the copy of key held in the shared DR tab, if any. Its
// delivery stamp counts even though the row is never written again.
func (r *Reports) legacy(ctx context.Context, key ReportKey) (Report, bool, error) {
	recs, err := NewTable(r.grid, LegacyReportTab, reportHeader, r.opts).Load(ctx)
	if err != nil {
		return Report{}, false, err
	}
	match := matchReport(key)
	var (
		found Report
		ok    bool
	)
	for _, rec := range recs {
		if !match(rec) {
			continue
		}
		rep := reportFromRecord(rec)
		if ok {
			rep = pickReport(found, rep)
		}
		found, ok = rep, true
	}
	return found, ok, nil
}

// Ensure creates the report tab for slug when it is missing.
func (r *Reports) Ensure(ctx context.Context, slug string) error {
	slug = NormalizeSlug(slug)
	if slug == "" {
		return fmt.Errorf("%w: report tab needs a user", ErrInvalid)
	}
	return r.table(slug).Ensure(ctx)
}

// MarkDelivered stamps the report with the Slack message it was posted as.
func (r *Reports) MarkDelivered(ctx context.Context, key ReportKey, ts, channel string) error {
	_, err := r.table(key.User).Update(ctx, matchReport(key), func(rec Record) Record {
		rec[colSlackTS] = ts
		rec[colSlackChannel] = channel
		return rec
	})
	if err != nil {
		return fmt.Errorf("marking report %s delivered: %w", key, err)
	}
	return nil
}

// Get returns the merged report for date and user.
func (r *Reports) Get(ctx context.Context, date, user string) (Report, error) {
	reports, err := r.List(ctx, ReportFilter{From: date, To: date, User: user})
	if err != nil {
		return Report{}, err
	}
	if len(reports) == 0 {
		return Report{}, fmt.Errorf("%w: report %s/%s", ErrNotFound, date, NormalizeSlug(user))
	}
	return reports[0], nil
}

// List aggregates reports from every report tab, de-duplicated by key and
// sorted newest date first.
func (r *Reports) List(ctx context.Context, filter ReportFilter) ([]Report, error) {
	tabs, err := retry.Value(ctx, r.opts.Policy, func(ctx context.Context) ([]string, error) {
		return r.grid.Tabs(ctx)
	}, logRetry(r.opts.Logger, "", sheet.OpTabs))
	if err != nil {
		return nil, fmt.Errorf("listing report tabs: %w", err)
	}

	wantUser := NormalizeSlug(filter.User)
	var targets []string
	for _, tab := range tabs {
		slug, ok := isReportTab(tab)
		if !ok {
			continue
		}
		if wantUser != "" && slug != "" && slug != wantUser {
			continue
		}
		targets = append(targets, tab)
	}

	var (
		mu     sync.Mutex
		merged = make(map[ReportKey]Report)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, tab := range targets {
		tab := tab
		g.Go(func() error {
			recs, err := NewTable(r.grid, tab, reportHeader, r.opts).Load(gctx)
			if err != nil {
				return err
			}
			tabSlug, _ := isReportTab(tab)

			mu.Lock()
			defer mu.Unlock()
			for _, rec := range recs {
				rep := reportFromRecord(rec)
				if rep.User == "" {
					rep.User = tabSlug
				}
				if rep.User == "" || rep.Date == "" {
					continue
				}
				key := rep.Key()
				if prev, ok := merged[key]; ok {
					rep = pickReport(prev, rep)
				}
				merged[key] = rep
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregating reports: %w", err)
	}

	out := make([]Report, 0, len(merged))
	for _, rep := range merged {
		if filter.match(rep) {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].User < out[j].User
	})
	return out, nil
}

// pickReport resolves two copies of the same report. The most recently
// updated copy wins; the earliest createdAt and any delivery stamp survive.
func pickReport(a, b Report) Report {
	winner, other := a, b
	if b.UpdatedAt.After(a.UpdatedAt) {
		winner, other = b, a
	}
	if winner.SlackTS == "" && other.SlackTS != "" {
		winner.SlackTS = other.SlackTS
		winner.SlackChannel = other.SlackChannel
	}
	if !other.CreatedAt.IsZero() && (winner.CreatedAt.IsZero() || other.CreatedAt.Before(winner.CreatedAt)) {
		winner.CreatedAt = other.CreatedAt
	}
	return winner
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime accepts RFC3339 and the spreadsheet's own date-time rendering.
// Unparseable cells read as the zero time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006/01/02 15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
