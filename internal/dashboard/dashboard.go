// Package dashboard builds the team overview for one day.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polycle/member/internal/store"
)

// Window is how many days of reports, ending on the dashboard date, count
// as recent.
const Window = 7

// Sources are the repositories a dashboard reads.
type Sources struct {
	Members interface {
		List(ctx context.Context) ([]store.Member, error)
	}
	Reports interface {
		List(ctx context.Context, filter store.ReportFilter) ([]store.Report, error)
	}
	Tasks interface {
		List(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	}
}

// MemberStatus is one row of the submission board.
type MemberStatus struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Submitted bool   `json:"submitted"`
	Delivered bool   `json:"delivered"`
}

// Dashboard is the overview for Date as seen by Viewer.
type Dashboard struct {
	Date          string         `json:"date"`
	Viewer        string         `json:"viewer"`
	Members       []MemberStatus `json:"members"`
	Submitted     int            `json:"submitted"`
	TaskCounts    map[string]int `json:"taskCounts"`
	MyOpenTasks   []store.Task   `json:"myOpenTasks"`
	RecentReports int            `json:"recentReports"`
}

// Build reads members, recent reports and tasks concurrently and combines
// them. date must be YYYY-MM-DD.
func Build(ctx context.Context, src Sources, date, viewer string) (*Dashboard, error) {
	day, err := time.Parse(store.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", store.ErrInvalid, date)
	}
	from := day.AddDate(0, 0, -(Window - 1)).Format(store.DateLayout)
	viewer = store.NormalizeSlug(viewer)

	var (
		members []store.Member
		reports []store.Report
		tasks   []store.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = src.Members.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		reports, err = src.Reports.List(gctx, store.ReportFilter{From: from, To: date})
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = src.Tasks.List(gctx, store.TaskFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building dashboard: %w", err)
	}

	d := &Dashboard{
		Date:          date,
		Viewer:        viewer,
		TaskCounts:    make(map[string]int, len(store.Statuses)),
		MyOpenTasks:   []store.Task{},
		RecentReports: len(reports),
	}

	today := make(map[string]store.Report)
	for _, r := range reports {
		if r.Date == date {
			today[r.User] = r
		}
	}

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		seen[m.Slug] = true
		r, ok := today[m.Slug]
		d.Members = append(d.Members, MemberStatus{
			Slug:      m.Slug,
			Name:      m.Name,
			Submitted: ok,
			Delivered: ok && r.Delivered(),
		})
	}
	// people who report without having logged in yet
	for slug, r := range today {
		if seen[slug] {
			continue
		}
		d.Members = append(d.Members, MemberStatus{Slug: slug, Name: r.Name, Submitted: true, Delivered: r.Delivered()})
	}
	sort.Slice(d.Members, func(i, j int) bool { return d.Members[i].Slug < d.Members[j].Slug })
	for _, m := range d.Members {
		if m.Submitted {
			d.Submitted++
		}
	}

	for _, s := range store.Statuses {
		d.TaskCounts[s] = 0
	}
	for _, t := range tasks {
		d.TaskCounts[t.Status]++
		if viewer != "" && t.Assignee == viewer && t.Open() {
			d.MyOpenTasks = append(d.MyOpenTasks, t)
		}
	}
	return d, nil
}
