package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycle/member/internal/sheet"
	"github.com/polycle/member/internal/store"
)

func seeded(t *testing.T) Sources {
	t.Helper()
	ctx := context.Background()
	grid := sheet.NewMemory()
	opts := store.Options{}
	members := store.NewMembers(grid, opts)
	reports := store.NewReports(grid, opts)
	tasks := store.NewTasks(grid, opts)

	for _, m := range []store.Member{{Name: "Ken"}, {Name: "Aki"}, {Name: "Zoe"}} {
		_, err := members.Upsert(ctx, m)
		require.NoError(t, err)
	}
	for _, r := range []store.Report{
		{Date: "2026-10-19", User: "ken", Done: "x"},
		{Date: "2026-10-19", User: "guest", Name: "Guest", Done: "x"},
		{Date: "2026-10-18", User: "aki", Done: "x"},
		{Date: "2026-10-12", User: "aki", Done: "x"},
		{Date: "2026-10-20", User: "aki", Done: "x"},
	} {
		_, _, err := reports.Save(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, reports.MarkDelivered(ctx, store.ReportKey{Date: "2026-10-19", User: "ken"}, "1.1", "C1"))
	for _, task := range []store.Task{
		{Title: "a", Assignee: "ken"},
		{Title: "b", Assignee: "ken", Status: store.StatusDone},
		{Title: "c", Assignee: "aki", Status: store.StatusReview},
	} {
		_, _, err := tasks.Save(ctx, task)
		require.NoError(t, err)
	}
	return Sources{Members: members, Reports: reports, Tasks: tasks}
}

func TestBuild(t *testing.T) {
	d, err := Build(context.Background(), seeded(t), "2026-10-19", "Ken")
	require.NoError(t, err)

	assert.Equal(t, "ken", d.Viewer)
	assert.Equal(t, []MemberStatus{
		{Slug: "aki", Name: "Aki"},
		{Slug: "guest", Name: "Guest", Submitted: true},
		{Slug: "ken", Name: "Ken", Submitted: true, Delivered: true},
		{Slug: "zoe", Name: "Zoe"},
	}, d.Members)
	assert.Equal(t, 2, d.Submitted)
	assert.Equal(t, 3, d.RecentReports, "10-13..10-19 only")
	assert.Equal(t, map[string]int{
		store.StatusTodo: 1, store.StatusInProgress: 0, store.StatusReview: 1, store.StatusDone: 1,
	}, d.TaskCounts)
	require.Len(t, d.MyOpenTasks, 1)
	assert.Equal(t, "a", d.MyOpenTasks[0].Title)
}

func TestBuild_BadDate(t *testing.T) {
	_, err := Build(context.Background(), seeded(t), "today", "ken")
	assert.ErrorIs(t, err, store.ErrInvalid)
}

type failingTasks struct{}

func (failingTasks) List(context.Context, store.TaskFilter) ([]store.Task, error) {
	return nil, errors.New("boom")
}

func TestBuild_ReadFailure(t *testing.T) {
	src := seeded(t)
	src.Tasks = failingTasks{}
	_, err := Build(context.Background(), src, "2026-10-19", "ken")
	assert.ErrorContains(t, err, "boom")
}
