package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycle/member/internal/sheet"
)

func newTestTasks(grid sheet.Grid) *Tasks {
	r := NewTasks(grid, testOptions())
	r.now = clock(t0)
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
	return r
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		in      Task
		want    Task
		wantErr bool
	}{
		{
			name: "defaults",
			in:   Task{Title: "  write docs ", Assignee: "Ken Sato"},
			want: Task{Title: "write docs", Assignee: "ken-sato", Status: StatusTodo, Priority: PriorityMedium},
		},
		{
			name: "normalizes case",
			in:   Task{Title: "x", Status: "In_Progress", Priority: "HIGH", Due: "2026-11-01"},
			want: Task{Title: "x", Status: StatusInProgress, Priority: PriorityHigh, Due: "2026-11-01"},
		},
		{name: "no title", in: Task{Title: " "}, wantErr: true},
		{name: "bad status", in: Task{Title: "x", Status: "blocked"}, wantErr: true},
		{name: "bad priority", in: Task{Title: "x", Priority: "urgent"}, wantErr: true},
		{name: "bad due", in: Task{Title: "x", Due: "11/01/2026"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			err := ValidateTask(&got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTasks_SaveAssignsIDAndUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	grid := sheet.NewMemory()
	tasks := newTestTasks(grid)

	created, isNew, err := tasks.Save(ctx, Task{Title: "ship", CreatedBy: "ken"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "task-1", created.ID)
	assert.Equal(t, StatusTodo, created.Status)

	updated, isNew, err := tasks.Save(ctx, Task{ID: created.ID, Title: "ship it", Status: StatusDone, CreatedBy: "aki"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "ship it", updated.Title)
	assert.Equal(t, "ken", updated.CreatedBy, "createdBy carried forward")
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.Open())

	rows, err := grid.Rows(ctx, TasksTab)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTasks_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	tasks := newTestTasks(sheet.NewMemory())

	_, err := tasks.Get(ctx, "task-1")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, _, err := tasks.Save(ctx, Task{Title: "a"})
	require.NoError(t, err)

	got, err := tasks.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	require.NoError(t, tasks.Delete(ctx, saved.ID))
	assert.ErrorIs(t, tasks.Delete(ctx, saved.ID), ErrNotFound)
	_, err = tasks.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTasks_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	tasks := newTestTasks(sheet.NewMemory())
	for _, in := range []Task{
		{Title: "undated", Assignee: "ken"},
		{Title: "later", Assignee: "ken", Due: "2026-11-02"},
		{Title: "sooner", Assignee: "aki", Due: "2026-11-01", Status: StatusReview},
		{Title: "done", Assignee: "ken", Due: "2026-10-01", Status: StatusDone},
	} {
		_, _, err := tasks.Save(ctx, in)
		require.NoError(t, err)
	}

	titles := func(ts []Task) []string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = t.Title
		}
		return out
	}

	all, err := tasks.List(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "sooner", "later", "undated"}, titles(all))

	kens, err := tasks.List(ctx, TaskFilter{Assignee: "Ken"})
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "later", "undated"}, titles(kens))

	review, err := tasks.List(ctx, TaskFilter{Status: "REVIEW"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sooner"}, titles(review))
}

func TestTasks_ListMissingTab(t *testing.T) {
	got, err := newTestTasks(sheet.NewMemory()).List(context.Background(), TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
