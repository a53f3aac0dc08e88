package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polycle/member/internal/sheet"
)

// TasksTab is the tab tasks live in.
const TasksTab = "Tasks"

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Statuses lists the valid task statuses in board order.
var Statuses = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone}

var priorities = []string{PriorityLow, PriorityMedium, PriorityHigh}

const (
	colID          = "id"
	colTitle       = "title"
	colDescription = "description"
	colAssignee    = "assignee"
	colStatus      = "status"
	colPriority    = "priority"
	colDue         = "due"
	colCreatedBy   = "createdBy"
)

var taskHeader = []string{
	colID, colTitle, colDescription, colAssignee, colStatus,
	colPriority, colDue, colCreatedBy, colCreatedAt, colUpdatedAt,
}

// Task is one tracked task.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Due         string    `json:"due,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Open reports whether the task still needs work.
func (t Task) Open() bool { return t.Status != StatusDone }

func (t Task) record() Record {
	return Record{
		colID:          t.ID,
		colTitle:       t.Title,
		colDescription: t.Description,
		colAssignee:    t.Assignee,
		colStatus:      t.Status,
		colPriority:    t.Priority,
		colDue:         t.Due,
		colCreatedBy:   t.CreatedBy,
		colCreatedAt:   formatTime(t.CreatedAt),
		colUpdatedAt:   formatTime(t.UpdatedAt),
	}
}

func taskFromRecord(rec Record) Task {
	return Task{
		ID:          rec[colID],
		Title:       rec[colTitle],
		Description: rec[colDescription],
		Assignee:    NormalizeSlug(rec[colAssignee]),
		Status:      strings.ToLower(rec[colStatus]),
		Priority:    strings.ToLower(rec[colPriority]),
		Due:         rec[colDue],
		CreatedBy:   rec[colCreatedBy],
		CreatedAt:   parseTime(rec[colCreatedAt]),
		UpdatedAt:   parseTime(rec[colUpdatedAt]),
	}
}

// ValidateTask fills defaults and checks enumerations and the due date.
func ValidateTask(t *Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return fmt.Errorf("%w: task title is required", ErrInvalid)
	}
	t.Status = strings.ToLower(strings.TrimSpace(t.Status))
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if !slices.Contains(Statuses, t.Status) {
		return fmt.Errorf("%w: unknown task status %q", ErrInvalid, t.Status)
	}
	t.Priority = strings.ToLower(strings.TrimSpace(t.Priority))
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !slices.Contains(priorities, t.Priority) {
		return fmt.Errorf("%w: unknown task priority %q", ErrInvalid, t.Priority)
	}
	t.Due = strings.TrimSpace(t.Due)
	if t.Due != "" {
		if _, err := time.Parse(DateLayout, t.Due); err != nil {
			return fmt.Errorf("%w: due date %q is not YYYY-MM-DD", ErrInvalid, t.Due)
		}
	}
	t.Assignee = NormalizeSlug(t.Assignee)
	return nil
}

func matchTask(id string) func(Record) bool {
	return func(rec Record) bool { return strings.TrimSpace(rec[colID]) == id }
}

func mergeTask(existing, incoming Record) Record {
	out := Overlay(existing, incoming)
	if existing[colCreatedAt] != "" {
		out[colCreatedAt] = existing[colCreatedAt]
	}
	if existing[colCreatedBy] != "" {
		out[colCreatedBy] = existing[colCreatedBy]
	}
	return out
}

// TaskFilter narrows List. Empty fields match everything.
type TaskFilter struct {
	Assignee string
	Status   string
}

func (f TaskFilter) match(t Task) bool {
	if f.Assignee != "" && t.Assignee != NormalizeSlug(f.Assignee) {
		return false
	}
	if f.Status != "" && t.Status != strings.ToLower(f.Status) {
		return false
	}
	return true
}

// Tasks is the task repository.
type Tasks struct {
	table *Table
	now   func() time.Time
	newID func() string
}

// NewTasks returns a task repository over grid.
func NewTasks(grid sheet.Grid, opts Options) *Tasks {
	return &Tasks{
		table: NewTable(grid, TasksTab, taskHeader, opts),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// List returns matching tasks ordered by due date, undated last, then by
// creation time.
func (r *Tasks) List(ctx context.Context, filter TaskFilter) ([]Task, error) {
	recs, err := r.table.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	out := make([]Task, 0, len(recs))
	for _, rec := range recs {
		t := taskFromRecord(rec)
		if t.ID == "" || !filter.match(t) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Due != b.Due {
			if a.Due == "" || b.Due == "" {
				return b.Due == ""
			}
			return a.Due < b.Due
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

// Get returns the task with id.
func (r *Tasks) Get(ctx context.Context, id string) (Task, error) {
	id = strings.TrimSpace(id)
	recs, err := r.table.Load(ctx)
	if err != nil {
		return Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	for _, rec := range recs {
		if strings.TrimSpace(rec[colID]) == id {
			return taskFromRecord(rec), nil
		}
	}
	return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
}

// Save validates t and upserts it by id, assigning a new id when empty.
// createdAt and createdBy are carried forward from an existing row.
func (r *Tasks) Save(ctx context.Context, t Task) (Task, bool, error) {
	if err := ValidateTask(&t); err != nil {
		return Task{}, false, err
	}
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		t.ID = r.newID()
	}
	now := r.now().UTC()
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	res, err := r.table.Upsert(ctx, t.record(), matchTask(t.ID), mergeTask)
	if err != nil {
		return Task{}, false, fmt.Errorf("saving task %s: %w", t.ID, err)
	}
	return taskFromRecord(res.Record), res.Created, nil
}

// Delete removes the task with id.
func (r *Tasks) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := r.table.Delete(ctx, matchTask(id)); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}

// Ensure creates the Tasks tab when it is missing.
func (r *Tasks) Ensure(ctx context.Context) error {
	return r.table.Ensure(ctx)
}
