package main

import (
	"github.com/spf13/cobra"

	"github.com/polycle/member/internal/store"
)

var taskSaveFlags struct {
	id          string
	title       string
	description string
	assignee    string
	status      string
	priority    string
	due         string
	createdBy   string
}

var taskSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a task, or update one with --id",
	Long: `Create a task, or update an existing one when --id is given.

On update only the flags that are passed change; other fields keep their
stored values.

Examples:
  member task save --title "Write onboarding doc" --assignee aki --due 2026-11-01
  member task save --id 5b0c... --status done`,
	Args: cobra.NoArgs,
	Run:  runTaskSave,
}

func init() {
	f := taskSaveCmd.Flags()
	f.StringVar(&taskSaveFlags.id, "id", "", "Task id to update")
	f.StringVar(&taskSaveFlags.title, "title", "", "Title")
	f.StringVar(&taskSaveFlags.description, "description", "", "Description")
	f.StringVar(&taskSaveFlags.assignee, "assignee", "", "Assignee member slug")
	f.StringVar(&taskSaveFlags.status, "status", "", "Status (todo, in_progress, review, done)")
	f.StringVar(&taskSaveFlags.priority, "priority", "", "Priority (low, medium, high)")
	f.StringVar(&taskSaveFlags.due, "due", "", "Due date YYYY-MM-DD")
	f.StringVar(&taskSaveFlags.createdBy, "created-by", "", "Creator member slug")
	taskCmd.AddCommand(taskSaveCmd)
}

// TaskSaveResult is the JSON output of task save.
type TaskSaveResult struct {
	Task    store.Task `json:"task"`
	Created bool       `json:"created"`
}

func runTaskSave(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	var t store.Task
	if taskSaveFlags.id != "" {
		existing, err := r.tasks.Get(ctx, taskSaveFlags.id)
		exitOnError(err, "getting task %s", taskSaveFlags.id)
		t = existing
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("title", &t.Title, taskSaveFlags.title)
	set("description", &t.Description, taskSaveFlags.description)
	set("assignee", &t.Assignee, taskSaveFlags.assignee)
	set("status", &t.Status, taskSaveFlags.status)
	set("priority", &t.Priority, taskSaveFlags.priority)
	set("due", &t.Due, taskSaveFlags.due)
	set("created-by", &t.CreatedBy, taskSaveFlags.createdBy)

	saved, created, err := r.tasks.Save(ctx, t)
	exitOnError(err, "saving task")

	if humanOutput {
		verb := "Updated"
		if created {
			verb = "Created"
		}
		outputHuman("%s task %s: %s [%s]\n", verb, saved.ID, saved.Title, saved.Status)
		return
	}
	outputJSON(TaskSaveResult{Task: saved, Created: created})
}
