package main

import (
	"github.com/spf13/cobra"

	"github.com/polycle/member/internal/store"
)

var (
	taskListAssignee string
	taskListStatus   string
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks ordered by due date",
	Args:  cobra.NoArgs,
	Run:   runTaskList,
}

func init() {
	taskListCmd.Flags().StringVar(&taskListAssignee, "assignee", "", "Only tasks assigned to this member")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only tasks with this status (todo, in_progress, review, done)")
	taskCmd.AddCommand(taskListCmd)
}

// TaskListResult is the JSON output of task list.
type TaskListResult struct {
	Tasks []store.Task `json:"tasks"`
	Count int          `json:"count"`
}

func runTaskList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	tasks, err := r.tasks.List(ctx, store.TaskFilter{Assignee: taskListAssignee, Status: taskListStatus})
	exitOnError(err, "listing tasks")

	if humanOutput {
		if len(tasks) == 0 {
			outputHuman("No tasks.\n")
			return
		}
		outputHuman("%s  %s  %s  %s  %s\n",
			padRight("ID", 8), padRight("STATUS", 11), padRight("DUE", 10), padRight("ASSIGNEE", 12), "TITLE")
		for _, t := range tasks {
			due := t.Due
			if due == "" {
				due = "-"
			}
			outputHuman("%s  %s  %s  %s  %s\n",
				padRight(truncateString(t.ID, 8), 8),
				padRight(t.Status, 11),
				padRight(due, 10),
				padRight(truncateString(t.Assignee, 12), 12),
				truncateString(t.Title, TitleMaxLen))
		}
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	outputJSON(TaskListResult{Tasks: tasks, Count: len(tasks)})
}
