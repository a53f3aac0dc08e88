package main

import (
	"github.com/spf13/cobra"
)

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run:   runTaskDelete,
}

func init() {
	taskCmd.AddCommand(taskDeleteCmd)
}

func runTaskDelete(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	exitOnError(r.tasks.Delete(ctx, args[0]), "deleting task %s", args[0])

	if humanOutput {
		outputHuman("Deleted task %s\n", args[0])
		return
	}
	outputJSON(StatusResponse{Status: "deleted"})
}
