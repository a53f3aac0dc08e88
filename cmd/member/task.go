package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
	Long:  `Commands for the shared task list stored in the Tasks tab.`,
}

func init() {
	_ = godotenv.Load()
	rootCmd.AddCommand(taskCmd)
}
