package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Submit and read daily reports",
	Long: `Commands for daily reports (DR).

A report is keyed by date and member slug. Submitting the same key again
updates the stored row; a report is posted to the DR channel at most once.`,
}

func init() {
	_ = godotenv.Load()
	rootCmd.AddCommand(reportCmd)
}
