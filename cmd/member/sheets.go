package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Manage the backing spreadsheet",
	Long: `Commands for preparing the Google spreadsheet that stores reports,
tasks and members.

Requires MEMBER_SPREADSHEET_ID and GOOGLE_APPLICATION_CREDENTIALS.`,
}

func init() {
	_ = godotenv.Load()
	rootCmd.AddCommand(sheetsCmd)
}
