package main

import (
	"github.com/spf13/cobra"

	"github.com/polycle/member/internal/dailyreport"
	"github.com/polycle/member/internal/slack"
)

var reportGetCmd = &cobra.Command{
	Use:   "get <date|today> <user>",
	Short: "Show one member's report for a date",
	Long: `Show the report for a date and member slug.

With --human the report is rendered as it appears in Slack.`,
	Args: cobra.ExactArgs(2),
	Run:  runReportGet,
}

func init() {
	reportCmd.AddCommand(reportGetCmd)
}

func runReportGet(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	date, user := args[0], args[1]
	if date == "today" {
		loc, err := cfg.Location()
		if err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		date = dailyreport.Today(loc)
	}

	r := mustOpenRepos(ctx)
	rep, err := r.reports.Get(ctx, date, user)
	exitOnError(err, "getting report %s/%s", date, user)

	if humanOutput {
		outputHuman("%s\n", slack.FormatReport(rep))
		return
	}
	outputJSON(rep)
}
