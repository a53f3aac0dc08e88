package main

import (
	"github.com/spf13/cobra"

	"github.com/polycle/member/internal/store"
)

var (
	listFrom string
	listTo   string
	listUser string
)

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List daily reports across all members",
	Long: `List daily reports, newest first.

Reports are gathered from every DR_<slug> tab and the legacy DR tab. When
the same date and member appear twice, the most recently updated row wins.

Examples:
  member report list --from 2026-10-01 --human
  member report list --user ken-sato`,
	Args: cobra.NoArgs,
	Run:  runReportList,
}

func init() {
	reportListCmd.Flags().StringVar(&listFrom, "from", "", "First date (YYYY-MM-DD, inclusive)")
	reportListCmd.Flags().StringVar(&listTo, "to", "", "Last date (YYYY-MM-DD, inclusive)")
	reportListCmd.Flags().StringVar(&listUser, "user", "", "Only this member")
	reportCmd.AddCommand(reportListCmd)
}

// ReportListResult is the JSON output of report list.
type ReportListResult struct {
	Reports []store.Report `json:"reports"`
	Count   int            `json:"count"`
}

func runReportList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	reports, err := r.reports.List(ctx, store.ReportFilter{From: listFrom, To: listTo, User: listUser})
	exitOnError(err, "listing reports")

	if humanOutput {
		if len(reports) == 0 {
			outputHuman("No reports.\n")
			return
		}
		outputHuman("%s  %s  %s  %s\n", padRight("DATE", 10), padRight("USER", 16), padRight("SLACK", 5), "DONE")
		for _, rep := range reports {
			slackMark := "-"
			if rep.Delivered() {
				slackMark = "yes"
			}
			outputHuman("%s  %s  %s  %s\n",
				rep.Date,
				padRight(truncateString(rep.User, 16), 16),
				padRight(slackMark, 5),
				truncateString(rep.Done, TextMaxLen))
		}
		outputHuman("\n%d reports\n", len(reports))
		return
	}
	if reports == nil {
		reports = []store.Report{}
	}
	outputJSON(ReportListResult{Reports: reports, Count: len(reports)})
}
