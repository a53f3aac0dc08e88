package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polycle/member/internal/store"
)

var sheetsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the Tasks, Members and per-member DR tabs",
	Long: `Create any missing tabs and header columns.

Existing tabs keep their data and any extra columns; missing headers are
appended. A DR_<slug> tab is created for every row in Members.`,
	Args: cobra.NoArgs,
	Run:  runSheetsInit,
}

func init() {
	sheetsCmd.AddCommand(sheetsInitCmd)
}

// SheetsInitResult lists the tabs that were ensured.
type SheetsInitResult struct {
	Tabs []string `json:"tabs"`
}

func runSheetsInit(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	exitOnError(r.tasks.Ensure(ctx), "ensuring %s", store.TasksTab)
	exitOnError(r.members.Ensure(ctx), "ensuring %s", store.MembersTab)
	tabs := []string{store.TasksTab, store.MembersTab}

	members, err := r.members.List(ctx)
	exitOnError(err, "listing members")
	for _, m := range members {
		exitOnError(r.reports.Ensure(ctx, m.Slug), "ensuring report tab for %s", m.Slug)
		tabs = append(tabs, store.ReportTab(m.Slug))
		logger.Debug("ensured report tab", zap.String("member", m.Slug))
	}

	if humanOutput {
		for _, tab := range tabs {
			outputHuman("ok  %s\n", tab)
		}
		return
	}
	outputJSON(SheetsInitResult{Tabs: tabs})
}
