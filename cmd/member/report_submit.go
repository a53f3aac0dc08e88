package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polycle/member/internal/dailyreport"
	"github.com/polycle/member/internal/store"
)

var (
	submitUser       string
	submitDate       string
	submitDone       string
	submitPlan       string
	submitBlockers   string
	submitNotes      string
	submitSlackToken string
)

var reportSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Save a daily report and post it to Slack",
	Long: `Save a daily report and post it to the DR channel.

The date defaults to today in the configured timezone. A field value of "-"
is read from stdin.

Examples:
  member report submit --user ken-sato --done "shipped login" --plan "tasks API"
  git log --oneline --since=yesterday | member report submit --user ken-sato --done -`,
	Args: cobra.NoArgs,
	Run:  runReportSubmit,
}

func init() {
	f := reportSubmitCmd.Flags()
	f.StringVar(&submitUser, "user", "", "Member slug (required)")
	f.StringVar(&submitDate, "date", "", "Report date YYYY-MM-DD (default today)")
	f.StringVar(&submitDone, "done", "", "What was done")
	f.StringVar(&submitPlan, "plan", "", "What comes next")
	f.StringVar(&submitBlockers, "blockers", "", "Blockers")
	f.StringVar(&submitNotes, "notes", "", "Anything else")
	f.StringVar(&submitSlackToken, "slack-token", os.Getenv("SLACK_USER_TOKEN"), "Post as this Slack user token")
	_ = reportSubmitCmd.MarkFlagRequired("user")
	reportCmd.AddCommand(reportSubmitCmd)
}

func runReportSubmit(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	rep := store.Report{User: submitUser, Date: submitDate}
	fields := []struct {
		dst *string
		val string
	}{
		{&rep.Done, submitDone},
		{&rep.Plan, submitPlan},
		{&rep.Blockers, submitBlockers},
		{&rep.Notes, submitNotes},
	}
	var stdinUsed bool
	for _, fld := range fields {
		if fld.val != "-" {
			*fld.dst = fld.val
			continue
		}
		if stdinUsed {
			exitWithError(ExitError, "only one field may be read from stdin")
		}
		stdinUsed = true
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitWithError(ExitError, "reading stdin: %v", err)
		}
		*fld.dst = strings.TrimSpace(string(data))
	}

	if rep.Date == "" {
		loc, err := cfg.Location()
		if err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		rep.Date = dailyreport.Today(loc)
	}

	r := mustOpenRepos(ctx)
	if m, err := r.members.Get(ctx, rep.User); err == nil {
		rep.Name, rep.Email = m.Name, m.Email
	} else if !errors.Is(err, store.ErrNotFound) {
		exitOnError(err, "looking up member")
	}
	res, err := newSubmitter(cfg, r).Submit(ctx, dailyreport.SubmitRequest{
		Report:    rep,
		UserToken: submitSlackToken,
	})
	exitOnError(err, "submitting report")

	if humanOutput {
		verb := "Updated"
		if res.Created {
			verb = "Saved"
		}
		outputHuman("%s report %s\n", verb, res.Report.Key())
		outputHuman("Slack: %s\n", deliveryLine(res))
		return
	}
	outputJSON(res)
}

func deliveryLine(res dailyreport.Result) string {
	switch res.Delivery {
	case dailyreport.DeliverySent:
		return fmt.Sprintf("posted to %s (ts %s)", res.Report.SlackChannel, res.Report.SlackTS)
	case dailyreport.DeliveryAlreadySent:
		return "already posted, not reposted"
	case dailyreport.DeliveryFailed:
		return "failed: " + res.DeliveryError
	default:
		return string(res.Delivery)
	}
}
