package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/polycle/member/internal/store"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List and add team members",
	Long: `Commands for the Members tab.

Members are also recorded automatically on first sign-in.`,
}

var membersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members",
	Args:  cobra.NoArgs,
	Run:   runMembersList,
}

var (
	memberAddName  string
	memberAddEmail string
	memberAddSlack string
	memberAddSlug  string
)

var membersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a member and create their DR tab",
	Long: `Add a member, or update an existing one with the same slug.

The slug is derived from --slug, then --email, then --name.`,
	Args: cobra.NoArgs,
	Run:  runMembersAdd,
}

func init() {
	_ = godotenv.Load()
	membersAddCmd.Flags().StringVar(&memberAddSlug, "slug", "", "Member slug")
	membersAddCmd.Flags().StringVar(&memberAddName, "name", "", "Display name")
	membersAddCmd.Flags().StringVar(&memberAddEmail, "email", "", "Email address")
	membersAddCmd.Flags().StringVar(&memberAddSlack, "slack-user", "", "Slack user id (U...)")
	membersCmd.AddCommand(membersListCmd, membersAddCmd)
	rootCmd.AddCommand(membersCmd)
}

// MembersListResult is the JSON output of members list.
type MembersListResult struct {
	Members []store.Member `json:"members"`
	Count   int            `json:"count"`
}

func runMembersList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	members, err := r.members.List(ctx)
	exitOnError(err, "listing members")

	if humanOutput {
		if len(members) == 0 {
			outputHuman("No members.\n")
			return
		}
		for _, m := range members {
			outputHuman("%s  %s  %s\n", padRight(m.Slug, 16), padRight(truncateString(m.Name, 24), 24), m.Email)
		}
		return
	}
	if members == nil {
		members = []store.Member{}
	}
	outputJSON(MembersListResult{Members: members, Count: len(members)})
}

func runMembersAdd(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	r := mustOpenRepos(ctx)

	m, err := r.members.Upsert(ctx, store.Member{
		Slug:        memberAddSlug,
		Name:        memberAddName,
		Email:       memberAddEmail,
		SlackUserID: memberAddSlack,
	})
	exitOnError(err, "saving member")
	exitOnError(r.reports.Ensure(ctx, m.Slug), "ensuring report tab")

	if humanOutput {
		outputHuman("Saved member %s (%s)\n", m.Slug, store.ReportTab(m.Slug))
		return
	}
	outputJSON(m)
}
