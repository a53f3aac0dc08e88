package slack

import (
	"fmt"
	"strings"

	"github.com/polycle/member/internal/store"
)

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// FormatReport renders a daily report as Slack mrkdwn.
func FormatReport(r store.Report) string {
	who := r.Name
	if who == "" {
		who = r.User
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Daily report: %s* (%s)\n", mrkdwnEscaper.Replace(who), r.Date)
	section(&b, "Done", r.Done)
	section(&b, "Plan", r.Plan)
	section(&b, "Blockers", r.Blockers)
	section(&b, "Notes", r.Notes)
	return strings.TrimRight(b.String(), "\n")
}

func section(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n*%s*\n", title)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// sheet cells commonly carry "- item" or "・item" bullets
		line = strings.TrimLeft(line, "-*・• ")
		fmt.Fprintf(b, "• %s\n", mrkdwnEscaper.Replace(line))
	}
}
