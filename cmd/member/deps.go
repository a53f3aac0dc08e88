package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/polycle/member/internal/config"
	"github.com/polycle/member/internal/dailyreport"
	"github.com/polycle/member/internal/sheet"
	"github.com/polycle/member/internal/slack"
	"github.com/polycle/member/internal/store"
	"github.com/polycle/member/internal/telemetry"
)

// repos bundles the spreadsheet-backed repositories.
type repos struct {
	grid    sheet.Grid
	reports *store.Reports
	tasks   *store.Tasks
	members *store.Members
}

// openGrid connects to the configured spreadsheet, or an in-memory grid when
// memory is set.
func openGrid(ctx context.Context, c *config.Config, memory bool) (sheet.Grid, error) {
	if memory {
		logger.Warn("using in-memory spreadsheet; data is lost on exit")
		return telemetry.WrapGrid(sheet.NewMemory()), nil
	}
	if err := c.ValidateSheets(); err != nil {
		return nil, err
	}
	client, err := sheet.NewClient(ctx, c.Sheets.SpreadsheetID,
		sheet.WithCredentialsFile(c.Sheets.CredentialsFile),
		sheet.WithRequestsPerMinute(c.Sheets.RequestsPerMinute),
	)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	return telemetry.WrapGrid(client), nil
}

func storeOptions(c *config.Config) store.Options {
	return store.Options{Policy: c.Retry.Policy(), Logger: logger.Named("store")}
}

func openRepos(ctx context.Context, c *config.Config, memory bool) (*repos, error) {
	grid, err := openGrid(ctx, c, memory)
	if err != nil {
		return nil, err
	}
	opts := storeOptions(c)
	return &repos{
		grid:    grid,
		reports: store.NewReports(grid, opts),
		tasks:   store.NewTasks(grid, opts),
		members: store.NewMembers(grid, opts),
	}, nil
}

// mustOpenRepos opens the repositories or exits with a config error.
func mustOpenRepos(ctx context.Context) *repos {
	r, err := openRepos(ctx, cfg, false)
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
	return r
}

func newPoster(c *config.Config) *slack.Poster {
	return slack.NewPoster(c.Slack.BotToken, c.Slack.DRChannel,
		slack.WithRetryPolicy(c.Retry.Policy()),
		slack.WithDisableFallback(c.Slack.DisableFallback),
		slack.WithLogger(logger.Named("slack")),
	)
}

// newSubmitter wires report storage and Slack delivery. Delivery is disabled
// when no channel is configured.
func newSubmitter(c *config.Config, r *repos) *dailyreport.Service {
	var notifier dailyreport.Notifier
	if c.Slack.DRChannel != "" {
		notifier = newPoster(c)
	} else {
		logger.Info("slack delivery disabled", zap.String("reason", "no dr channel"))
	}
	return dailyreport.NewService(r.reports, notifier, logger.Named("dailyreport"))
}
