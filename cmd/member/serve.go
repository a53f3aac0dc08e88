package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polycle/member/internal/auth"
	"github.com/polycle/member/internal/config"
	"github.com/polycle/member/internal/web"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

var (
	serveAddr   string
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON API server",
	Long: `Run the member JSON API.

Reports, tasks and members are read from and written to the configured
Google spreadsheet. Use --memory to run against a throwaway in-memory
spreadsheet for local development.

Sign-in providers are enabled when their client id and secret are set:
  GOOGLE_OAUTH_CLIENT_ID / GOOGLE_OAUTH_CLIENT_SECRET
  SLACK_OAUTH_CLIENT_ID / SLACK_OAUTH_CLIENT_SECRET`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	_ = godotenv.Load()
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Use an in-memory spreadsheet")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	if err := serve(cmd.Context(), addr, serveMemory); err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
}

// serve runs the API until ctx ends or a signal arrives. Resources opened
// here are released before it returns.
func serve(ctx context.Context, addr string, memory bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateServer(memory); err != nil {
		return err
	}
	loc, _ := cfg.Location()

	r, err := openRepos(ctx, cfg, memory)
	if err != nil {
		return err
	}

	sessions, err := auth.OpenSessionStore(cfg.SessionDB, auth.NewSealer(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sessions.Close()
	go purgeSessions(ctx, sessions)

	providers := buildProviders(cfg)
	if len(providers) == 0 {
		logger.Warn("no sign-in provider configured; the API is unreachable")
	}

	srv := web.NewServer(web.Deps{
		Reports:       r.reports,
		Tasks:         r.tasks,
		Members:       r.members,
		Submitter:     newSubmitter(cfg, r),
		Sessions:      sessions,
		Providers:     providers,
		Location:      loc,
		Logger:        logger.Named("web"),
		SecureCookies: strings.HasPrefix(cfg.BaseURL, "https://"),
		SessionTTL:    cfg.SessionTTL,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("base_url", cfg.BaseURL))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	}
}

func buildProviders(c *config.Config) auth.Providers {
	providers := auth.Providers{}
	if c.GoogleOAuth.Enabled() {
		providers[auth.ProviderGoogle] = auth.NewGoogleProvider(c.GoogleOAuth.ClientID, c.GoogleOAuth.ClientSecret, c.BaseURL)
	}
	if c.SlackOAuth.Enabled() {
		providers[auth.ProviderSlack] = auth.NewSlackProvider(c.SlackOAuth.ClientID, c.SlackOAuth.ClientSecret, c.BaseURL, newPoster(c))
	}
	return providers
}

func purgeSessions(ctx context.Context, sessions *auth.SessionStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Purge(ctx)
			if err != nil {
				logger.Warn("purging sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}
