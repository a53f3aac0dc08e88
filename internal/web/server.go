// Package web serves the member JSON API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/polycle/member/internal/auth"
	"github.com/polycle/member/internal/dailyreport"
	"github.com/polycle/member/internal/store"
)

// ReportStore reads reports.
type ReportStore interface {
	List(ctx context.Context, filter store.ReportFilter) ([]store.Report, error)
	Get(ctx context.Context, date, user string) (store.Report, error)
}

// TaskStore reads and writes tasks.
type TaskStore interface {
	List(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	Get(ctx context.Context, id string) (store.Task, error)
	Save(ctx context.Context, t store.Task) (store.Task, bool, error)
	Delete(ctx context.Context, id string) error
}

// MemberStore reads and records members.
type MemberStore interface {
	List(ctx context.Context) ([]store.Member, error)
	Upsert(ctx context.Context, m store.Member) (store.Member, error)
}

// Submitter submits daily reports.
type Submitter interface {
	Submit(ctx context.Context, req dailyreport.SubmitRequest) (dailyreport.Result, error)
}

// SessionStore keeps signed-in sessions.
type SessionStore interface {
	Create(ctx context.Context, s auth.Session) (auth.Session, error)
	Get(ctx context.Context, id string) (auth.Session, error)
	Delete(ctx context.Context, id string) error
}

var (
	_ ReportStore  = (*store.Reports)(nil)
	_ TaskStore    = (*store.Tasks)(nil)
	_ MemberStore  = (*store.Members)(nil)
	_ Submitter    = (*dailyreport.Service)(nil)
	_ SessionStore = (*auth.SessionStore)(nil)
)

// Deps are the server's collaborators.
type Deps struct {
	Reports   ReportStore
	Tasks     TaskStore
	Members   MemberStore
	Submitter Submitter
	Sessions  SessionStore
	Providers auth.Providers
	Location  *time.Location
	Logger    *zap.Logger

	// SecureCookies marks cookies Secure; set when served over HTTPS.
	SecureCookies bool
	// AfterLogin is where a successful callback redirects. Defaults to /api/me.
	AfterLogin string
	// SessionTTL bounds the session cookie lifetime.
	SessionTTL time.Duration
}

// Server is the member web server.
type Server struct {
	deps   Deps
	router *gin.Engine
	now    func() time.Time
}

// NewServer creates a new web server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.AfterLogin == "" {
		deps.AfterLogin = "/api/me"
	}
	if deps.SessionTTL == 0 {
		deps.SessionTTL = 7 * 24 * time.Hour
	}

	router := gin.New()
	router.Use(requestLogger(deps.Logger), gin.Recovery())

	s := &Server{deps: deps, router: router, now: time.Now}

	router.GET("/healthz", s.handleHealth)

	authGroup := router.Group("/auth")
	{
		authGroup.GET("/:provider/login", s.handleLogin)
		authGroup.GET("/:provider/callback", s.handleCallback)
		authGroup.POST("/logout", s.handleLogout)
	}

	api := router.Group("/api", s.requireSession)
	{
		api.GET("/me", s.handleMe)

		api.GET("/reports", s.handleListReports)
		api.GET("/reports/:date", s.handleGetReport)
		api.POST("/reports", s.handleSubmitReport)

		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.POST("/tasks", s.handleCreateTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.GET("/members", s.handleListMembers)
		api.GET("/dashboard", s.handleDashboard)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the web server.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) today() string {
	return dailyreport.DateIn(s.now(), s.deps.Location)
}
