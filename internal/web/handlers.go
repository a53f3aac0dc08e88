package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/polycle/member/internal/dashboard"
	"github.com/polycle/member/internal/store"
)

// fail maps err onto a response. Storage and network failures are logged
// and reported generically.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalid):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		abort(c, http.StatusNotFound, "not found")
	default:
		_ = c.Error(err)
		s.deps.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user", viewer(c).User),
			zap.Error(err),
		)
		abort(c, http.StatusInternalServerError, "internal error")
	}
}

func badRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, msg)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "ok",
	})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    viewer(c),
		"today":   s.today(),
	})
}

func (s *Server) handleListMembers(c *gin.Context) {
	members, err := s.deps.Members.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"members": members,
		"count":   len(members),
	})
}

func (s *Server) handleDashboard(c *gin.Context) {
	date := strings.TrimSpace(c.DefaultQuery("date", s.today()))
	d, err := dashboard.Build(c.Request.Context(), dashboard.Sources{
		Members: s.deps.Members,
		Reports: s.deps.Reports,
		Tasks:   s.deps.Tasks,
	}, date, viewer(c).User)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"dashboard": d,
	})
}
