package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/polycle/member/internal/auth"
)

const (
	sessionCookie = "member_session"
	stateCookie   = "member_oauth_state"
	sessionKey    = "session"
)

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

func (s *Server) requireSession(c *gin.Context) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		abort(c, http.StatusUnauthorized, "not signed in")
		return
	}
	sess, err := s.deps.Sessions.Get(c.Request.Context(), id)
	if errors.Is(err, auth.ErrSessionNotFound) {
		s.clearCookie(c, sessionCookie, "/")
		abort(c, http.StatusUnauthorized, "session expired")
		return
	}
	if err != nil {
		_ = c.Error(err)
		abort(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func viewer(c *gin.Context) auth.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(auth.Session)
	return sess
}

func (s *Server) setCookie(c *gin.Context, name, value, path string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, path, "", s.deps.SecureCookies, true)
}

func (s *Server) clearCookie(c *gin.Context, name, path string) {
	s.setCookie(c, name, "", path, -1)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}
