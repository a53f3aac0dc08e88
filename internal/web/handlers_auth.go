package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/polycle/member/internal/auth"
	"github.com/polycle/member/internal/store"
)

const stateMaxAge = 10 * 60 // seconds

func (s *Server) provider(c *gin.Context) (auth.Provider, bool) {
	p, err := s.deps.Providers.Get(c.Param("provider"))
	if err != nil {
		abort(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	return p, true
}

func (s *Server) handleLogin(c *gin.Context) {
	p, ok := s.provider(c)
	if !ok {
		return
	}
	state, err := auth.NewState()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setCookie(c, stateCookie, state, "/auth", stateMaxAge)
	c.Redirect(http.StatusFound, p.AuthCodeURL(state))
}

func (s *Server) handleCallback(c *gin.Context) {
	p, ok := s.provider(c)
	if !ok {
		return
	}
	log := s.deps.Logger.With(zap.String("provider", p.Name()))

	want, err := c.Cookie(stateCookie)
	s.clearCookie(c, stateCookie, "/auth")
	if err != nil || want == "" || c.Query("state") != want {
		badRequest(c, "invalid oauth state")
		return
	}
	if e := c.Query("error"); e != "" {
		log.Info("sign-in declined", zap.String("error", e))
		abort(c, http.StatusUnauthorized, "sign-in was declined")
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "missing code")
		return
	}

	ctx := c.Request.Context()
	id, err := p.Exchange(ctx, code)
	if err != nil {
		log.Warn("sign-in failed", zap.Error(err))
		abort(c, http.StatusUnauthorized, "sign-in failed")
		return
	}

	member, err := s.deps.Members.Upsert(ctx, store.Member{
		Name:        id.Name,
		Email:       id.Email,
		SlackUserID: id.SlackUserID,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalid) {
			abort(c, http.StatusUnauthorized, "account has no usable name or email")
			return
		}
		s.fail(c, err)
		return
	}

	sess, err := s.deps.Sessions.Create(ctx, auth.Session{
		User:        member.Slug,
		Name:        member.Name,
		Email:       member.Email,
		Provider:    id.Provider,
		SlackUserID: member.SlackUserID,
		SlackToken:  id.SlackToken,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	log.Info("signed in", zap.String("user", sess.User))
	s.setCookie(c, sessionCookie, sess.ID, "/", int(s.deps.SessionTTL.Seconds()))
	c.Redirect(http.StatusFound, s.deps.AfterLogin)
}

func (s *Server) handleLogout(c *gin.Context) {
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		if err := s.deps.Sessions.Delete(c.Request.Context(), id); err != nil {
			s.fail(c, err)
			return
		}
	}
	s.clearCookie(c, sessionCookie, "/")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
