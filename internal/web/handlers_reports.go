package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/polycle/member/internal/dailyreport"
	"github.com/polycle/member/internal/store"
)

const maxReportField = 10 << 10 // 10KB per text field

type submitReportRequest struct {
	Date     string `json:"date"`
	Done     string `json:"done"`
	Plan     string `json:"plan"`
	Blockers string `json:"blockers"`
	Notes    string `json:"notes"`
}

func validDate(s string) bool {
	_, err := time.Parse(store.DateLayout, s)
	return err == nil
}

func (s *Server) handleListReports(c *gin.Context) {
	filter := store.ReportFilter{
		From: strings.TrimSpace(c.Query("from")),
		To:   strings.TrimSpace(c.Query("to")),
		User: strings.TrimSpace(c.Query("user")),
	}
	for _, d := range []string{filter.From, filter.To} {
		if d != "" && !validDate(d) {
			badRequest(c, "dates must be YYYY-MM-DD")
			return
		}
	}

	reports, err := s.deps.Reports.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) handleGetReport(c *gin.Context) {
	date := c.Param("date")
	if date == "today" {
		date = s.today()
	}
	if !validDate(date) {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	user := c.DefaultQuery("user", viewer(c).User)

	rep, err := s.deps.Reports.Get(c.Request.Context(), date, user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  rep,
	})
}

func (s *Server) handleSubmitReport(c *gin.Context) {
	var req submitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	for _, f := range []string{req.Done, req.Plan, req.Blockers, req.Notes} {
		if len(f) > maxReportField {
			badRequest(c, "report field exceeds maximum size of 10KB")
			return
		}
	}
	if req.Date == "" {
		req.Date = s.today()
	}

	who := viewer(c)
	res, err := s.deps.Submitter.Submit(c.Request.Context(), dailyreport.SubmitRequest{
		Report: store.Report{
			Date:     req.Date,
			User:     who.User,
			Name:     who.Name,
			Email:    who.Email,
			Done:     req.Done,
			Plan:     req.Plan,
			Blockers: req.Blockers,
			Notes:    req.Notes,
		},
		UserToken: who.SlackToken,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"success": true,
		"result":  res,
	})
}
