package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polycle/member/internal/store"
)

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Due         string `json:"due"`
}

func (r taskRequest) task() store.Task {
	return store.Task{
		Title:       r.Title,
		Description: r.Description,
		Assignee:    r.Assignee,
		Status:      r.Status,
		Priority:    r.Priority,
		Due:         r.Due,
	}
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.deps.Tasks.List(c.Request.Context(), store.TaskFilter{
		Assignee: c.Query("assignee"),
		Status:   c.Query("status"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   tasks,
		"count":   len(tasks),
	})
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.deps.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    t,
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	t := req.task()
	t.CreatedBy = viewer(c).User

	saved, _, err := s.deps.Tasks.Save(c.Request.Context(), t)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"task":    saved,
	})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.deps.Tasks.Get(ctx, id); err != nil {
		s.fail(c, err)
		return
	}

	t := req.task()
	t.ID = id
	saved, _, err := s.deps.Tasks.Save(ctx, t)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    saved,
	})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.deps.Tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
