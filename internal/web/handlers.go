package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"task-planner/internal/model"
	"task-planner/internal/service"
)

const userContextKey = "planner.user"

// requireUser resolves the caller from the X-User-ID header, creating the
// user on first sight. Authentication proper lives in front of this service.
func (s *Server) requireUser(c *gin.Context) {
	externalID := c.GetHeader("X-User-ID")
	if externalID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}
	user, err := s.userRepo.UpsertByExternalID(c.Request.Context(), externalID, c.GetHeader("X-User-Name"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve user"})
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func (s *Server) currentUser(c *gin.Context) *model.User {
	return c.MustGet(userContextKey).(*model.User)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// kickGeneration launches a background generation pass for the user. Errors
// only get logged: generation failures must never block normal task CRUD.
func (s *Server) kickGeneration(userID uint) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.generator.GenerateMissingTasks(ctx, userID, false); err != nil {
			s.logger.Error("background generation", "user", userID, "error", err)
		}
	}()
}

func (s *Server) handleListTasks(c *gin.Context) {
	user := s.currentUser(c)
	s.kickGeneration(user.ID)

	includeCompleted := c.Query("all") == "true"
	tasks, err := s.taskSvc.ListTasks(c.Request.Context(), user, includeCompleted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	user := s.currentUser(c)

	var input service.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.taskSvc.CreateTask(c.Request.Context(), user, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := s.taskSvc.GetTask(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.taskSvc.DeleteTask(c.Request.Context(), user, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := s.taskSvc.CompleteTask(c.Request.Context(), user, id, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUncompleteTask(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := s.taskSvc.UncompleteTask(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListSubtasks(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	subs, err := s.taskSvc.ListSubtasks(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": subs, "count": len(subs)})
}

func (s *Server) handleAddSubtask(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := s.taskSvc.AddSubtask(c.Request.Context(), user, id, body.Title)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) handleSetSubtaskDone(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body struct {
		Done bool `json:"done"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.taskSvc.SetSubtaskDone(c.Request.Context(), user, id, body.Done); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subtask not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListTemplates(c *gin.Context) {
	user := s.currentUser(c)
	templates, err := s.templateSvc.ListTemplates(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}

func (s *Server) handleCreateTemplate(c *gin.Context) {
	user := s.currentUser(c)
	var input service.TemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tpl, err := s.templateSvc.CreateTemplate(c.Request.Context(), user, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.kickGeneration(user.ID)
	c.JSON(http.StatusCreated, tpl)
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	tpl, err := s.templateSvc.GetTemplate(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) handleUpdateTemplate(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input service.TemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tpl, err := s.templateSvc.UpdateTemplate(c.Request.Context(), user, id, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.templateSvc.DeleteTemplate(c.Request.Context(), user, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetTemplateActive(c *gin.Context) {
	user := s.currentUser(c)
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tpl, err := s.templateSvc.SetActive(c.Request.Context(), user, id, body.Active, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// handleGenerate is the explicit nudge: it runs the pass synchronously so the
// caller can re-query tasks right after.
func (s *Server) handleGenerate(c *gin.Context) {
	user := s.currentUser(c)
	force := c.Query("force") == "true"
	if err := s.generator.GenerateMissingTasks(c.Request.Context(), user.ID, force); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSummary(c *gin.Context) {
	user := s.currentUser(c)
	text, err := s.reminderSvc.DailySummary(c.Request.Context(), *user, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": text})
}
