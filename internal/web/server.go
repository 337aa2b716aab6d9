// Package web exposes the JSON API. Task-list reads trigger a generation pass
// fire-and-forget, the equivalent of the page-load hook in a browser client.
package web

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"task-planner/internal/repository"
	"task-planner/internal/service"
)

// Server is the planner web server.
type Server struct {
	router      *gin.Engine
	userRepo    *repository.UserRepository
	taskSvc     *service.TaskService
	templateSvc *service.TemplateService
	reminderSvc *service.ReminderService
	generator   *service.Generator
	logger      *slog.Logger
}

// NewServer creates a new web server with all API routes registered.
func NewServer(userRepo *repository.UserRepository, taskSvc *service.TaskService, templateSvc *service.TemplateService, reminderSvc *service.ReminderService, generator *service.Generator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:      gin.Default(),
		userRepo:    userRepo,
		taskSvc:     taskSvc,
		templateSvc: templateSvc,
		reminderSvc: reminderSvc,
		generator:   generator,
		logger:      logger,
	}

	api := s.router.Group("/api", s.requireUser)
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/complete", s.handleCompleteTask)
		api.POST("/tasks/:id/uncomplete", s.handleUncompleteTask)
		api.GET("/tasks/:id/subtasks", s.handleListSubtasks)
		api.POST("/tasks/:id/subtasks", s.handleAddSubtask)
		api.PUT("/subtasks/:id", s.handleSetSubtaskDone)

		api.GET("/templates", s.handleListTemplates)
		api.POST("/templates", s.handleCreateTemplate)
		api.GET("/templates/:id", s.handleGetTemplate)
		api.PUT("/templates/:id", s.handleUpdateTemplate)
		api.DELETE("/templates/:id", s.handleDeleteTemplate)
		api.POST("/templates/:id/active", s.handleSetTemplateActive)

		api.POST("/generate", s.handleGenerate)
		api.GET("/summary", s.handleSummary)
	}

	return s
}

// Run starts the web server.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
