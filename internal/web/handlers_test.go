package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	subtaskRepo := repository.NewSubtaskRepository(db)
	stateRepo := repository.NewGenerationStateRepository(db)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(
		userRepo,
		service.NewTaskService(taskRepo, subtaskRepo, templateRepo),
		service.NewTemplateService(templateRepo, taskRepo),
		service.NewReminderService(taskRepo),
		service.NewGenerator(templateRepo, taskRepo, subtaskRepo, stateRepo, logger),
		logger,
	)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", "tester")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestAPI_RequiresUserHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_TaskLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/tasks", service.TaskInput{
		Title:     "groceries",
		Category:  model.CategoryShopping,
		Checklist: []string{"milk", "bread"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	require.NotZero(t, task.ID)

	w = doJSON(t, s, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = doJSON(t, s, http.MethodPost, "/api/tasks/1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.True(t, task.Completed)

	w = doJSON(t, s, http.MethodDelete, "/api/tasks/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAPI_CreateTaskValidation(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/tasks", service.TaskInput{Memo: "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_TemplateAndGenerate(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/templates", service.TemplateInput{
		Title:      "meds",
		Recurrence: service.RecurrenceInput{Kind: "daily"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, s, http.MethodPost, "/api/generate?force=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Template creation also kicks a background pass that can hold the lease
	// while the synchronous one runs, so poll for the materialized instances.
	var list struct {
		Tasks []model.Task `json:"tasks"`
	}
	require.Eventually(t, func() bool {
		w = doJSON(t, s, http.MethodGet, "/api/tasks", nil)
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
			return false
		}
		return len(list.Tasks) > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "meds", list.Tasks[0].Title)
	require.NotNil(t, list.Tasks[0].TemplateID)
}

func TestAPI_SubtaskToggle(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/tasks", service.TaskInput{Title: "shop"})
	require.Equal(t, http.StatusCreated, w.Code)
	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))

	w = doJSON(t, s, http.MethodPost, "/api/tasks/1/subtasks", map[string]string{"title": "milk"})
	require.Equal(t, http.StatusCreated, w.Code)
	var sub model.Subtask
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))

	w = doJSON(t, s, http.MethodPut, "/api/subtasks/1", map[string]bool{"done": true})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/tasks/1/subtasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subs struct {
		Subtasks []model.Subtask `json:"subtasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &subs))
	require.Len(t, subs.Subtasks, 1)
	assert.True(t, subs.Subtasks[0].Done)
}

func TestAPI_UnknownTemplateKindRejected(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/templates", service.TemplateInput{
		Title:      "x",
		Recurrence: service.RecurrenceInput{Kind: "hourly"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
