package service

import (
	"context"
	"fmt"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// RecurrenceInput describes the pattern attached to a task or template.
type RecurrenceInput struct {
	Kind        string `json:"kind"`
	Weekdays    []int  `json:"weekdays,omitempty"`
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	MonthOfYear int    `json:"month_of_year,omitempty"`
	DayOfYear   int    `json:"day_of_year,omitempty"`
}

// TaskInput represents data required to create a task. A non-nil Recurrence
// promotes the task into a template on first use.
type TaskInput struct {
	Title      string           `json:"title"`
	Memo       string           `json:"memo,omitempty"`
	Category   string           `json:"category,omitempty"`
	Importance int              `json:"importance,omitempty"`
	URLs       []string         `json:"urls,omitempty"`
	StartTime  *string          `json:"start_time,omitempty"`
	EndTime    *string          `json:"end_time,omitempty"`
	DueDate    *time.Time       `json:"due_date,omitempty"`
	Checklist  []string         `json:"checklist,omitempty"`
	Recurrence *RecurrenceInput `json:"recurrence,omitempty"`
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo     *repository.TaskRepository
	subtaskRepo  *repository.SubtaskRepository
	templateRepo *repository.TemplateRepository
}

func NewTaskService(taskRepo *repository.TaskRepository, subtaskRepo *repository.SubtaskRepository, templateRepo *repository.TemplateRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo, subtaskRepo: subtaskRepo, templateRepo: templateRepo}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Importance == 0 {
		input.Importance = 3
	}
	if input.Importance < 1 || input.Importance > 5 {
		return nil, fmt.Errorf("importance must be between 1 and 5")
	}

	task := model.Task{
		UserID:     user.ID,
		Title:      input.Title,
		Memo:       input.Memo,
		Category:   input.Category,
		Importance: input.Importance,
		URLs:       input.URLs,
		StartTime:  input.StartTime,
		EndTime:    input.EndTime,
		DueDate:    model.NoDueDate,
	}
	if input.DueDate != nil {
		task.DueDate = recurrence.DateOf(*input.DueDate)
	}

	if input.Recurrence != nil {
		tpl, err := s.promoteTemplate(ctx, user.ID, input)
		if err != nil {
			return nil, err
		}
		task.TemplateID = &tpl.ID
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	for _, item := range input.Checklist {
		if _, err := s.subtaskRepo.Create(ctx, user.ID, task.ID, item); err != nil {
			return nil, err
		}
	}
	return &task, nil
}

// promoteTemplate derives a recurring template the first time a recurring
// task is created ad hoc, deduplicated by title+pattern+category so repeated
// creations reuse one rule.
func (s *TaskService) promoteTemplate(ctx context.Context, userID uint, input TaskInput) (*model.RecurringTemplate, error) {
	kind := recurrence.Kind(input.Recurrence.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown recurrence kind %q", input.Recurrence.Kind)
	}

	existing, err := s.templateRepo.FindDuplicate(ctx, userID, input.Title, string(kind), input.Category)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tpl := model.RecurringTemplate{
		UserID:      userID,
		Kind:        string(kind),
		Weekdays:    int(recurrence.NewWeekdaySet(input.Recurrence.Weekdays...)),
		DayOfMonth:  input.Recurrence.DayOfMonth,
		MonthOfYear: input.Recurrence.MonthOfYear,
		DayOfYear:   input.Recurrence.DayOfYear,
		Title:       input.Title,
		Memo:        input.Memo,
		Category:    input.Category,
		Importance:  input.Importance,
		URLs:        input.URLs,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Checklist:   input.Checklist,
		Active:      true,
	}
	if err := s.templateRepo.Create(ctx, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *TaskService) ListTasks(ctx context.Context, user *model.User, includeCompleted bool) ([]model.Task, error) {
	return s.taskRepo.List(ctx, user.ID, includeCompleted)
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// CompleteTask marks a task done with the given completion time. Completing
// an already-completed task is a no-op.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint, completedAt time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return task, nil
	}
	task.Completed = true
	task.CompletedAt = &completedAt
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UncompleteTask reopens a task. The carry-forward flag stays set: items
// already moved to a new task must not move twice.
func (s *TaskService) UncompleteTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	task.Completed = false
	task.CompletedAt = nil
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	if err := s.subtaskRepo.DeleteByTask(ctx, user.ID, taskID); err != nil {
		return err
	}
	return s.taskRepo.Delete(ctx, user.ID, taskID)
}

func (s *TaskService) ListSubtasks(ctx context.Context, user *model.User, taskID uint) ([]model.Subtask, error) {
	return s.subtaskRepo.ListByTask(ctx, user.ID, taskID)
}

func (s *TaskService) AddSubtask(ctx context.Context, user *model.User, taskID uint, title string) (*model.Subtask, error) {
	if title == "" {
		return nil, fmt.Errorf("subtask title is required")
	}
	if _, err := s.taskRepo.FindByID(ctx, user.ID, taskID); err != nil {
		return nil, err
	}
	return s.subtaskRepo.Create(ctx, user.ID, taskID, title)
}

func (s *TaskService) SetSubtaskDone(ctx context.Context, user *model.User, subtaskID uint, done bool) error {
	return s.subtaskRepo.SetDone(ctx, user.ID, subtaskID, done)
}
