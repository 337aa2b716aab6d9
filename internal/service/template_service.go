package service

import (
	"context"
	"fmt"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// TemplateInput represents data required to create or update a template.
type TemplateInput struct {
	Recurrence RecurrenceInput `json:"recurrence"`
	Title      string          `json:"title"`
	Memo       string          `json:"memo,omitempty"`
	Category   string          `json:"category,omitempty"`
	Importance int             `json:"importance,omitempty"`
	URLs       []string        `json:"urls,omitempty"`
	StartTime  *string         `json:"start_time,omitempty"`
	EndTime    *string         `json:"end_time,omitempty"`
	Checklist  []string        `json:"checklist,omitempty"`
}

// TemplateService wraps recurring-template business logic.
type TemplateService struct {
	templateRepo *repository.TemplateRepository
	taskRepo     *repository.TaskRepository
}

func NewTemplateService(templateRepo *repository.TemplateRepository, taskRepo *repository.TaskRepository) *TemplateService {
	return &TemplateService{templateRepo: templateRepo, taskRepo: taskRepo}
}

func validateTemplateInput(input TemplateInput) (recurrence.Kind, error) {
	if input.Title == "" {
		return "", fmt.Errorf("title is required")
	}
	kind := recurrence.Kind(input.Recurrence.Kind)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown recurrence kind %q", input.Recurrence.Kind)
	}
	switch kind {
	case recurrence.Weekly:
		if recurrence.NewWeekdaySet(input.Recurrence.Weekdays...) == 0 {
			return "", fmt.Errorf("weekly template needs at least one weekday")
		}
	case recurrence.Monthly:
		d := input.Recurrence.DayOfMonth
		if d != recurrence.LastDayOfMonth && (d < 1 || d > 31) {
			return "", fmt.Errorf("day of month must be 1-31 or the last-day sentinel")
		}
	case recurrence.Yearly:
		if input.Recurrence.MonthOfYear < 1 || input.Recurrence.MonthOfYear > 12 {
			return "", fmt.Errorf("month of year must be 1-12")
		}
		if input.Recurrence.DayOfYear < 1 || input.Recurrence.DayOfYear > 31 {
			return "", fmt.Errorf("day of year must be 1-31")
		}
	}
	return kind, nil
}

func (s *TemplateService) CreateTemplate(ctx context.Context, user *model.User, input TemplateInput) (*model.RecurringTemplate, error) {
	kind, err := validateTemplateInput(input)
	if err != nil {
		return nil, err
	}
	if input.Importance == 0 {
		input.Importance = 3
	}

	tpl := model.RecurringTemplate{
		UserID:      user.ID,
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

func (s *TemplateService) ListTemplates(ctx context.Context, user *model.User) ([]model.RecurringTemplate, error) {
	return s.templateRepo.ListByUser(ctx, user.ID)
}

func (s *TemplateService) GetTemplate(ctx context.Context, user *model.User, templateID uint) (*model.RecurringTemplate, error) {
	return s.templateRepo.FindByID(ctx, user.ID, templateID)
}

// UpdateTemplate edits a template and pushes the propagatable fields (URLs,
// start/end time) onto its not-yet-completed instances right away; the next
// generation pass would catch the drift anyway, this just avoids the wait.
func (s *TemplateService) UpdateTemplate(ctx context.Context, user *model.User, templateID uint, input TemplateInput) (*model.RecurringTemplate, error) {
	kind, err := validateTemplateInput(input)
	if err != nil {
		return nil, err
	}

	tpl, err := s.templateRepo.FindByID(ctx, user.ID, templateID)
	if err != nil {
		return nil, err
	}

	tpl.Kind = string(kind)
	tpl.Weekdays = int(recurrence.NewWeekdaySet(input.Recurrence.Weekdays...))
	tpl.DayOfMonth = input.Recurrence.DayOfMonth
	tpl.MonthOfYear = input.Recurrence.MonthOfYear
	tpl.DayOfYear = input.Recurrence.DayOfYear
	tpl.Title = input.Title
	tpl.Memo = input.Memo
	tpl.Category = input.Category
	if input.Importance != 0 {
		tpl.Importance = input.Importance
	}
	tpl.URLs = input.URLs
	tpl.StartTime = input.StartTime
	tpl.EndTime = input.EndTime
	tpl.Checklist = input.Checklist

	if err := s.templateRepo.Save(ctx, tpl); err != nil {
		return nil, err
	}

	open, err := s.taskRepo.ListOpenByTemplate(ctx, user.ID, templateID)
	if err != nil {
		return nil, err
	}
	for i := range open {
		if syncTemplateFields(&open[i], tpl) {
			if err := s.taskRepo.Save(ctx, &open[i]); err != nil {
				return nil, err
			}
		}
	}
	return tpl, nil
}

// SetActive pauses or resumes generation. Re-activation stamps
// last_activated_at so the dormant period is never backfilled.
func (s *TemplateService) SetActive(ctx context.Context, user *model.User, templateID uint, active bool, now time.Time) (*model.RecurringTemplate, error) {
	tpl, err := s.templateRepo.FindByID(ctx, user.ID, templateID)
	if err != nil {
		return nil, err
	}
	if active && !tpl.Active {
		tpl.LastActivatedAt = &now
	}
	tpl.Active = active
	if err := s.templateRepo.Save(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// DeleteTemplate removes a template, detaching its instances first so no task
// is left pointing at a missing rule.
func (s *TemplateService) DeleteTemplate(ctx context.Context, user *model.User, templateID uint) error {
	if err := s.taskRepo.ClearTemplateRefs(ctx, user.ID, templateID); err != nil {
		return err
	}
	return s.templateRepo.Delete(ctx, user.ID, templateID)
}
