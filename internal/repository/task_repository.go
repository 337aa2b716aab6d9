package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

// TaskRepository handles CRUD for task instances.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByTemplateAndDate returns the instance materialized from a template for
// one date, or nil when none exists.
func (r *TaskRepository) FindByTemplateAndDate(ctx context.Context, userID, templateID uint, date time.Time) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND template_id = ? AND due_date = ?", userID, templateID, recurrence.DateOf(date)).
		First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find task by template and date: %w", err)
	}
}

// List returns the user's tasks, open ones first, dated ones by due date.
func (r *TaskRepository) List(ctx context.Context, userID uint, includeCompleted bool) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeCompleted {
		q = q.Where("completed = ?", false)
	}
	var tasks []model.Task
	if err := q.Order("completed ASC, due_date ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListOpenByTemplate returns not-yet-completed instances linked to a template.
func (r *TaskRepository) ListOpenByTemplate(ctx context.Context, userID, templateID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND template_id = ? AND completed = ?", userID, templateID, false).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) templateKindSubquery(userID uint, kind recurrence.Kind) *gorm.DB {
	return r.db.Model(&model.RecurringTemplate{}).Select("id").
		Where("user_id = ? AND kind = ?", userID, string(kind))
}

// DeleteExpired removes uncompleted instances of templates with the given
// kind dated before cutoff. Completed instances are kept as history.
func (r *TaskRepository) DeleteExpired(ctx context.Context, userID uint, kind recurrence.Kind, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND completed = ? AND due_date < ? AND template_id IN (?)",
			userID, false, recurrence.DateOf(cutoff), r.templateKindSubquery(userID, kind)).
		Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteFuture removes instances of templates with the given kind dated after
// cutoff; only the window through today should ever be materialized.
func (r *TaskRepository) DeleteFuture(ctx context.Context, userID uint, kind recurrence.Kind, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND due_date > ? AND due_date < ? AND template_id IN (?)",
			userID, recurrence.DateOf(cutoff), model.NoDueDate, r.templateKindSubquery(userID, kind)).
		Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete future tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CompletedShoppingBetween returns shopping tasks completed within the
// inclusive date range [from, to].
func (r *TaskRepository) CompletedShoppingBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND category = ? AND completed = ? AND completed_at >= ? AND completed_at < ?",
			userID, model.CategoryShopping, true, recurrence.DateOf(from), recurrence.DateOf(to).AddDate(0, 0, 1)).
		Order("completed_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ClearTemplateRefs detaches instances from a template before it is deleted.
func (r *TaskRepository) ClearTemplateRefs(ctx context.Context, userID, templateID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND template_id = ?", userID, templateID).
		Update("template_id", nil).Error; err != nil {
		return fmt.Errorf("clear template refs: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).
		Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
