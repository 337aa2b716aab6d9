package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

// SubtaskRepository handles checklist rows under tasks.
type SubtaskRepository struct {
	db *gorm.DB
}

func NewSubtaskRepository(db *gorm.DB) *SubtaskRepository {
	return &SubtaskRepository{db: db}
}

func (r *SubtaskRepository) Create(ctx context.Context, userID, taskID uint, title string) (*model.Subtask, error) {
	sub := model.Subtask{UserID: userID, TaskID: taskID, Title: title}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("create subtask: %w", err)
	}
	return &sub, nil
}

func (r *SubtaskRepository) ListByTask(ctx context.Context, userID, taskID uint) ([]model.Subtask, error) {
	var subs []model.Subtask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		Order("id ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubtaskRepository) SetDone(ctx context.Context, userID, subtaskID uint, done bool) error {
	res := r.db.WithContext(ctx).Model(&model.Subtask{}).
		Where("user_id = ? AND id = ?", userID, subtaskID).
		Update("done", done)
	if res.Error != nil {
		return fmt.Errorf("set subtask done: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *SubtaskRepository) DeleteByTask(ctx context.Context, userID, taskID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND task_id = ?", userID, taskID).
		Delete(&model.Subtask{}).Error; err != nil {
		return fmt.Errorf("delete subtasks: %w", err)
	}
	return nil
}
