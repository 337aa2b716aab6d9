package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

// TemplateRepository handles CRUD for recurring templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *model.RecurringTemplate) error {
	if err := r.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Save(ctx context.Context, tpl *model.RecurringTemplate) error {
	if err := r.db.WithContext(ctx).Save(tpl).Error; err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, userID, templateID uint) (*model.RecurringTemplate, error) {
	var tpl model.RecurringTemplate
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, templateID).First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListActiveByKind returns the user's active templates of one pattern kind.
func (r *TemplateRepository) ListActiveByKind(ctx context.Context, userID uint, kind recurrence.Kind) ([]model.RecurringTemplate, error) {
	var templates []model.RecurringTemplate
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND active = ?", userID, string(kind), true).
		Order("id ASC").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepository) ListByUser(ctx context.Context, userID uint) ([]model.RecurringTemplate, error) {
	var templates []model.RecurringTemplate
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// FindDuplicate looks up a template with the same title, pattern kind and
// category, the dedupe key for template-from-task promotion.
func (r *TemplateRepository) FindDuplicate(ctx context.Context, userID uint, title, kind, category string) (*model.RecurringTemplate, error) {
	var tpl model.RecurringTemplate
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND title = ? AND kind = ? AND category = ?", userID, title, kind, category).
		First(&tpl).Error
	switch {
	case err == nil:
		return &tpl, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find duplicate template: %w", err)
	}
}

func (r *TemplateRepository) Delete(ctx context.Context, userID, templateID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, templateID).
		Delete(&model.RecurringTemplate{}).Error; err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}
