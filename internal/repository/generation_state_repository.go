package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

// GenerationStateRepository manages the per-user generation metadata
// singleton. Lock and watermark writes are conditional UPDATEs checked via
// RowsAffected, so concurrent passes resolve in the database rather than in
// process memory.
type GenerationStateRepository struct {
	db *gorm.DB
}

func NewGenerationStateRepository(db *gorm.DB) *GenerationStateRepository {
	return &GenerationStateRepository{db: db}
}

// Get returns the user's generation state, creating the row on first use.
func (r *GenerationStateRepository) Get(ctx context.Context, userID uint) (*model.GenerationState, error) {
	var state model.GenerationState
	if err := r.db.WithContext(ctx).
		Where(model.GenerationState{UserID: userID}).
		FirstOrCreate(&state).Error; err != nil {
		return nil, fmt.Errorf("get generation state: %w", err)
	}
	return &state, nil
}

// AcquireLock takes the generation lease when it is free or stale. Returns
// false without error when another holder owns a fresh lease.
func (r *GenerationStateRepository) AcquireLock(ctx context.Context, userID uint, token string, now time.Time, staleAfter time.Duration) (bool, error) {
	if _, err := r.Get(ctx, userID); err != nil {
		return false, err
	}
	staleBefore := now.Add(-staleAfter)
	res := r.db.WithContext(ctx).Model(&model.GenerationState{}).
		Where("user_id = ? AND (lock_acquired_at IS NULL OR lock_acquired_at < ?)", userID, staleBefore).
		Updates(map[string]interface{}{
			"lock_acquired_at": now,
			"lock_token":       token,
		})
	if res.Error != nil {
		return false, fmt.Errorf("acquire generation lock: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReleaseLock frees the lease only when it is still held under the given
// token, so a holder evicted by stale-lock takeover cannot free the
// successor's lease.
func (r *GenerationStateRepository) ReleaseLock(ctx context.Context, userID uint, token string) error {
	res := r.db.WithContext(ctx).Model(&model.GenerationState{}).
		Where("user_id = ? AND lock_token = ?", userID, token).
		Updates(map[string]interface{}{
			"lock_acquired_at": nil,
			"lock_token":       "",
		})
	if res.Error != nil {
		return fmt.Errorf("release generation lock: %w", res.Error)
	}
	return nil
}

// AdvanceTaskWatermark moves the daily-pass watermark to next, but only if it
// still holds the value read at pass start. Returns false when a concurrent
// pass advanced it first.
func (r *GenerationStateRepository) AdvanceTaskWatermark(ctx context.Context, userID uint, prev *time.Time, next time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.GenerationState{}).Where("user_id = ?", userID)
	if prev == nil {
		q = q.Where("last_task_generation IS NULL")
	} else {
		q = q.Where("last_task_generation = ?", *prev)
	}
	res := q.Update("last_task_generation", next)
	if res.Error != nil {
		return false, fmt.Errorf("advance task watermark: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetShoppingWatermark records the date through which shopping carry-forward
// has been reconciled. Last write wins; the carried_forward flag on tasks is
// what keeps reconciliation exactly-once.
func (r *GenerationStateRepository) SetShoppingWatermark(ctx context.Context, userID uint, date time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.GenerationState{}).
		Where("user_id = ?", userID).
		Update("last_shopping_processed", date).Error; err != nil {
		return fmt.Errorf("set shopping watermark: %w", err)
	}
	return nil
}

// ClearLock drops the lease unconditionally. Operational escape hatch only;
// normal release goes through ReleaseLock.
func (r *GenerationStateRepository) ClearLock(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.GenerationState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"lock_acquired_at": nil, "lock_token": ""}).Error; err != nil {
		return fmt.Errorf("clear generation lock: %w", err)
	}
	return nil
}
