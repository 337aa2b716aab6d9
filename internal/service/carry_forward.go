package service

import (
	"context"
	"fmt"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

// carryForwardShopping moves uncompleted checklist items from recently
// completed shopping tasks into fresh undated tasks, exactly once per
// completion. The query window starts at the shopping watermark inclusively
// so completions later in an already-processed day are still seen; the
// carried_forward flag keeps reprocessing harmless. Individual bad records
// are logged and skipped, and the watermark still advances.
func (g *Generator) carryForwardShopping(ctx context.Context, userID uint, state *model.GenerationState, today time.Time) error {
	from := time.Time{}
	if state.LastShoppingProcessed != nil {
		from = recurrence.DateOf(*state.LastShoppingProcessed)
	}

	completed, err := g.taskRepo.CompletedShoppingBetween(ctx, userID, from, today)
	if err != nil {
		return fmt.Errorf("list completed shopping tasks: %w", err)
	}

	failures := 0
	for i := range completed {
		task := &completed[i]
		if task.CarriedForward {
			continue
		}
		if err := g.carryForwardOne(ctx, task); err != nil {
			failures++
			g.logger.Error("carry forward shopping task", "user", userID, "task", task.ID, "error", err)
		}
	}
	if failures > 0 {
		g.logger.Warn("carry-forward batch finished with failures", "user", userID, "failed", failures, "total", len(completed))
	}

	if err := g.stateRepo.SetShoppingWatermark(ctx, userID, today); err != nil {
		return err
	}
	return nil
}

func (g *Generator) carryForwardOne(ctx context.Context, task *model.Task) error {
	subs, err := g.subtaskRepo.ListByTask(ctx, task.UserID, task.ID)
	if err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}

	var open []model.Subtask
	for _, sub := range subs {
		if !sub.Done {
			open = append(open, sub)
		}
	}

	// Fully bought lists have nothing to move but are still marked so they
	// drop out of future batches.
	if len(open) > 0 {
		next := model.Task{
			UserID:     task.UserID,
			Title:      task.Title,
			Memo:       task.Memo,
			Category:   task.Category,
			Importance: task.Importance,
			DueDate:    model.NoDueDate,
		}
		if err := g.taskRepo.Create(ctx, &next); err != nil {
			return err
		}
		for _, sub := range open {
			if _, err := g.subtaskRepo.Create(ctx, task.UserID, next.ID, sub.Title); err != nil {
				return err
			}
		}
	}

	task.CarriedForward = true
	return g.taskRepo.Save(ctx, task)
}
