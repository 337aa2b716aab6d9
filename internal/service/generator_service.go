package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

// lockTimeout is how long a generation lease may sit before another caller is
// allowed to take it over.
const lockTimeout = 5 * time.Minute

// Generator materializes task instances from recurring templates for a
// bounded date window, keeps them in sync with template edits, sweeps stale
// and future instances, and carries unfinished shopping checklist items
// forward. One pass runs per user per day, guarded by an advisory lease; the
// per-(template,date) unique index makes concurrent passes degrade to
// redundant work rather than duplicates.
type Generator struct {
	templateRepo templateStore
	taskRepo     taskStore
	subtaskRepo  subtaskStore
	stateRepo    generationStateStore
	now          func() time.Time
	logger       *slog.Logger
}

type templateStore interface {
	ListActiveByKind(ctx context.Context, userID uint, kind recurrence.Kind) ([]model.RecurringTemplate, error)
}

type taskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Save(ctx context.Context, task *model.Task) error
	FindByTemplateAndDate(ctx context.Context, userID, templateID uint, date time.Time) (*model.Task, error)
	DeleteExpired(ctx context.Context, userID uint, kind recurrence.Kind, cutoff time.Time) (int64, error)
	DeleteFuture(ctx context.Context, userID uint, kind recurrence.Kind, cutoff time.Time) (int64, error)
	CompletedShoppingBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.Task, error)
}

type subtaskStore interface {
	Create(ctx context.Context, userID, taskID uint, title string) (*model.Subtask, error)
	ListByTask(ctx context.Context, userID, taskID uint) ([]model.Subtask, error)
}

type generationStateStore interface {
	Get(ctx context.Context, userID uint) (*model.GenerationState, error)
	AcquireLock(ctx context.Context, userID uint, token string, now time.Time, staleAfter time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, userID uint, token string) error
	AdvanceTaskWatermark(ctx context.Context, userID uint, prev *time.Time, next time.Time) (bool, error)
	SetShoppingWatermark(ctx context.Context, userID uint, date time.Time) error
}

func NewGenerator(templateRepo templateStore, taskRepo taskStore, subtaskRepo subtaskStore, stateRepo generationStateStore, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		templateRepo: templateRepo,
		taskRepo:     taskRepo,
		subtaskRepo:  subtaskRepo,
		stateRepo:    stateRepo,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock overrides the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateMissingTasks runs one generation pass for the user. forceToday runs
// the create-or-sync step even when the daily watermark is current, over a
// single-day window. Lock contention is a silent no-op; storage errors
// surface to the caller after the lock is released, and re-running is always
// safe.
func (g *Generator) GenerateMissingTasks(ctx context.Context, userID uint, forceToday bool) error {
	now := g.now()
	today := recurrence.DateOf(now)

	token := uuid.NewString()
	acquired, err := g.stateRepo.AcquireLock(ctx, userID, token, now, lockTimeout)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		g.logger.Debug("generation already in progress, skipping", "user", userID)
		return nil
	}
	defer func() {
		if err := g.stateRepo.ReleaseLock(ctx, userID, token); err != nil {
			g.logger.Error("release generation lock", "user", userID, "error", err)
		}
	}()

	state, err := g.stateRepo.Get(ctx, userID)
	if err != nil {
		return err
	}

	rolledOver := state.LastTaskGeneration == nil || recurrence.DateOf(*state.LastTaskGeneration).Before(today)

	var errs []error
	if rolledOver || forceToday {
		if err := g.generatePass(ctx, userID, today, rolledOver); err != nil {
			errs = append(errs, err)
		} else if rolledOver {
			// Manual nudges without a rollover are not the authoritative
			// daily pass and must not move the watermark.
			moved, err := g.stateRepo.AdvanceTaskWatermark(ctx, userID, state.LastTaskGeneration, today)
			if err != nil {
				errs = append(errs, err)
			} else if !moved {
				g.logger.Debug("watermark advanced by concurrent pass", "user", userID)
			}
		}
	}

	// The sweep and the shopping reconciler are idempotent and cheap, so they
	// run on every invocation regardless of watermark freshness.
	if err := g.sweep(ctx, userID, today); err != nil {
		errs = append(errs, err)
	}
	if err := g.carryForwardShopping(ctx, userID, state, today); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// generatePass walks every active template of every kind across its window
// and reconciles each firing date. fullWindow=false collapses the window to
// today only, for forceToday re-runs within an already-generated day.
func (g *Generator) generatePass(ctx context.Context, userID uint, today time.Time, fullWindow bool) error {
	for _, kind := range recurrence.Kinds() {
		start, end := recurrence.Window(kind, today)
		if !fullWindow {
			start = today
		}

		templates, err := g.templateRepo.ListActiveByKind(ctx, userID, kind)
		if err != nil {
			return fmt.Errorf("list %s templates: %w", kind, err)
		}
		for i := range templates {
			tpl := &templates[i]
			rule := tpl.Rule()
			for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
				if !rule.OccursOn(date) {
					continue
				}
				if err := g.reconcileInstance(ctx, tpl, date); err != nil {
					return fmt.Errorf("template %d on %s: %w", tpl.ID, date.Format(time.DateOnly), err)
				}
			}
		}
	}
	return nil
}

// reconcileInstance is the create-or-sync step for one (template, date) pair.
func (g *Generator) reconcileInstance(ctx context.Context, tpl *model.RecurringTemplate, date time.Time) error {
	existing, err := g.taskRepo.FindByTemplateAndDate(ctx, tpl.UserID, tpl.ID, date)
	if err != nil {
		return err
	}
	if existing != nil {
		// Finished instances are never resurrected or edited.
		if existing.Completed {
			return nil
		}
		if syncTemplateFields(existing, tpl) {
			return g.taskRepo.Save(ctx, existing)
		}
		return nil
	}

	// Never backfill dates from before the template existed or while it was
	// dormant.
	if date.Before(tpl.EarliestInstanceDate()) {
		return nil
	}

	templateID := tpl.ID
	task := model.Task{
		UserID:     tpl.UserID,
		TemplateID: &templateID,
		Title:      tpl.Title,
		Memo:       tpl.Memo,
		Category:   tpl.Category,
		Importance: tpl.Importance,
		URLs:       slices.Clone(tpl.URLs),
		StartTime:  cloneString(tpl.StartTime),
		EndTime:    cloneString(tpl.EndTime),
		DueDate:    recurrence.DateOf(date),
	}
	if err := g.taskRepo.Create(ctx, &task); err != nil {
		return err
	}
	if tpl.Category == model.CategoryShopping {
		for _, item := range tpl.Checklist {
			if _, err := g.subtaskRepo.Create(ctx, tpl.UserID, task.ID, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncTemplateFields copies propagatable template fields onto a drifted open
// instance, reporting whether anything changed.
func syncTemplateFields(task *model.Task, tpl *model.RecurringTemplate) bool {
	changed := false
	if !slices.Equal(task.URLs, tpl.URLs) {
		task.URLs = slices.Clone(tpl.URLs)
		changed = true
	}
	if !equalString(task.StartTime, tpl.StartTime) {
		task.StartTime = cloneString(tpl.StartTime)
		changed = true
	}
	if !equalString(task.EndTime, tpl.EndTime) {
		task.EndTime = cloneString(tpl.EndTime)
		changed = true
	}
	return changed
}

// sweep deletes uncompleted instances past their retention threshold and any
// instance dated beyond the materialization window.
func (g *Generator) sweep(ctx context.Context, userID uint, today time.Time) error {
	var errs []error
	for _, kind := range recurrence.Kinds() {
		if n, err := g.taskRepo.DeleteExpired(ctx, userID, kind, recurrence.ExpiryCutoff(kind, today)); err != nil {
			errs = append(errs, fmt.Errorf("expire %s tasks: %w", kind, err))
		} else if n > 0 {
			g.logger.Info("expired stale instances", "user", userID, "kind", kind, "count", n)
		}
		if n, err := g.taskRepo.DeleteFuture(ctx, userID, kind, recurrence.FutureCutoff(kind, today)); err != nil {
			errs = append(errs, fmt.Errorf("trim future %s tasks: %w", kind, err))
		} else if n > 0 {
			g.logger.Info("removed future instances", "user", userID, "kind", kind, "count", n)
		}
	}
	return errors.Join(errs...)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
