package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

const testUserID uint = 1

type testEnv struct {
	templates *repository.TemplateRepository
	tasks     *repository.TaskRepository
	subtasks  *repository.SubtaskRepository
	state     *repository.GenerationStateRepository
	gen       *Generator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)

	env := &testEnv{
		templates: repository.NewTemplateRepository(db),
		tasks:     repository.NewTaskRepository(db),
		subtasks:  repository.NewSubtaskRepository(db),
		state:     repository.NewGenerationStateRepository(db),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.gen = NewGenerator(env.templates, env.tasks, env.subtasks, env.state, logger)
	return env
}

func (e *testEnv) setToday(d time.Time) {
	e.gen.WithClock(func() time.Time { return d })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) createWeeklyTemplate(t *testing.T, createdAt time.Time, weekdays ...int) *model.RecurringTemplate {
	t.Helper()
	tpl := &model.RecurringTemplate{
		UserID:     testUserID,
		Kind:       string(recurrence.Weekly),
		Weekdays:   int(recurrence.NewWeekdaySet(weekdays...)),
		Title:      "gym",
		Category:   "health",
		Importance: 3,
		Active:     true,
		CreatedAt:  createdAt,
	}
	require.NoError(t, e.templates.Create(context.Background(), tpl))
	return tpl
}

func (e *testEnv) dueDates(t *testing.T) []time.Time {
	t.Helper()
	tasks, err := e.tasks.List(context.Background(), testUserID, true)
	require.NoError(t, err)
	var dates []time.Time
	for _, task := range tasks {
		dates = append(dates, task.DueDate)
	}
	return dates
}

func TestGenerate_WeeklyEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Created on Monday 2024-01-01, fires Mon/Wed/Fri.
	env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	env.setToday(day(2024, time.January, 10)) // a Wednesday

	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	want := []time.Time{
		day(2024, time.January, 1),
		day(2024, time.January, 3),
		day(2024, time.January, 5),
		day(2024, time.January, 8),
		day(2024, time.January, 10),
	}
	assert.Equal(t, want, env.dueDates(t), "every Mon/Wed/Fri in range, none before creation")
}

func TestGenerate_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	env.setToday(day(2024, time.January, 10))

	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	first := env.dueDates(t)

	// Same day, no elapsed time: zero additional instances, with and without
	// the manual nudge.
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, true))
	assert.Equal(t, first, env.dueDates(t))
}

func TestGenerate_WatermarkGatesDailyPass(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tpl := env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	env.setToday(day(2024, time.January, 10))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	state, err := env.state.Get(ctx, testUserID)
	require.NoError(t, err)
	require.NotNil(t, state.LastTaskGeneration)
	assert.Equal(t, day(2024, time.January, 10), recurrence.DateOf(*state.LastTaskGeneration))

	// Delete a past instance, re-run the same day without force: the gated
	// pass does not regenerate it.
	past, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 8))
	require.NoError(t, err)
	require.NotNil(t, past)
	require.NoError(t, env.tasks.Delete(ctx, testUserID, past.ID))

	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	past, err = env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 8))
	require.NoError(t, err)
	assert.Nil(t, past, "watermark-current run must not rescan the window")

	// The next day rolls the period over and backfills it again.
	env.setToday(day(2024, time.January, 11))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	past, err = env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 8))
	require.NoError(t, err)
	assert.NotNil(t, past)
}

func TestGenerate_CompletedInstanceNeverResurrected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tpl := env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	env.setToday(day(2024, time.January, 10))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	inst, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 8))
	require.NoError(t, err)
	require.NotNil(t, inst)
	done := day(2024, time.January, 8).Add(20 * time.Hour)
	inst.Completed = true
	inst.CompletedAt = &done
	require.NoError(t, env.tasks.Save(ctx, inst))

	// Template gains a URL; the completed instance must stay untouched while
	// open siblings pick it up on the next rollover.
	tpl.URLs = []string{"https://x"}
	require.NoError(t, env.templates.Save(ctx, tpl))

	env.setToday(day(2024, time.January, 11))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	got, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 8))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Completed)
	assert.Empty(t, got.URLs, "completed instance must not receive template edits")

	open, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 10))
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, []string{"https://x"}, open.URLs, "open instance must be synced")
}

func TestGenerate_DailyRetentionWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tpl := &model.RecurringTemplate{
		UserID:     testUserID,
		Kind:       string(recurrence.Daily),
		Title:      "meds",
		Importance: 3,
		Active:     true,
		CreatedAt:  day(2024, time.January, 1),
	}
	require.NoError(t, env.templates.Create(ctx, tpl))

	today := day(2024, time.June, 10)

	// Plant a stale open instance and a future instance by hand.
	for _, d := range []time.Time{day(2024, time.June, 1), day(2024, time.June, 15)} {
		id := tpl.ID
		require.NoError(t, env.tasks.Create(ctx, &model.Task{
			UserID: testUserID, TemplateID: &id, Title: "meds", DueDate: d,
		}))
	}
	// A completed stale instance survives the sweep.
	id := tpl.ID
	doneAt := day(2024, time.May, 20).Add(8 * time.Hour)
	require.NoError(t, env.tasks.Create(ctx, &model.Task{
		UserID: testUserID, TemplateID: &id, Title: "meds",
		DueDate: day(2024, time.May, 20), Completed: true, CompletedAt: &doneAt,
	}))

	env.setToday(today)
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	tasks, err := env.tasks.List(ctx, testUserID, true)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.Completed {
			continue
		}
		assert.False(t, task.DueDate.Before(today.AddDate(0, 0, -3)), "no open daily instance before D-3, got %s", task.DueDate)
		assert.False(t, task.DueDate.After(today), "no future daily instance, got %s", task.DueDate)
	}
	// The look-back buffer itself was materialized.
	for _, d := range []time.Time{day(2024, time.June, 8), day(2024, time.June, 9), today} {
		inst, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, d)
		require.NoError(t, err)
		assert.NotNil(t, inst, "missing daily instance for %s", d)
	}
	// And the completed history row is still there.
	hist, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.May, 20))
	require.NoError(t, err)
	assert.NotNil(t, hist)
}

func TestGenerate_NoBackfillBeforeReactivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tpl := env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	reactivated := day(2024, time.January, 8)
	tpl.LastActivatedAt = &reactivated
	require.NoError(t, env.templates.Save(ctx, tpl))

	env.setToday(day(2024, time.January, 10))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	want := []time.Time{day(2024, time.January, 8), day(2024, time.January, 10)}
	assert.Equal(t, want, env.dueDates(t), "dormant period before re-activation must not be backfilled")
}

func TestGenerate_InactiveTemplateSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tpl := env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	tpl.Active = false
	require.NoError(t, env.templates.Save(ctx, tpl))

	env.setToday(day(2024, time.January, 10))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	assert.Empty(t, env.dueDates(t))
}

func TestGenerate_ShoppingChecklistStamped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tpl := &model.RecurringTemplate{
		UserID:     testUserID,
		Kind:       string(recurrence.Weekly),
		Weekdays:   int(recurrence.NewWeekdaySet(6)), // Saturday
		Title:      "groceries",
		Category:   model.CategoryShopping,
		Importance: 3,
		Checklist:  []string{"milk", "bread", "eggs"},
		Active:     true,
		CreatedAt:  day(2024, time.January, 1),
	}
	require.NoError(t, env.templates.Create(ctx, tpl))

	env.setToday(day(2024, time.January, 6)) // a Saturday
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	inst, err := env.tasks.FindByTemplateAndDate(ctx, testUserID, tpl.ID, day(2024, time.January, 6))
	require.NoError(t, err)
	require.NotNil(t, inst)

	subs, err := env.subtasks.ListByTask(ctx, testUserID, inst.ID)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for i, title := range tpl.Checklist {
		assert.Equal(t, title, subs[i].Title)
		assert.False(t, subs[i].Done)
	}
}

func TestGenerate_LockContentionSkipsSilently(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	now := day(2024, time.January, 10).Add(9 * time.Hour)
	env.setToday(now)

	// Another process holds a fresh lease.
	held, err := env.state.AcquireLock(ctx, testUserID, "other-holder", now.Add(-time.Minute), lockTimeout)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	assert.Empty(t, env.dueDates(t), "contended invocation must do nothing")

	state, err := env.state.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "other-holder", state.LockToken, "foreign lease must survive the skipped run")
}

func TestGenerate_StaleLockIsTakenOver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createWeeklyTemplate(t, day(2024, time.January, 1), 1, 3, 5)
	now := day(2024, time.January, 10).Add(9 * time.Hour)
	env.setToday(now)

	// A crashed process left a lease older than the timeout.
	held, err := env.state.AcquireLock(ctx, testUserID, "crashed-holder", now.Add(-10*time.Minute), lockTimeout)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	assert.NotEmpty(t, env.dueDates(t), "stale lease must not block generation")

	state, err := env.state.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, state.LockToken, "lease must be released after the pass")
	assert.Nil(t, state.LockAcquiredAt)
}

func TestCarryForward_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	today := day(2024, time.March, 4)
	doneAt := today.Add(10 * time.Hour)
	src := &model.Task{
		UserID:      testUserID,
		Title:       "groceries",
		Category:    model.CategoryShopping,
		Importance:  3,
		DueDate:     today,
		Completed:   true,
		CompletedAt: &doneAt,
	}
	require.NoError(t, env.tasks.Create(ctx, src))
	_, err := env.subtasks.Create(ctx, testUserID, src.ID, "milk")
	require.NoError(t, err)
	_, err = env.subtasks.Create(ctx, testUserID, src.ID, "bread")
	require.NoError(t, err)
	bought, err := env.subtasks.Create(ctx, testUserID, src.ID, "eggs")
	require.NoError(t, err)
	require.NoError(t, env.subtasks.SetDone(ctx, testUserID, bought.ID, true))

	env.setToday(today.Add(12 * time.Hour))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	tasks, err := env.tasks.List(ctx, testUserID, true)
	require.NoError(t, err)
	require.Len(t, tasks, 2, "exactly one carry-forward task created")

	var carried *model.Task
	for i := range tasks {
		if tasks[i].ID != src.ID {
			carried = &tasks[i]
		}
	}
	require.NotNil(t, carried)
	assert.Equal(t, "groceries", carried.Title)
	assert.Equal(t, model.CategoryShopping, carried.Category)
	assert.Equal(t, model.NoDueDate, carried.DueDate)
	assert.False(t, carried.HasDueDate())
	assert.Nil(t, carried.TemplateID)

	subs, err := env.subtasks.ListByTask(ctx, testUserID, carried.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2, "only the unbought items move")
	assert.Equal(t, "milk", subs[0].Title)
	assert.Equal(t, "bread", subs[1].Title)
	assert.False(t, subs[0].Done)
	assert.False(t, subs[1].Done)

	gotSrc, err := env.tasks.FindByID(ctx, testUserID, src.ID)
	require.NoError(t, err)
	assert.True(t, gotSrc.CarriedForward)

	// Second pass, same day: nothing new.
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))
	tasks, err = env.tasks.List(ctx, testUserID, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestCarryForward_NoOpenItemsStillMarked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	today := day(2024, time.March, 4)
	doneAt := today.Add(10 * time.Hour)
	src := &model.Task{
		UserID:      testUserID,
		Title:       "groceries",
		Category:    model.CategoryShopping,
		Importance:  3,
		DueDate:     today,
		Completed:   true,
		CompletedAt: &doneAt,
	}
	require.NoError(t, env.tasks.Create(ctx, src))
	sub, err := env.subtasks.Create(ctx, testUserID, src.ID, "milk")
	require.NoError(t, err)
	require.NoError(t, env.subtasks.SetDone(ctx, testUserID, sub.ID, true))

	env.setToday(today.Add(12 * time.Hour))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	tasks, err := env.tasks.List(ctx, testUserID, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "fully bought list spawns nothing")

	gotSrc, err := env.tasks.FindByID(ctx, testUserID, src.ID)
	require.NoError(t, err)
	assert.True(t, gotSrc.CarriedForward, "still marked so it drops out of future batches")
}

func TestCarryForward_SameDayCompletionAfterEarlierRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	today := day(2024, time.March, 4)
	env.setToday(today.Add(9 * time.Hour))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	// A shopping task completes after the morning run.
	doneAt := today.Add(15 * time.Hour)
	src := &model.Task{
		UserID:      testUserID,
		Title:       "groceries",
		Category:    model.CategoryShopping,
		Importance:  3,
		DueDate:     today,
		Completed:   true,
		CompletedAt: &doneAt,
	}
	require.NoError(t, env.tasks.Create(ctx, src))
	_, err := env.subtasks.Create(ctx, testUserID, src.ID, "milk")
	require.NoError(t, err)

	env.setToday(today.Add(16 * time.Hour))
	require.NoError(t, env.gen.GenerateMissingTasks(ctx, testUserID, false))

	gotSrc, err := env.tasks.FindByID(ctx, testUserID, src.ID)
	require.NoError(t, err)
	assert.True(t, gotSrc.CarriedForward, "watermark day is rescanned inclusively")
}
