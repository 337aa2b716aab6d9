package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-planner/internal/bot"
	"task-planner/internal/config"
	"task-planner/internal/repository"
	"task-planner/internal/service"
	"task-planner/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	subtaskRepo := repository.NewSubtaskRepository(db)
	stateRepo := repository.NewGenerationStateRepository(db)

	taskSvc := service.NewTaskService(taskRepo, subtaskRepo, templateRepo)
	templateSvc := service.NewTemplateService(templateRepo, taskRepo)
	reminderSvc := service.NewReminderService(taskRepo)
	generator := service.NewGenerator(templateRepo, taskRepo, subtaskRepo, stateRepo, logger)

	scheduler := service.NewSchedulerService(time.Local)

	// Nightly pass keeps instances fresh even for users who don't open the
	// app every day.
	if _, err := scheduler.ScheduleDaily(cfg.GenerationTime, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		users, err := userRepo.ListAll(jobCtx)
		if err != nil {
			logger.Error("list users for nightly generation", "error", err)
			return
		}
		for _, user := range users {
			if err := generator.GenerateMissingTasks(jobCtx, user.ID, false); err != nil {
				logger.Error("nightly generation", "user", user.ID, "error", err)
			}
		}
	}); err != nil {
		log.Fatalf("schedule generation: %v", err)
	}

	if cfg.ReportInterval > 0 {
		notifier, err := bot.NewNotifier(cfg.TelegramToken, userRepo, reminderSvc, generator, logger)
		if err != nil {
			log.Fatalf("notifier: %v", err)
		}
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := notifier.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("report", "error", err)
			}
		}); err != nil {
			log.Fatalf("schedule reports: %v", err)
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	server := web.NewServer(userRepo, taskSvc, templateSvc, reminderSvc, generator, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(cfg.HTTPAddr)
	}()

	log.Printf("Task planner listening on %s", cfg.HTTPAddr)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server stopped with error: %v", err)
		}
	case <-ctx.Done():
	}
	log.Println("Shutdown complete.")
}
