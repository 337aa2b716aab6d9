// Package bot delivers daily report messages over Telegram. It only sends;
// task management happens through the web API.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/repository"
	"task-planner/internal/service"
)

// Notifier pushes daily summaries to users who linked a Telegram chat.
type Notifier struct {
	api         *tgbotapi.BotAPI
	userRepo    *repository.UserRepository
	reminderSvc *service.ReminderService
	generator   *service.Generator
	logger      *slog.Logger
}

func NewNotifier(token string, userRepo *repository.UserRepository, reminderSvc *service.ReminderService, generator *service.Generator, logger *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		api:         api,
		userRepo:    userRepo,
		reminderSvc: reminderSvc,
		generator:   generator,
		logger:      logger,
	}, nil
}

// SendDailyReports sends a summary to every user with a linked chat. A
// generation pass runs first so the report reflects today's instances.
// Per-user failures are logged and skipped.
func (n *Notifier) SendDailyReports(ctx context.Context) error {
	users, err := n.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramChatID == 0 {
			continue
		}
		if err := n.generator.GenerateMissingTasks(ctx, user.ID, false); err != nil {
			n.logger.Error("generate before report", "user", user.ID, "error", err)
		}
		text, err := n.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			n.logger.Error("build summary", "user", user.ID, "error", err)
			continue
		}
		msg := tgbotapi.NewMessage(user.TelegramChatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(msg); err != nil {
			n.logger.Error("send summary", "user", user.ID, "error", err)
		}
	}
	return nil
}
