package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	taskRepo *repository.TaskRepository
}

func NewReminderService(taskRepo *repository.TaskRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo}
}

// DailySummary renders the user's open tasks: recurring instances due today,
// dated one-offs, and the undated backlog count.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.List(ctx, user.ID, false)
	if err != nil {
		return "", err
	}

	today := recurrence.DateOf(now)
	var dueToday []model.Task
	var pending []model.Task
	backlog := 0

	for _, task := range tasks {
		switch {
		case !task.HasDueDate():
			backlog++
		case task.DueDate.Equal(today):
			dueToday = append(dueToday, task)
		default:
			pending = append(pending, task)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].DueDate.Equal(pending[j].DueDate) {
			return pending[i].DueDate.Before(pending[j].DueDate)
		}
		return pending[i].Importance > pending[j].Importance
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", today.Format("02.01.2006")))

	builder.WriteString("🔥 <b>Due today</b>\n")
	if len(dueToday) == 0 {
		builder.WriteString("— nothing due today\n")
	} else {
		for _, task := range dueToday {
			builder.WriteString(formatTask(task, now))
		}
	}

	builder.WriteString("\n⏳ <b>Upcoming and overdue</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— no other open tasks\n")
	} else {
		for _, task := range pending {
			builder.WriteString(formatTask(task, now))
		}
	}

	if backlog > 0 {
		builder.WriteString(fmt.Sprintf("\n💡 %d undated item(s) in the backlog\n", backlog))
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	today := recurrence.DateOf(now)
	icon := "🟢"
	switch {
	case task.DueDate.Before(today):
		icon = "⚠️"
	case !task.DueDate.After(today.AddDate(0, 0, 2)):
		icon = "⏳"
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))

	if cat := strings.TrimSpace(task.Category); cat != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(cat)))
	}

	if task.DueDate.Before(today) {
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", task.DueDate.Format("2006-01-02")))
	} else if !task.DueDate.Equal(today) {
		daysLeft := int(task.DueDate.Sub(today).Hours() / 24)
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · %d day(s) left", task.DueDate.Format("2006-01-02"), daysLeft))
	}

	if task.StartTime != nil {
		if task.EndTime != nil {
			sb.WriteString(fmt.Sprintf("\n   🕐 %s–%s", *task.StartTime, *task.EndTime))
		} else {
			sb.WriteString(fmt.Sprintf("\n   🕐 %s", *task.StartTime))
		}
	}

	if task.Memo != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Memo))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
