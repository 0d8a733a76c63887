package reminder

import (
	"context"
	"time"

	"remindbot/internal/schedule"
	"remindbot/internal/transport"
)

// Task is a stored reminder owned by one recipient. Rows are immutable:
// created once, deleted on retirement, never updated.
type Task struct {
	ID        int64
	Recipient transport.Recipient
	Title     string
	Body      string
	Schedule  schedule.Schedule

	// CreatedAt anchors the recurrence window (see schedule.Next).
	CreatedAt time.Time
}

// TaskDraft is a task before persistence has assigned it an id.
type TaskDraft struct {
	Recipient transport.Recipient
	Title     string
	Body      string
	Schedule  schedule.Schedule
}

// Store is the persistence capability the reminder core consumes.
type Store interface {
	CreateTask(ctx context.Context, d TaskDraft) (Task, error)
	LoadAllTasks(ctx context.Context) ([]Task, error)
	TasksFor(ctx context.Context, r transport.Recipient) ([]Task, error)
	DeleteTask(ctx context.Context, id int64) error
}
