package service

import (
	"context"
	"time"

	"taskflow/internal/model"
	"taskflow/internal/repository"
)

// TaskStore is the task persistence the services need. Every write is field-scoped;
// the Mark*/Advance* methods are conditional and report whether they applied.
type TaskStore interface {
	Get(ctx context.Context, id string) (*model.Task, error)
	GetDetailed(ctx context.Context, id string) (*model.Task, error)
	Children(ctx context.Context, parentID string) ([]model.Task, error)
	FindRecurring(ctx context.Context) ([]model.Task, error)
	FindDueReminders(ctx context.Context, now time.Time) ([]model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	MarkDone(ctx context.Context, id string) (bool, error)
	MarkReminderSent(ctx context.Context, id string, now time.Time) (bool, error)
	AdvanceWatermark(ctx context.Context, id string, occurrence, anchor time.Time) (bool, error)
	AddFollower(ctx context.Context, taskID, userID string) error
	RemoveFollower(ctx context.Context, taskID, userID string) error
	List(ctx context.Context, viewerID string, f repository.TaskFilter) ([]model.Task, error)
	Delete(ctx context.Context, id string) error
}

type HistoryStore interface {
	Append(ctx context.Context, records ...model.TaskHistory) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type UserStore interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

type TeamStore interface {
	Get(ctx context.Context, id string) (*model.Team, error)
}

// Transactor runs fn atomically; stores called with the ctx passed to fn join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pusher is the live delivery channel: it reports whether any connected session took n.
type Pusher interface {
	Push(ctx context.Context, userID string, n model.Notification) bool
}

// Deliverer attempts live delivery of a notification that is already stored.
type Deliverer interface {
	Deliver(ctx context.Context, user *model.User, n model.Notification) bool
}

// Stores bundles the persistence shared by the services.
type Stores struct {
	Tasks         TaskStore
	History       HistoryStore
	Notifications NotificationStore
	Users         UserStore
	Teams         TeamStore
	Tx            Transactor
}
