package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"taskflow/internal/live"
	"taskflow/internal/model"
	"taskflow/internal/repository"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// harness wires the services against a throwaway sqlite database and a fixed clock.
type harness struct {
	db       *gorm.DB
	stores   Stores
	tasks    *repository.TaskRepository
	history  *repository.HistoryRepository
	inbox    *repository.NotificationRepository
	users    *repository.UserRepository
	registry *live.Registry

	sink      *NotificationService
	service   *TaskService
	recurring *RecurrenceScheduler
	reminders *ReminderScheduler

	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB(repository.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := zaptest.NewLogger(t).Sugar()
	h := &harness{
		db:       db,
		tasks:    repository.NewTaskRepository(db),
		history:  repository.NewHistoryRepository(db),
		inbox:    repository.NewNotificationRepository(db),
		users:    repository.NewUserRepository(db),
		registry: live.NewRegistry(log),
		now:      time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC),
	}
	h.stores = Stores{
		Tasks:         h.tasks,
		History:       h.history,
		Notifications: h.inbox,
		Users:         h.users,
		Teams:         repository.NewTeamRepository(db),
		Tx:            repository.NewTransactor(db),
	}
	h.rewire(t)
	return h
}

// rewire rebuilds the services from h.stores, after a test swapped a store.
func (h *harness) rewire(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	clock := func() time.Time { return h.now }

	h.sink = NewNotificationService(h.stores.Notifications, h.stores.Users, h.registry, log)
	h.service = NewTaskService(h.stores, NewCompletionPropagator(h.stores.Tasks, log), h.sink, log)
	h.service.now = clock
	h.recurring = NewRecurrenceScheduler(h.stores, log)
	h.recurring.now = clock
	h.reminders = NewReminderScheduler(h.stores, h.sink, log)
	h.reminders.now = clock
}

func (h *harness) user(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: email}
	if err := h.users.Create(context.Background(), u); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return u
}

// task inserts a task directly, bypassing the mutation service.
func (h *harness) task(t *testing.T, task *model.Task) *model.Task {
	t.Helper()
	if err := h.tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	return task
}

func (h *harness) reload(t *testing.T, id string) *model.Task {
	t.Helper()
	task, err := h.tasks.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to reload task %s: %v", id, err)
	}
	return task
}

func (h *harness) notificationsFor(t *testing.T, userID string) []model.Notification {
	t.Helper()
	list, err := h.inbox.ListByUser(context.Background(), userID, 100)
	if err != nil {
		t.Fatalf("Failed to list notifications: %v", err)
	}
	return list
}

func (h *harness) instancesOf(t *testing.T, templateID string) []model.Task {
	t.Helper()
	var instances []model.Task
	if err := h.db.Where("origin_task_id = ?", templateID).Order("due_date ASC").Find(&instances).Error; err != nil {
		t.Fatalf("Failed to list instances: %v", err)
	}
	return instances
}
