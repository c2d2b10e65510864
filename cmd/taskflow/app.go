package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskflow/internal/config"
	"taskflow/internal/live"
	"taskflow/internal/lock"
	"taskflow/internal/logging"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

// app holds the wiring shared by every command.
type app struct {
	cfg config.Config
	log *zap.SugaredLogger
	db  *gorm.DB

	users    *repository.UserRepository
	teams    *repository.TeamRepository
	registry *live.Registry

	notifications *service.NotificationService
	tasks         *service.TaskService
	recurrence    *service.RecurrenceScheduler
	reminders     *service.ReminderScheduler
}

// newApp loads configuration and opens the database. Commands that sign or verify
// tokens call requireSecret on top.
func newApp(envDir string) (*app, error) {
	cfg, err := config.Load(envDir)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	db, err := repository.NewDB(repository.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		Logger: logging.GormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		users:    repository.NewUserRepository(db),
		teams:    repository.NewTeamRepository(db),
		registry: live.NewRegistry(log),
	}

	stores := service.Stores{
		Tasks:         repository.NewTaskRepository(db),
		History:       repository.NewHistoryRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Users:         a.users,
		Teams:         a.teams,
		Tx:            repository.NewTransactor(db),
	}

	a.notifications = service.NewNotificationService(stores.Notifications, a.users, a.registry, log)
	a.tasks = service.NewTaskService(stores, service.NewCompletionPropagator(stores.Tasks, log), a.notifications, log)
	a.recurrence = service.NewRecurrenceScheduler(stores, log)
	a.reminders = service.NewReminderScheduler(stores, a.notifications, log)
	return a, nil
}

func (a *app) requireSecret() error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// locker picks the Redis lease when REDIS_ADDR is set and an in-process one otherwise.
func (a *app) locker(ctx context.Context) (service.Locker, func(), error) {
	if a.cfg.RedisAddr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	r, err := lock.NewRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	a.log.Infow("using redis tick lock", "addr", a.cfg.RedisAddr)
	return r, func() {
		if err := r.Close(); err != nil {
			a.log.Warnw("close redis", "error", err)
		}
	}, nil
}

func (a *app) scheduler(locker service.Locker) *service.SchedulerService {
	return service.NewSchedulerService(time.UTC, locker, a.cfg.TickTimeout, a.log)
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
