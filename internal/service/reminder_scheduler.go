package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
)

var errAlreadyReminded = errors.New("reminder already sent")

// ReminderScheduler turns due reminders into notifications, once per reminder time.
type ReminderScheduler struct {
	stores    Stores
	deliverer Deliverer
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewReminderScheduler(stores Stores, deliverer Deliverer, log *zap.SugaredLogger) *ReminderScheduler {
	return &ReminderScheduler{stores: stores, deliverer: deliverer, now: time.Now, log: log.Named("reminders")}
}

func (s *ReminderScheduler) Name() string {
	return "reminders"
}

// Tick notifies the recipient of every open task whose reminder is due and unsent.
func (s *ReminderScheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	now := s.now().UTC()
	tasks, err := s.stores.Tasks.FindDueReminders(ctx, now)
	if err != nil {
		return report, fmt.Errorf("scan due reminders: %w", err)
	}

	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		task := &tasks[i]
		report.Scanned++

		sent, err := s.remind(ctx, task, now)
		switch {
		case err != nil:
			s.log.Errorw("send reminder", "task_id", task.ID, "error", err)
			report.Failed++
		case sent:
			report.Produced++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

// remind flips reminder_sent and stores the notification in one transaction, then
// pushes it live. The flip is conditional, so overlapping ticks send it once.
func (s *ReminderScheduler) remind(ctx context.Context, task *model.Task, now time.Time) (bool, error) {
	recipient, err := s.recipient(ctx, task)
	if err != nil {
		return false, err
	}
	if recipient == nil {
		s.log.Debugw("reminder has no resolvable recipient", "task_id", task.ID)
		return false, nil
	}

	taskID := task.ID
	n := &model.Notification{
		UserID:  recipient.ID,
		Content: fmt.Sprintf("Reminder: Task %q is due soon!", task.Title),
		TaskID:  &taskID,
	}
	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		marked, err := s.stores.Tasks.MarkReminderSent(ctx, task.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return errAlreadyReminded
		}
		return s.stores.Notifications.Create(ctx, n)
	})
	if errors.Is(err, errAlreadyReminded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if s.deliverer != nil {
		s.deliverer.Deliver(ctx, recipient, *n)
	}
	s.log.Infow("reminder sent", "task_id", task.ID, "user_id", recipient.ID)
	return true, nil
}

// recipient returns the first of the task's reminder recipients that exists.
func (s *ReminderScheduler) recipient(ctx context.Context, task *model.Task) (*model.User, error) {
	for _, id := range task.ReminderRecipients() {
		user, err := s.stores.Users.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load recipient %s: %w", id, err)
		}
		return user, nil
	}
	return nil, nil
}
