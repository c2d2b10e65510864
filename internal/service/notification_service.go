package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"taskflow/internal/model"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationService is the notification sink: it stores notifications and
// attempts live delivery to the recipient's connected sessions.
type NotificationService struct {
	notifications NotificationStore
	users         UserStore
	pusher        Pusher
	log           *zap.SugaredLogger
}

// NewNotificationService builds the sink. pusher may be nil, in which case
// notifications are only stored.
func NewNotificationService(notifications NotificationStore, users UserStore, pusher Pusher, log *zap.SugaredLogger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		pusher:        pusher,
		log:           log.Named("notifications"),
	}
}

// Deliver pushes an already stored notification to user's live sessions when the
// user accepts pushes. A failed push is not an error: the record is still there.
func (s *NotificationService) Deliver(ctx context.Context, user *model.User, n model.Notification) bool {
	if s.pusher == nil || user == nil || !user.WantsPush() {
		return false
	}
	delivered := s.pusher.Push(ctx, user.ID, n)
	if !delivered {
		s.log.Debugw("live push not delivered", "user_id", user.ID, "notification_id", n.ID)
	}
	return delivered
}

// Notify stores a notification for userID and attempts live delivery.
func (s *NotificationService) Notify(ctx context.Context, userID, content string, taskID *string) (*model.Notification, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	n := &model.Notification{UserID: user.ID, Content: content, TaskID: taskID}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	s.Deliver(ctx, user, *n)
	return n, nil
}

// List returns the newest notifications of a user. A non-positive limit means the default.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	switch {
	case limit <= 0:
		limit = defaultNotificationLimit
	case limit > maxNotificationLimit:
		limit = maxNotificationLimit
	}
	return s.notifications.ListByUser(ctx, userID, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.notifications.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.notifications.MarkRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}
