package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"taskflow/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := conn(ctx, r.db).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := conn(ctx, r.db).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, notFound(err))
	}
	return &user, nil
}

// LinkTelegram attaches a Telegram chat to the user, detaching it from anyone who had it before.
func (r *UserRepository) LinkTelegram(ctx context.Context, userID string, chatID int64) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("telegram_chat_id = ?", chatID).
			Update("telegram_chat_id", nil).Error; err != nil {
			return fmt.Errorf("unlink previous owner: %w", err)
		}
		res := tx.Model(&model.User{}).Where("id = ?", userID).Update("telegram_chat_id", chatID)
		if res.Error != nil {
			return fmt.Errorf("link telegram chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("link telegram chat for %s: %w", userID, ErrNotFound)
		}
		return nil
	})
}

// UnlinkTelegram detaches chatID and returns the user it belonged to.
func (r *UserRepository) UnlinkTelegram(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	db := conn(ctx, r.db)
	if err := db.Where("telegram_chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user by chat: %w", notFound(err))
	}
	if err := db.Model(&user).Update("telegram_chat_id", nil).Error; err != nil {
		return nil, fmt.Errorf("unlink telegram chat: %w", err)
	}
	user.TelegramChatID = nil
	return &user, nil
}

// ListTelegramLinked returns users that receive pushes in Telegram.
func (r *UserRepository) ListTelegramLinked(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := conn(ctx, r.db).Where("telegram_chat_id IS NOT NULL").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list telegram users: %w", err)
	}
	return users, nil
}
