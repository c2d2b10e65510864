package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a team member that tasks and notifications refer to.
type User struct {
	ID    string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Name  string `gorm:"type:varchar(255)" json:"name"`
	// PushDisabled turns off live pushes; notification records are stored either way.
	PushDisabled bool `gorm:"not null;default:false" json:"pushDisabled"`
	// TelegramChatID is set once the user links a Telegram chat to receive pushes there.
	TelegramChatID *int64    `gorm:"index" json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// WantsPush reports whether live delivery is enabled for the user.
func (u *User) WantsPush() bool {
	return !u.PushDisabled
}
