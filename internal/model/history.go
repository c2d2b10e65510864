package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Change types recorded in task history.
const (
	ChangeCreated        = "CREATED"
	ChangeTitle          = "TITLE"
	ChangeDescription    = "DESCRIPTION"
	ChangeStatus         = "STATUS"
	ChangePriority       = "PRIORITY"
	ChangeAssignee       = "ASSIGNEE_CHANGED"
	ChangeTeam           = "TEAM"
	ChangeParent         = "PARENT"
	ChangeDueDate        = "DUE_DATE"
	ChangeReminderTime   = "REMINDER_TIME"
	ChangeRecurrenceRule = "RECURRENCE_RULE"
)

// TaskHistory is an append-only record of one field change on a task.
type TaskHistory struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TaskID      string    `gorm:"type:varchar(36);not null;index" json:"taskId"`
	ChangeType  string    `gorm:"type:varchar(50);not null" json:"changeType"`
	OldValue    string    `gorm:"type:text" json:"oldValue"`
	NewValue    string    `gorm:"type:text" json:"newValue"`
	ChangedByID string    `gorm:"type:varchar(36);not null" json:"changedById"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (TaskHistory) TableName() string {
	return "task_history"
}

func (h *TaskHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
