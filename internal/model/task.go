package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of team work. A task carrying a RecurrenceRule is a template
// that spawns instances; instances point back to it through OriginTaskID.
type Task struct {
	ID          string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title       string       `gorm:"type:varchar(255);not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Status      TaskStatus   `gorm:"type:varchar(20);not null;default:TODO;index" json:"status"`
	Priority    TaskPriority `gorm:"type:varchar(20);not null;default:MEDIUM" json:"priority"`

	CreatorID  string  `gorm:"type:varchar(36);not null;index" json:"creatorId"`
	AssigneeID *string `gorm:"type:varchar(36);index" json:"assigneeId"`
	TeamID     *string `gorm:"type:varchar(36);index" json:"teamId"`
	ParentID   *string `gorm:"type:varchar(36);index" json:"parentId"`

	DueDate      *time.Time `json:"dueDate"`
	ReminderTime *time.Time `gorm:"index" json:"reminderTime"`
	ReminderSent bool       `gorm:"not null;default:false" json:"reminderSent"`

	RecurrenceRule   *string    `gorm:"type:varchar(255)" json:"recurrenceRule"`
	RecurrenceAnchor *time.Time `json:"recurrenceAnchor"`
	LastRecurrenceAt *time.Time `json:"lastRecurrenceAt"`
	OriginTaskID     *string    `gorm:"type:varchar(36);index" json:"originTaskId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Subtasks  []Task        `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"subtasks,omitempty"`
	History   []TaskHistory `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
	Followers []User        `gorm:"many2many:task_followers;constraint:OnDelete:CASCADE" json:"followers,omitempty"`
}

// BeforeCreate assigns a UUID and fills defaults for rows created without them.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

// IsTemplate reports whether the task spawns recurring instances.
func (t *Task) IsTemplate() bool {
	return t.RecurrenceRule != nil && *t.RecurrenceRule != ""
}

// ReminderRecipients lists who a reminder should reach, in order of preference:
// the assignee, then the creator.
func (t *Task) ReminderRecipients() []string {
	var ids []string
	if t.AssigneeID != nil && *t.AssigneeID != "" {
		ids = append(ids, *t.AssigneeID)
	}
	if t.CreatorID != "" {
		ids = append(ids, t.CreatorID)
	}
	return ids
}
