package service

import (
	"encoding/json"
	"time"

	"taskflow/internal/model"
)

// Optional is a patch value for a nullable field. The zero value leaves the field
// alone; Set with a nil Value clears it. In JSON an absent key leaves the field
// alone and an explicit null clears it.
type Optional[T any] struct {
	Value *T
	Set   bool
}

// Value returns an Optional that sets the field to v.
func Value[T any](v T) Optional[T] {
	return Optional[T]{Value: &v, Set: true}
}

// Clear returns an Optional that clears the field.
func Clear[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) apply(dst **T) {
	if !o.Set {
		return
	}
	if o.Value == nil {
		*dst = nil
		return
	}
	v := *o.Value
	*dst = &v
}

// TaskInput carries the fields of a new task.
type TaskInput struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Status         model.TaskStatus   `json:"status"`
	Priority       model.TaskPriority `json:"priority"`
	AssigneeID     *string            `json:"assigneeId"`
	TeamID         *string            `json:"teamId"`
	ParentID       *string            `json:"parentId"`
	DueDate        *time.Time         `json:"dueDate"`
	ReminderTime   *time.Time         `json:"reminderTime"`
	RecurrenceRule *string            `json:"recurrenceRule"`
}

// TaskPatch is a partial update. Nil pointers and unset Optionals leave fields unchanged.
type TaskPatch struct {
	Title          *string             `json:"title"`
	Description    *string             `json:"description"`
	Status         *model.TaskStatus   `json:"status"`
	Priority       *model.TaskPriority `json:"priority"`
	AssigneeID     Optional[string]    `json:"assigneeId"`
	TeamID         Optional[string]    `json:"teamId"`
	ParentID       Optional[string]    `json:"parentId"`
	DueDate        Optional[time.Time] `json:"dueDate"`
	ReminderTime   Optional[time.Time] `json:"reminderTime"`
	RecurrenceRule Optional[string]    `json:"recurrenceRule"`
}

func (p TaskPatch) applyTo(t *model.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	p.AssigneeID.apply(&t.AssigneeID)
	p.TeamID.apply(&t.TeamID)
	p.ParentID.apply(&t.ParentID)
	p.DueDate.apply(&t.DueDate)
	p.ReminderTime.apply(&t.ReminderTime)
	p.RecurrenceRule.apply(&t.RecurrenceRule)
}
