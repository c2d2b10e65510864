package service

import (
	"time"

	"taskflow/internal/model"
)

// fieldChange is one changed column of a task.
type fieldChange struct {
	changeType string
	column     string
	oldValue   string
	newValue   string
	value      interface{}
}

// diffTasks lists the columns whose values differ between prev and next.
// Dates compare by instant, and empty optional strings count as unset.
func diffTasks(prev, next *model.Task) []fieldChange {
	var changes []fieldChange

	addString := func(changeType, column, old, new string) {
		if old != new {
			changes = append(changes, fieldChange{changeType, column, old, new, new})
		}
	}
	addOptional := func(changeType, column string, old, new *string) {
		if deref(old) != deref(new) {
			changes = append(changes, fieldChange{changeType, column, deref(old), deref(new), nullable(new)})
		}
	}
	addTime := func(changeType, column string, old, new *time.Time) {
		if !sameInstant(old, new) {
			changes = append(changes, fieldChange{changeType, column, formatTime(old), formatTime(new), nullableTime(new)})
		}
	}

	addString(model.ChangeTitle, "title", prev.Title, next.Title)
	addString(model.ChangeDescription, "description", prev.Description, next.Description)
	addString(model.ChangeStatus, "status", string(prev.Status), string(next.Status))
	addString(model.ChangePriority, "priority", string(prev.Priority), string(next.Priority))
	addOptional(model.ChangeAssignee, "assignee_id", prev.AssigneeID, next.AssigneeID)
	addOptional(model.ChangeTeam, "team_id", prev.TeamID, next.TeamID)
	addOptional(model.ChangeParent, "parent_id", prev.ParentID, next.ParentID)
	addTime(model.ChangeDueDate, "due_date", prev.DueDate, next.DueDate)
	addTime(model.ChangeReminderTime, "reminder_time", prev.ReminderTime, next.ReminderTime)
	addOptional(model.ChangeRecurrenceRule, "recurrence_rule", prev.RecurrenceRule, next.RecurrenceRule)

	return changes
}

func changed(changes []fieldChange, changeType string) bool {
	for _, c := range changes {
		if c.changeType == changeType {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable maps an empty optional string to SQL NULL.
func nullable(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
