package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskflow/internal/model"
)

// Guard is the condition a row must still satisfy for a conditional update to apply.
type Guard struct {
	Query string
	Args  []interface{}
}

// TaskRepository handles persistence for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	normalizeTask(task)
	if err := conn(ctx, r.db).Omit("Subtasks", "History", "Followers").Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := conn(ctx, r.db).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, notFound(err))
	}
	return &task, nil
}

// GetDetailed loads a task with its subtasks, history (oldest first) and followers.
func (r *TaskRepository) GetDetailed(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := conn(ctx, r.db).
		Preload("Subtasks", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Followers").
		Where("id = ?", id).
		First(&task).Error
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, notFound(err))
	}
	return &task, nil
}

func (r *TaskRepository) Children(ctx context.Context, parentID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Where("parent_id = ?", parentID).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list subtasks of %s: %w", parentID, err)
	}
	return tasks, nil
}

// FindRecurring returns every template task.
func (r *TaskRepository) FindRecurring(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).
		Where("recurrence_rule IS NOT NULL AND recurrence_rule <> ''").
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list recurring tasks: %w", err)
	}
	return tasks, nil
}

// FindDueReminders returns open tasks whose reminder time has passed and was not yet sent.
func (r *TaskRepository) FindDueReminders(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).
		Where("reminder_time IS NOT NULL AND reminder_time <= ? AND reminder_sent = ? AND status <> ?",
			now.UTC(), false, model.StatusDone).
		Order("reminder_time ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return tasks, nil
}

// UpdateFields writes only the given columns so concurrent writers of other
// columns are not clobbered.
func (r *TaskRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&model.Task{}).Where("id = ?", id).Updates(normalizeFields(fields))
	if res.Error != nil {
		return fmt.Errorf("update task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ConditionalUpdate applies fields only while guard still holds for the row and
// reports whether it did.
func (r *TaskRepository) ConditionalUpdate(ctx context.Context, id string, guard Guard, fields map[string]interface{}) (bool, error) {
	res := conn(ctx, r.db).Model(&model.Task{}).
		Where("id = ?", id).
		Where(guard.Query, guard.Args...).
		Updates(normalizeFields(fields))
	if res.Error != nil {
		return false, fmt.Errorf("conditional update task %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkDone moves a task to DONE unless it already is.
func (r *TaskRepository) MarkDone(ctx context.Context, id string) (bool, error) {
	return r.ConditionalUpdate(ctx, id,
		Guard{Query: "status <> ?", Args: []interface{}{model.StatusDone}},
		map[string]interface{}{"status": model.StatusDone},
	)
}

// MarkReminderSent flips reminder_sent to true if the reminder is still pending and due.
// A reminder time moved into the future since the scan makes the guard fail.
func (r *TaskRepository) MarkReminderSent(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.ConditionalUpdate(ctx, id,
		Guard{
			Query: "reminder_sent = ? AND reminder_time IS NOT NULL AND reminder_time <= ?",
			Args:  []interface{}{false, now.UTC()},
		},
		map[string]interface{}{"reminder_sent": true},
	)
}

// AdvanceWatermark moves last_recurrence_at forward to occurrence. It never moves
// backwards and reports false when another writer already reached occurrence.
// The series anchor is pinned on the way if the template has none yet.
func (r *TaskRepository) AdvanceWatermark(ctx context.Context, id string, occurrence, anchor time.Time) (bool, error) {
	return r.ConditionalUpdate(ctx, id,
		Guard{
			Query: "(last_recurrence_at IS NULL OR last_recurrence_at < ?)",
			Args:  []interface{}{occurrence.UTC()},
		},
		map[string]interface{}{
			"last_recurrence_at": occurrence.UTC(),
			"recurrence_anchor":  gorm.Expr("COALESCE(recurrence_anchor, ?)", anchor.UTC()),
		},
	)
}

type taskFollower struct {
	TaskID string `gorm:"primaryKey"`
	UserID string `gorm:"primaryKey"`
}

func (taskFollower) TableName() string {
	return "task_followers"
}

// AddFollower is idempotent.
func (r *TaskRepository) AddFollower(ctx context.Context, taskID, userID string) error {
	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&taskFollower{TaskID: taskID, UserID: userID}).Error
	if err != nil {
		return fmt.Errorf("add follower: %w", err)
	}
	return nil
}

func (r *TaskRepository) RemoveFollower(ctx context.Context, taskID, userID string) error {
	err := conn(ctx, r.db).Exec("DELETE FROM task_followers WHERE task_id = ? AND user_id = ?", taskID, userID).Error
	if err != nil {
		return fmt.Errorf("remove follower: %w", err)
	}
	return nil
}

// TaskFilter narrows a task listing. Zero values do not filter.
type TaskFilter struct {
	Status       model.TaskStatus
	Priority     model.TaskPriority
	AssigneeID   string
	CreatorID    string
	CreatorName  string
	AssigneeName string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	OnlyFollowed bool
	SortBy       string // createdAt, dueDate, priority, creator or id
	Descending   bool
}

var taskSortColumns = map[string]string{
	"createdAt": "tasks.created_at",
	"dueDate":   "tasks.due_date",
	"priority":  "tasks.priority",
	"creator":   "creator.name",
	"id":        "tasks.id",
}

// ValidTaskSort reports whether List can order by field. Empty means createdAt.
func ValidTaskSort(field string) bool {
	if field == "" {
		return true
	}
	_, ok := taskSortColumns[field]
	return ok
}

// List returns the tasks viewerID created, is assigned or follows, narrowed by f.
// With OnlyFollowed only followed tasks are returned.
func (r *TaskRepository) List(ctx context.Context, viewerID string, f TaskFilter) ([]model.Task, error) {
	followed := "tasks.id IN (SELECT task_id FROM task_followers WHERE user_id = ?)"

	q := conn(ctx, r.db).Model(&model.Task{}).
		Select("tasks.*").
		Joins("LEFT JOIN users creator ON creator.id = tasks.creator_id").
		Joins("LEFT JOIN users assignee ON assignee.id = tasks.assignee_id")
	if f.OnlyFollowed {
		q = q.Where(followed, viewerID)
	} else {
		q = q.Where("(tasks.creator_id = ? OR tasks.assignee_id = ? OR "+followed+")", viewerID, viewerID, viewerID)
	}

	if f.Status != "" {
		q = q.Where("tasks.status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("tasks.priority = ?", f.Priority)
	}
	if f.AssigneeID != "" {
		q = q.Where("tasks.assignee_id = ?", f.AssigneeID)
	}
	if f.CreatorID != "" {
		q = q.Where("tasks.creator_id = ?", f.CreatorID)
	}
	if f.CreatorName != "" {
		q = q.Where("creator.name LIKE ?", "%"+f.CreatorName+"%")
	}
	if f.AssigneeName != "" {
		q = q.Where("assignee.name LIKE ?", "%"+f.AssigneeName+"%")
	}
	if f.CreatedFrom != nil {
		q = q.Where("tasks.created_at >= ?", f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		q = q.Where("tasks.created_at <= ?", f.CreatedTo.UTC())
	}

	column, ok := taskSortColumns[f.SortBy]
	if !ok {
		column = taskSortColumns["createdAt"]
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: column, Raw: true}, Desc: f.Descending}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "tasks.id", Raw: true}, Desc: f.Descending})

	var tasks []model.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task; its subtasks and history go with it.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	res := conn(ctx, r.db).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	return nil
}

func normalizeTask(task *model.Task) {
	task.DueDate = utc(task.DueDate)
	task.ReminderTime = utc(task.ReminderTime)
	task.RecurrenceAnchor = utc(task.RecurrenceAnchor)
	task.LastRecurrenceAt = utc(task.LastRecurrenceAt)
}

func normalizeFields(fields map[string]interface{}) map[string]interface{} {
	for k, v := range fields {
		switch t := v.(type) {
		case time.Time:
			fields[k] = t.UTC()
		case *time.Time:
			fields[k] = utc(t)
		}
	}
	return fields
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
