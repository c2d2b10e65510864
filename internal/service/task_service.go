package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
)

// TaskService applies interactive task mutations on behalf of an actor.
type TaskService struct {
	stores     Stores
	propagator *CompletionPropagator
	deliverer  Deliverer
	now        func() time.Time
	log        *zap.SugaredLogger
}

func NewTaskService(stores Stores, propagator *CompletionPropagator, deliverer Deliverer, log *zap.SugaredLogger) *TaskService {
	return &TaskService{
		stores:     stores,
		propagator: propagator,
		deliverer:  deliverer,
		now:        time.Now,
		log:        log.Named("tasks"),
	}
}

// Create validates and stores a new task with a CREATED history entry. Templates
// get their recurrence anchor pinned here.
func (s *TaskService) Create(ctx context.Context, actorID string, in TaskInput) (*model.Task, error) {
	if _, err := s.stores.Users.Get(ctx, actorID); err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}

	task := &model.Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		CreatorID:      actorID,
		AssigneeID:     blankToNil(in.AssigneeID),
		TeamID:         blankToNil(in.TeamID),
		ParentID:       blankToNil(in.ParentID),
		DueDate:        in.DueDate,
		ReminderTime:   in.ReminderTime,
		RecurrenceRule: blankToNil(in.RecurrenceRule),
	}
	if task.Status == "" {
		task.Status = model.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	if err := s.validate(ctx, task, nil); err != nil {
		return nil, err
	}
	// CreatedAt is set here so a pinned anchor that falls back to it matches the row.
	task.CreatedAt = s.now().UTC()
	if task.IsTemplate() {
		anchor := s.anchorFor(task, task.CreatedAt)
		task.RecurrenceAnchor = &anchor
	}

	var notice *model.Notification
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Tasks.Create(ctx, task); err != nil {
			return err
		}
		created := model.TaskHistory{
			TaskID:      task.ID,
			ChangeType:  model.ChangeCreated,
			NewValue:    task.Title,
			ChangedByID: actorID,
		}
		if err := s.stores.History.Append(ctx, created); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		var err error
		notice, err = s.noticeAssignee(ctx, actorID, task)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("task created", "task_id", task.ID, "actor_id", actorID, "template", task.IsTemplate())
	if err := s.afterCommit(ctx, task, notice); err != nil {
		return nil, err
	}
	return s.stores.Tasks.GetDetailed(ctx, task.ID)
}

// Update applies patch to a task. Every changed field gets one history record written
// in the same transaction as the task row, so a failed history write fails the update.
// Once committed, a DONE task with a parent triggers completion propagation.
func (s *TaskService) Update(ctx context.Context, actorID, id string, patch TaskPatch) (*model.Task, error) {
	var (
		updated *model.Task
		notice  *model.Notification
	)
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		prev, err := s.stores.Tasks.Get(ctx, id)
		if err != nil {
			return err
		}

		next := *prev
		patch.applyTo(&next)
		next.Title = strings.TrimSpace(next.Title)
		next.AssigneeID = blankToNil(next.AssigneeID)
		next.TeamID = blankToNil(next.TeamID)
		next.ParentID = blankToNil(next.ParentID)
		next.RecurrenceRule = blankToNil(next.RecurrenceRule)
		if err := s.validate(ctx, &next, prev); err != nil {
			return err
		}

		changes := diffTasks(prev, &next)
		if len(changes) == 0 {
			updated = prev
			return nil
		}

		fields := make(map[string]interface{}, len(changes)+2)
		records := make([]model.TaskHistory, 0, len(changes))
		for _, c := range changes {
			fields[c.column] = c.value
			records = append(records, model.TaskHistory{
				TaskID:      id,
				ChangeType:  c.changeType,
				OldValue:    c.oldValue,
				NewValue:    c.newValue,
				ChangedByID: actorID,
			})
		}

		if changed(changes, model.ChangeReminderTime) {
			fields["reminder_sent"] = false
			next.ReminderSent = false
		}
		if changed(changes, model.ChangeRecurrenceRule) {
			if next.IsTemplate() {
				anchor := s.anchorFor(&next, prev.CreatedAt)
				fields["recurrence_anchor"] = anchor.UTC()
				next.RecurrenceAnchor = &anchor
			} else {
				fields["recurrence_anchor"] = nil
				next.RecurrenceAnchor = nil
			}
		}

		if err := s.stores.History.Append(ctx, records...); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		if err := s.stores.Tasks.UpdateFields(ctx, id, fields); err != nil {
			return err
		}
		if changed(changes, model.ChangeAssignee) {
			if notice, err = s.noticeAssignee(ctx, actorID, &next); err != nil {
				return err
			}
		}

		s.log.Infow("task updated", "task_id", id, "actor_id", actorID, "changes", len(changes))
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.afterCommit(ctx, updated, notice); err != nil {
		return nil, err
	}
	return s.stores.Tasks.GetDetailed(ctx, id)
}

// Get returns a task with its subtasks, history and followers.
func (s *TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	return s.stores.Tasks.GetDetailed(ctx, id)
}

// List returns the tasks actorID created, is assigned or follows, narrowed by f.
func (s *TaskService) List(ctx context.Context, actorID string, f repository.TaskFilter) ([]model.Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, f.Priority)
	}
	if !repository.ValidTaskSort(f.SortBy) {
		return nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidFilter, f.SortBy)
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return nil, fmt.Errorf("%w: start date after end date", ErrInvalidFilter)
	}
	return s.stores.Tasks.List(ctx, actorID, f)
}

// Delete removes a task together with its subtasks and their history. Instances
// spawned from a deleted template stay and keep their origin id.
func (s *TaskService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.stores.Tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infow("task deleted", "task_id", id, "actor_id", actorID)
	return nil
}

func (s *TaskService) Follow(ctx context.Context, taskID, userID string) error {
	if err := s.checkFollow(ctx, taskID, userID); err != nil {
		return err
	}
	return s.stores.Tasks.AddFollower(ctx, taskID, userID)
}

func (s *TaskService) Unfollow(ctx context.Context, taskID, userID string) error {
	if err := s.checkFollow(ctx, taskID, userID); err != nil {
		return err
	}
	return s.stores.Tasks.RemoveFollower(ctx, taskID, userID)
}

func (s *TaskService) checkFollow(ctx context.Context, taskID, userID string) error {
	if _, err := s.stores.Tasks.Get(ctx, taskID); err != nil {
		return err
	}
	if _, err := s.stores.Users.Get(ctx, userID); err != nil {
		return fmt.Errorf("load follower: %w", err)
	}
	return nil
}

// validate checks field values and, for references that changed since prev, that
// the referenced rows exist. prev is nil for new tasks.
func (s *TaskService) validate(ctx context.Context, task, prev *model.Task) error {
	if task.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if !task.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, task.Status)
	}
	if !task.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, task.Priority)
	}

	if task.IsTemplate() {
		if task.OriginTaskID != nil {
			return ErrRecurringInstance
		}
		if _, err := recurrence.Parse(*task.RecurrenceRule); err != nil {
			return err
		}
	}

	refChanged := func(cur *string, old func(*model.Task) *string) bool {
		if cur == nil {
			return false
		}
		return prev == nil || deref(old(prev)) != *cur
	}

	if refChanged(task.TeamID, func(t *model.Task) *string { return t.TeamID }) {
		if _, err := s.stores.Teams.Get(ctx, *task.TeamID); err != nil {
			return fmt.Errorf("load team: %w", err)
		}
	}
	if refChanged(task.AssigneeID, func(t *model.Task) *string { return t.AssigneeID }) {
		if _, err := s.stores.Users.Get(ctx, *task.AssigneeID); err != nil {
			return fmt.Errorf("load assignee: %w", err)
		}
	}
	if refChanged(task.ParentID, func(t *model.Task) *string { return t.ParentID }) {
		if err := s.checkParent(ctx, task.ID, *task.ParentID); err != nil {
			return err
		}
	}
	return nil
}

// checkParent walks up from parentID and fails if it reaches taskID.
func (s *TaskService) checkParent(ctx context.Context, taskID, parentID string) error {
	visited := make(map[string]bool)
	for id := parentID; ; {
		if taskID != "" && id == taskID {
			return ErrHierarchyCycle
		}
		visited[id] = true

		ancestor, err := s.stores.Tasks.Get(ctx, id)
		if err != nil {
			if id == parentID {
				return fmt.Errorf("load parent: %w", err)
			}
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if ancestor.ParentID == nil || visited[*ancestor.ParentID] {
			return nil
		}
		id = *ancestor.ParentID
	}
}

// anchorFor decides the series anchor of a template: an explicit start in the rule,
// else the due date, else createdAt. The rule has already been validated.
func (s *TaskService) anchorFor(task *model.Task, createdAt time.Time) time.Time {
	rule, err := recurrence.Parse(*task.RecurrenceRule)
	if err != nil {
		return createdAt.UTC()
	}
	return rule.Anchor(nil, task.DueDate, createdAt).UTC()
}

// noticeAssignee stores an assignment notification unless the actor assigned themselves.
func (s *TaskService) noticeAssignee(ctx context.Context, actorID string, task *model.Task) (*model.Notification, error) {
	if task.AssigneeID == nil || *task.AssigneeID == actorID {
		return nil, nil
	}
	taskID := task.ID
	n := &model.Notification{
		UserID:  *task.AssigneeID,
		Content: fmt.Sprintf("You were assigned to task %q", task.Title),
		TaskID:  &taskID,
	}
	if err := s.stores.Notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("store assignment notification: %w", err)
	}
	return n, nil
}

// afterCommit runs the side effects that must observe committed data: the live push
// of a stored notice and completion propagation.
func (s *TaskService) afterCommit(ctx context.Context, task *model.Task, notice *model.Notification) error {
	if notice != nil && s.deliverer != nil {
		user, err := s.stores.Users.Get(ctx, notice.UserID)
		if err != nil {
			s.log.Warnw("load notice recipient", "user_id", notice.UserID, "error", err)
		} else {
			s.deliverer.Deliver(ctx, user, *notice)
		}
	}

	if task.Status != model.StatusDone || task.ParentID == nil {
		return nil
	}
	if _, err := s.propagator.Propagate(ctx, task); err != nil {
		return fmt.Errorf("propagate completion of %s: %w", task.ID, err)
	}
	return nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
