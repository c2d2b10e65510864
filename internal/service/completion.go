package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
)

// CompletionStore is what the propagator reads and writes.
type CompletionStore interface {
	Get(ctx context.Context, id string) (*model.Task, error)
	Children(ctx context.Context, parentID string) ([]model.Task, error)
	MarkDone(ctx context.Context, id string) (bool, error)
}

// CompletionPropagator completes parents whose subtasks are all done.
//
// Propagation only moves forward: a DONE parent is never pushed back when a child
// reopens, and completing a parent does not touch its children.
type CompletionPropagator struct {
	tasks CompletionStore
	log   *zap.SugaredLogger
}

func NewCompletionPropagator(tasks CompletionStore, log *zap.SugaredLogger) *CompletionPropagator {
	return &CompletionPropagator{tasks: tasks, log: log.Named("completion")}
}

// Propagate walks up from task, which has just become DONE, and returns the ids of
// the ancestors it completed. Each ancestor and its children are read fresh because
// siblings can change concurrently. A missing ancestor ends the walk without error.
func (p *CompletionPropagator) Propagate(ctx context.Context, task *model.Task) ([]string, error) {
	if task.Status != model.StatusDone {
		return nil, nil
	}

	var promoted []string
	visited := map[string]bool{task.ID: true}

	for parentID := task.ParentID; parentID != nil && *parentID != ""; {
		if visited[*parentID] {
			p.log.Warnw("task hierarchy loops, stopping propagation", "task_id", task.ID, "parent_id", *parentID)
			return promoted, nil
		}
		visited[*parentID] = true

		parent, err := p.tasks.Get(ctx, *parentID)
		if errors.Is(err, repository.ErrNotFound) {
			p.log.Debugw("parent missing, stopping propagation", "parent_id", *parentID)
			return promoted, nil
		}
		if err != nil {
			return promoted, fmt.Errorf("load parent %s: %w", *parentID, err)
		}
		// A DONE parent already propagated to its own ancestors when it completed.
		if parent.Status == model.StatusDone {
			return promoted, nil
		}

		children, err := p.tasks.Children(ctx, parent.ID)
		if err != nil {
			return promoted, fmt.Errorf("load subtasks of %s: %w", parent.ID, err)
		}
		if !allDone(children) {
			return promoted, nil
		}

		ok, err := p.tasks.MarkDone(ctx, parent.ID)
		if err != nil {
			return promoted, fmt.Errorf("complete parent %s: %w", parent.ID, err)
		}
		if !ok {
			// Someone else completed it and owns the rest of the walk.
			return promoted, nil
		}
		p.log.Infow("parent completed by subtasks", "task_id", parent.ID)
		promoted = append(promoted, parent.ID)

		parentID = parent.ParentID
	}
	return promoted, nil
}

func allDone(tasks []model.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != model.StatusDone {
			return false
		}
	}
	return true
}
