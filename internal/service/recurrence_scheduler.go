package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
)

// errAlreadyMaterialized rolls back an instance another worker already produced.
var errAlreadyMaterialized = errors.New("occurrence already materialized")

// TickReport summarizes one run of a periodic job.
type TickReport struct {
	Scanned  int
	Produced int
	Skipped  int
	Failed   int
}

// RecurrenceScheduler materializes owed occurrences of template tasks.
type RecurrenceScheduler struct {
	stores Stores
	now    func() time.Time
	log    *zap.SugaredLogger
}

func NewRecurrenceScheduler(stores Stores, log *zap.SugaredLogger) *RecurrenceScheduler {
	return &RecurrenceScheduler{stores: stores, now: time.Now, log: log.Named("recurrence")}
}

func (s *RecurrenceScheduler) Name() string {
	return "recurrence"
}

// Tick creates at most one instance per template: the first occurrence after the
// template's watermark, if it is not in the future. A template that fails is logged
// and counted; the scan goes on.
func (s *RecurrenceScheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	templates, err := s.stores.Tasks.FindRecurring(ctx)
	if err != nil {
		return report, fmt.Errorf("scan recurring tasks: %w", err)
	}
	now := s.now().UTC()

	for i := range templates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tmpl := &templates[i]
		report.Scanned++

		produced, err := s.materialize(ctx, tmpl, now)
		switch {
		case errors.Is(err, recurrence.ErrInvalidRule):
			s.log.Warnw("skipping template with invalid rule", "task_id", tmpl.ID, "rule", *tmpl.RecurrenceRule, "error", err)
			report.Skipped++
		case errors.Is(err, errAlreadyMaterialized):
			s.log.Debugw("occurrence already produced", "task_id", tmpl.ID)
			report.Skipped++
		case err != nil:
			s.log.Errorw("materialize occurrence", "task_id", tmpl.ID, "error", err)
			report.Failed++
		case produced:
			report.Produced++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

// materialize writes the owed instance and advances the watermark in one transaction.
// The watermark update is conditional, so a concurrent tick that got there first
// rolls this instance back instead of duplicating it.
func (s *RecurrenceScheduler) materialize(ctx context.Context, tmpl *model.Task, now time.Time) (bool, error) {
	if tmpl.OriginTaskID != nil {
		s.log.Warnw("instance carries a recurrence rule, ignoring", "task_id", tmpl.ID)
		return false, nil
	}

	rule, err := recurrence.Parse(*tmpl.RecurrenceRule)
	if err != nil {
		return false, err
	}
	anchor := rule.Anchor(tmpl.RecurrenceAnchor, tmpl.DueDate, tmpl.CreatedAt)
	occurrence := rule.Next(anchor, tmpl.LastRecurrenceAt)
	if occurrence.After(now) {
		return false, nil
	}

	templateID := tmpl.ID
	instance := &model.Task{
		Title:        tmpl.Title,
		Description:  tmpl.Description,
		Status:       model.StatusTodo,
		Priority:     tmpl.Priority,
		CreatorID:    tmpl.CreatorID,
		AssigneeID:   tmpl.AssigneeID,
		TeamID:       tmpl.TeamID,
		DueDate:      &occurrence,
		OriginTaskID: &templateID,
	}

	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Tasks.Create(ctx, instance); err != nil {
			return err
		}
		created := model.TaskHistory{
			TaskID:      instance.ID,
			ChangeType:  model.ChangeCreated,
			NewValue:    instance.Title,
			ChangedByID: tmpl.CreatorID,
		}
		if err := s.stores.History.Append(ctx, created); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		advanced, err := s.stores.Tasks.AdvanceWatermark(ctx, tmpl.ID, occurrence, anchor)
		if err != nil {
			return err
		}
		if !advanced {
			return errAlreadyMaterialized
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.log.Infow("occurrence materialized", "task_id", tmpl.ID, "instance_id", instance.ID, "occurrence", occurrence)
	return true, nil
}
