package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"taskflow/internal/model"
)

// HistoryRepository appends task history. Rows are never updated; they are
// removed only together with their task.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, records ...model.TaskHistory) error {
	if len(records) == 0 {
		return nil
	}
	if err := conn(ctx, r.db).Create(&records).Error; err != nil {
		return fmt.Errorf("append task history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListByTask(ctx context.Context, taskID string) ([]model.TaskHistory, error) {
	var records []model.TaskHistory
	if err := conn(ctx, r.db).Where("task_id = ?", taskID).Order("created_at ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list task history: %w", err)
	}
	return records, nil
}
